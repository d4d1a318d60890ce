// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startEmbeddedNATS(t *testing.T) *server.Server {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:  "127.0.0.1",
		Port:  -1,
		NoLog: true,
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("embedded NATS server not ready")
	}

	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns
}

func TestNATSPublisher_Publish(t *testing.T) {
	ns := startEmbeddedNATS(t)

	pub, err := Connect(ns.ClientURL(), "test.assignments")
	require.NoError(t, err)
	defer pub.Close()

	sub, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer sub.Close()

	msgs := make(chan *nats.Msg, 4)
	s, err := sub.ChanSubscribe("test.assignments.>", msgs)
	require.NoError(t, err)
	defer s.Unsubscribe()
	require.NoError(t, sub.Flush())

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	err = pub.Publish(context.Background(), Event{
		Type:      TypeAssigned,
		FormID:    "f1",
		SessionID: "s1",
		Group:     "dutch",
		UnitKind:  "job_set",
		UnitIDs:   []string{"js1"},
		At:        at,
	})
	require.NoError(t, err)

	select {
	case msg := <-msgs:
		assert.Equal(t, "test.assignments.assigned", msg.Subject)

		var got Event
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, "f1", got.FormID)
		assert.Equal(t, "dutch", got.Group)
		assert.Equal(t, []string{"js1"}, got.UnitIDs)
		assert.True(t, at.Equal(got.At))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestNATSPublisher_CanceledContext(t *testing.T) {
	ns := startEmbeddedNATS(t)

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	pub := NewNATSPublisher(nc, "test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = pub.Publish(ctx, Event{Type: TypeCompleted})
	assert.ErrorIs(t, err, context.Canceled)

	// Borrowed connections stay open
	require.NoError(t, pub.Close())
	assert.True(t, nc.IsConnected())
}

func TestNATSPublisher_Subject(t *testing.T) {
	pub := NewNATSPublisher(nil, "annotate.assignments")
	assert.Equal(t, "annotate.assignments.expired", pub.Subject(TypeExpired))
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Publish(context.Background(), Event{Type: TypeAssigned}))
}
