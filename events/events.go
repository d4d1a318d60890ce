// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events

import (
	"context"
	"time"
)

// Event types, appended to the publisher's base subject.
const (
	TypeAssigned    = "assigned"
	TypeScreenedOut = "screened_out"
	TypeCompleted   = "completed"
	TypeExpired     = "expired"
)

// Event describes a session state change.
type Event struct {
	Type      string    `json:"type"`
	FormID    string    `json:"form_id"`
	SessionID string    `json:"session_id"`
	Group     string    `json:"demographic_group,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	UnitKind  string    `json:"unit_kind,omitempty"`
	UnitIDs   []string  `json:"unit_ids,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher delivers events after the state change they describe has committed.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
