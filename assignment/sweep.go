// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package assignment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielhkuo/quickly-annotate/events"
	"github.com/danielhkuo/quickly-annotate/models"
)

type staleSession struct {
	id     string
	formID string
	status string
	group  string
}

// ExpireStaleSessions expires every in-progress session whose last activity
// is older than its form's session timeout. Sessions that held units give
// their reservations back. It returns the number of sessions expired.
func (e *Engine) ExpireStaleSessions(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()

	timeouts, err := e.formTimeouts(ctx)
	if err != nil {
		return 0, err
	}

	expired := 0
	for formID, mins := range timeouts {
		if mins <= 0 {
			continue
		}
		cutoff := now.Add(-time.Duration(mins) * time.Minute)

		stale, err := e.staleSessions(ctx, formID, cutoff)
		if err != nil {
			return expired, err
		}
		for _, s := range stale {
			ok, err := e.expireSession(ctx, s, cutoff, now)
			if err != nil {
				return expired, err
			}
			if ok {
				expired++
			}
		}
	}

	e.metrics.RecordExpired(expired)
	return expired, nil
}

func (e *Engine) formTimeouts(ctx context.Context) (map[string]int, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT id, session_timeout_mins FROM form`)
	if err != nil {
		return nil, fmt.Errorf("failed to query forms: %w", err)
	}
	defer rows.Close()

	timeouts := make(map[string]int)
	for rows.Next() {
		var id string
		var mins int
		if err := rows.Scan(&id, &mins); err != nil {
			return nil, fmt.Errorf("failed to scan form: %w", err)
		}
		timeouts[id] = mins
	}
	return timeouts, rows.Err()
}

func (e *Engine) staleSessions(ctx context.Context, formID string, cutoff time.Time) ([]staleSession, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT id, status, COALESCE(demographic_group, '')
		FROM participant_session
		WHERE form_id = $1 AND status IN ($2, $3, $4) AND last_activity_at < $5
	`, formID, models.StatusStarted, models.StatusDemographics, models.StatusAnnotating, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale sessions: %w", err)
	}
	defer rows.Close()

	var stale []staleSession
	for rows.Next() {
		s := staleSession{formID: formID}
		if err := rows.Scan(&s.id, &s.status, &s.group); err != nil {
			return nil, fmt.Errorf("failed to scan stale session: %w", err)
		}
		stale = append(stale, s)
	}
	return stale, rows.Err()
}

// expireSession expires one session if it is still in the state it was read
// in and still idle. It reports whether the session was expired.
func (e *Engine) expireSession(ctx context.Context, s staleSession, cutoff, now time.Time) (bool, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE participant_session
		SET status = $1, assigned_kind = NULL
		WHERE id = $2 AND status = $3 AND last_activity_at < $4
	`, models.StatusExpired, s.id, s.status, cutoff)
	if err != nil {
		return false, fmt.Errorf("failed to expire session %s: %w", s.id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, fmt.Errorf("failed to expire session %s: %w", s.id, err)
	} else if n == 0 {
		return false, nil
	}

	var unitIDs []string
	if s.status == models.StatusAnnotating {
		unitIDs, err = sessionUnitIDs(ctx, tx, s.id)
		if err != nil {
			return false, err
		}
		for _, unitID := range unitIDs {
			_, err := tx.ExecContext(ctx, `
				UPDATE unit_quota
				SET reserved = reserved - 1
				WHERE unit_id = $1 AND group_name = $2 AND reserved > completed
			`, unitID, s.group)
			if err != nil {
				return false, fmt.Errorf("failed to release unit %s: %w", unitID, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_unit WHERE session_id = $1`, s.id); err != nil {
			return false, fmt.Errorf("failed to release session units: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit expiry: %w", err)
	}

	e.publish(ctx, events.Event{
		Type:      events.TypeExpired,
		FormID:    s.formID,
		SessionID: s.id,
		Group:     s.group,
		UnitIDs:   unitIDs,
		At:        now,
	})
	slog.Info("session expired", "form_id", s.formID, "session_id", s.id, "released_units", len(unitIDs))
	return true, nil
}

// RunSweeper expires stale sessions every interval until ctx is canceled.
// A non-positive interval disables the sweep.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		slog.Warn("session sweep disabled", "interval", interval)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := e.ExpireStaleSessions(ctx, e.clock())
			if err != nil {
				slog.Error("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("session sweep finished", "expired", n)
			}
		}
	}
}
