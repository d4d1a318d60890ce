// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package assignment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/danielhkuo/quickly-annotate/events"
	"github.com/danielhkuo/quickly-annotate/models"
)

// Complete marks an annotating session completed and converts its
// reservations into completions. Completing twice is a no-op.
func (e *Engine) Complete(ctx context.Context, formID, token string) (models.SessionView, error) {
	if token == "" {
		return models.SessionView{}, ErrMissingSessionToken
	}
	if _, err := LoadForm(ctx, e.db, formID); err != nil {
		return models.SessionView{}, err
	}
	sess, err := LoadSession(ctx, e.db, formID, token)
	if err != nil {
		return models.SessionView{}, err
	}
	if err := completable(sess); err != nil || sess.Status == models.StatusCompleted {
		return sess.View(), err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return models.SessionView{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := e.clock()
	res, err := tx.ExecContext(ctx, `
		UPDATE participant_session
		SET status = $1, completed_at = $2, last_activity_at = $3
		WHERE id = $4 AND status = $5
	`, models.StatusCompleted, now, now, sess.ID, models.StatusAnnotating)
	if err != nil {
		return models.SessionView{}, fmt.Errorf("failed to complete session: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return models.SessionView{}, fmt.Errorf("failed to complete session: %w", err)
	} else if n == 0 {
		// Completed or expired in the meantime
		tx.Rollback()
		sess, err := LoadSession(ctx, e.db, formID, token)
		if err != nil {
			return models.SessionView{}, err
		}
		return sess.View(), completable(sess)
	}

	unitIDs, err := sessionUnitIDs(ctx, tx, sess.ID)
	if err != nil {
		return models.SessionView{}, err
	}
	group := ""
	if sess.DemographicGroup != nil {
		group = *sess.DemographicGroup
	}

	for _, unitID := range unitIDs {
		res, err := tx.ExecContext(ctx, `
			UPDATE unit_quota
			SET completed = completed + 1
			WHERE unit_id = $1 AND group_name = $2 AND completed < reserved
		`, unitID, group)
		if err != nil {
			return models.SessionView{}, fmt.Errorf("failed to count completion of %s: %w", unitID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return models.SessionView{}, fmt.Errorf("failed to count completion of %s: %w", unitID, err)
		} else if n == 0 {
			return models.SessionView{}, fmt.Errorf("unit %s group %q: %w", unitID, group, errMissingCounts)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.SessionView{}, fmt.Errorf("failed to commit completion: %w", err)
	}

	sess.Status = models.StatusCompleted
	sess.CompletedAt = &now
	sess.LastActivityAt = now

	e.metrics.RecordCompletion()
	e.publish(ctx, events.Event{
		Type:      events.TypeCompleted,
		FormID:    formID,
		SessionID: sess.ID,
		Group:     group,
		UnitKind:  derefString(sess.AssignedKind),
		UnitIDs:   unitIDs,
		At:        now,
	})
	slog.Info("session completed", "form_id", formID, "session_id", sess.ID, "group", group)

	return sess.View(), nil
}

// completable reports why a session cannot be completed, if it cannot.
func completable(sess models.Session) error {
	switch sess.Status {
	case models.StatusAnnotating, models.StatusCompleted:
		return nil
	case models.StatusExpired:
		return ErrSessionExpired
	default:
		return ErrNotAssigned
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
