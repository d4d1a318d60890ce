// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package assignment

import (
	"context"
	"fmt"

	"github.com/danielhkuo/quickly-annotate/models"
)

// Heartbeat records participant activity so the sweep leaves the session alone.
// Sessions that are already terminal are returned unchanged.
func (e *Engine) Heartbeat(ctx context.Context, formID, token string) (models.SessionView, error) {
	if token == "" {
		return models.SessionView{}, ErrMissingSessionToken
	}
	sess, err := LoadSession(ctx, e.db, formID, token)
	if err != nil {
		return models.SessionView{}, err
	}
	if sess.Status == models.StatusExpired {
		return models.SessionView{}, ErrSessionExpired
	}

	_, err = e.db.ExecContext(ctx, `
		UPDATE participant_session
		SET last_activity_at = $1
		WHERE id = $2 AND status IN ($3, $4, $5)
	`, e.clock(), sess.ID, models.StatusStarted, models.StatusDemographics, models.StatusAnnotating)
	if err != nil {
		return models.SessionView{}, fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return sess.View(), nil
}
