// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package assignment

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/danielhkuo/quickly-annotate/events"
	"github.com/danielhkuo/quickly-annotate/models"
)

// commit assigns picked to the session in one transaction. The form row is
// locked, the session row is claimed, then one slot per unit is reserved in
// ascending unit ID order. If a unit has no slot left, or was removed by a
// replacing import, its ID is returned as lost and nothing is written.
// errSessionMoved means another request already settled the session.
func (e *Engine) commit(ctx context.Context, sess models.Session, group string, target int, picked []models.AllocationUnit) (lost string, _ models.AssignmentResult, _ error) {
	kind := picked[0].UnitKind()
	required := 0
	for _, u := range picked {
		n, err := articleCount(u)
		if err != nil {
			return "", models.AssignmentResult{}, err
		}
		if u.UnitKind() != kind {
			return "", models.AssignmentResult{}, fmt.Errorf("%w: mixed unit kinds in one assignment", errUnknownUnit)
		}
		required += n
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return "", models.AssignmentResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := LockForm(ctx, tx, sess.FormID); err != nil {
		return "", models.AssignmentResult{}, err
	}

	now := e.clock()
	res, err := tx.ExecContext(ctx, `
		UPDATE participant_session
		SET status = $1, demographic_group = $2, assigned_kind = $3,
		    required_article_count = $4, assigned_at = $5, last_activity_at = $6
		WHERE id = $7 AND status IN ($8, $9)
	`, models.StatusAnnotating, group, kind, required, now, now, sess.ID,
		models.StatusStarted, models.StatusDemographics)
	if err != nil {
		return "", models.AssignmentResult{}, fmt.Errorf("failed to claim session: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return "", models.AssignmentResult{}, fmt.Errorf("failed to claim session: %w", err)
	} else if n == 0 {
		return "", models.AssignmentResult{}, errSessionMoved
	}

	ordered := slices.Clone(picked)
	slices.SortFunc(ordered, func(a, b models.AllocationUnit) int {
		return strings.Compare(a.UnitID(), b.UnitID())
	})
	for _, u := range ordered {
		ok, err := unitExists(ctx, tx, sess.FormID, u)
		if err != nil {
			return "", models.AssignmentResult{}, err
		}
		if !ok {
			return u.UnitID(), models.AssignmentResult{}, nil
		}

		ok, err = reserve(ctx, tx, sess.FormID, u, group, target)
		if err != nil {
			return "", models.AssignmentResult{}, err
		}
		if !ok {
			return u.UnitID(), models.AssignmentResult{}, nil
		}
	}

	for i, u := range picked {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_unit (session_id, unit_id, position)
			VALUES ($1, $2, $3)
		`, sess.ID, u.UnitID(), i)
		if err != nil {
			return "", models.AssignmentResult{}, fmt.Errorf("failed to link unit %s: %w", u.UnitID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", models.AssignmentResult{}, fmt.Errorf("failed to commit assignment: %w", err)
	}

	sess.Status = models.StatusAnnotating
	sess.DemographicGroup = &group
	sess.AssignedKind = &kind
	sess.RequiredArticleCount = required
	sess.AssignedAt = &now
	sess.LastActivityAt = now

	articles, err := articleViews(picked)
	if err != nil {
		return "", models.AssignmentResult{}, err
	}

	unitIDs := make([]string, len(picked))
	for i, u := range picked {
		unitIDs[i] = u.UnitID()
	}
	e.publish(ctx, events.Event{
		Type:      events.TypeAssigned,
		FormID:    sess.FormID,
		SessionID: sess.ID,
		Group:     group,
		UnitKind:  kind,
		UnitIDs:   unitIDs,
		At:        now,
	})
	slog.Info("session assigned",
		"form_id", sess.FormID, "session_id", sess.ID, "group", group, "kind", kind, "units", len(picked))

	return "", models.AssignmentResult{
		Assigned:         true,
		Articles:         articles,
		DemographicGroup: group,
		Required:         &required,
		Session:          sess.View(),
	}, nil
}

// reserve takes one slot of unit for group if fewer than target are held.
// The check and the increment are a single statement.
func reserve(ctx context.Context, tx *sql.Tx, formID string, u models.AllocationUnit, group string, target int) (bool, error) {
	if target <= 0 {
		return false, nil
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO unit_quota (unit_id, group_name, form_id, unit_kind, reserved, completed)
		VALUES ($1, $2, $3, $4, 1, 0)
		ON CONFLICT (unit_id, group_name) DO UPDATE
		SET reserved = unit_quota.reserved + 1
		WHERE unit_quota.reserved < $5
	`, u.UnitID(), group, formID, u.UnitKind(), target)
	if err != nil {
		return false, fmt.Errorf("failed to reserve unit %s: %w", u.UnitID(), err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to reserve unit %s: %w", u.UnitID(), err)
	}
	return n == 1, nil
}

func marshalAnswers(answers map[string]string) (string, error) {
	b, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("failed to encode answers: %w", err)
	}
	return string(b), nil
}
