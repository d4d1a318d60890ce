// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package assignment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/danielhkuo/quickly-annotate/models"
)

// Queryer is satisfied by both *sql.DB and *sql.Tx.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// LockForm write-locks the form row until q's transaction ends. Assignment
// commits and article imports take it before touching sessions or units.
func LockForm(ctx context.Context, q Queryer, formID string) error {
	res, err := q.ExecContext(ctx, `UPDATE form SET id = id WHERE id = $1`, formID)
	if err != nil {
		return fmt.Errorf("failed to lock form %s: %w", formID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to lock form %s: %w", formID, err)
	}
	if n == 0 {
		return ErrFormNotFound
	}
	return nil
}

// unitExists reports whether u is still one of the form's units.
func unitExists(ctx context.Context, q Queryer, formID string, u models.AllocationUnit) (bool, error) {
	table := "article"
	if u.UnitKind() == models.UnitJobSet {
		table = "job_set"
	}

	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+table+` WHERE id = $1 AND form_id = $2`, u.UnitID(), formID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check unit %s: %w", u.UnitID(), err)
	}
	return n > 0, nil
}

// LoadForm returns the form with the given ID or ErrFormNotFound.
func LoadForm(ctx context.Context, q Queryer, formID string) (models.Form, error) {
	var f models.Form
	var screenOutURL sql.NullString
	var settings string

	err := q.QueryRowContext(ctx, `
		SELECT id, title, description, assignment_strategy, articles_per_session,
		       session_timeout_mins, minimum_age, screen_out_url, quota_settings,
		       settings_version, created_at
		FROM form WHERE id = $1
	`, formID).Scan(
		&f.ID, &f.Title, &f.Description, &f.AssignmentStrategy, &f.ArticlesPerSession,
		&f.SessionTimeoutMins, &f.MinimumAge, &screenOutURL, &settings,
		&f.SettingsVersion, &f.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Form{}, ErrFormNotFound
	}
	if err != nil {
		return models.Form{}, fmt.Errorf("failed to load form %s: %w", formID, err)
	}

	if screenOutURL.Valid {
		f.ScreenOutURL = &screenOutURL.String
	}
	if settings != "" {
		f.QuotaSettings = json.RawMessage(settings)
	}
	return f, nil
}

const sessionColumns = `id, form_id, session_token, status, demographic_answers, demographic_group,
	assigned_kind, required_article_count, screen_out_reason, available_count, started_at,
	last_activity_at, assigned_at, completed_at`

// LoadSession returns the session holding token. A session that belongs to
// another form is reported as ErrSessionNotFound.
func LoadSession(ctx context.Context, q Queryer, formID, token string) (models.Session, error) {
	sess, err := scanSession(q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM participant_session WHERE session_token = $1`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to load session: %w", err)
	}
	if sess.FormID != formID {
		return models.Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func scanSession(row scanner) (models.Session, error) {
	var s models.Session
	var answers string
	var group, kind, reason sql.NullString
	var available sql.NullInt64
	var assignedAt, completedAt sql.NullTime

	err := row.Scan(
		&s.ID, &s.FormID, &s.Token, &s.Status, &answers, &group,
		&kind, &s.RequiredArticleCount, &reason, &available, &s.StartedAt,
		&s.LastActivityAt, &assignedAt, &completedAt,
	)
	if err != nil {
		return models.Session{}, err
	}

	s.DemographicAnswers = map[string]string{}
	if answers != "" {
		if err := json.Unmarshal([]byte(answers), &s.DemographicAnswers); err != nil {
			return models.Session{}, fmt.Errorf("corrupt demographic answers on session %s: %w", s.ID, err)
		}
	}
	if group.Valid {
		s.DemographicGroup = &group.String
	}
	if kind.Valid {
		s.AssignedKind = &kind.String
	}
	if reason.Valid {
		s.ScreenOutReason = &reason.String
	}
	if available.Valid {
		n := int(available.Int64)
		s.AvailableCount = &n
	}
	if assignedAt.Valid {
		s.AssignedAt = &assignedAt.Time
	}
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}
	return s, nil
}

// sessionUnitIDs returns the units held by a session in ascending ID order,
// which is the order their counters are locked in.
func sessionUnitIDs(ctx context.Context, q Queryer, sessionID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT unit_id FROM session_unit WHERE session_id = $1 ORDER BY unit_id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session units: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session unit: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
