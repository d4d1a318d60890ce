// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// Driver names registered by the imported SQL drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
// The DDL is shared by PostgreSQL and SQLite, so it sticks to the common subset.
func CreateSchema(db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

// DropSchema removes every table created by CreateSchema.
func DropSchema(db *sql.DB) error {
	for _, table := range []string{"session_unit", "participant_session", "unit_quota", "article", "job_set", "form"} {
		if _, err := db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	return nil
}

// SQLiteDSN turns a file path into a DSN with the pragmas the store relies on.
func SQLiteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

const schema = `
-- Forms
CREATE TABLE IF NOT EXISTS form (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    assignment_strategy TEXT NOT NULL DEFAULT 'individual' CHECK (assignment_strategy IN ('individual', 'job_set')),
    articles_per_session INTEGER NOT NULL DEFAULT 1 CHECK (articles_per_session >= 1),
    session_timeout_mins INTEGER NOT NULL DEFAULT 60,
    minimum_age INTEGER NOT NULL DEFAULT 18,
    screen_out_url TEXT,
    quota_settings TEXT NOT NULL DEFAULT '',
    settings_version INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Job sets
CREATE TABLE IF NOT EXISTS job_set (
    id TEXT PRIMARY KEY,
    form_id TEXT NOT NULL REFERENCES form(id) ON DELETE CASCADE,
    short_id TEXT NOT NULL,
    batch_id TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_job_set_form_id ON job_set(form_id);

-- Articles (job_set_id is NULL for individually assigned articles)
CREATE TABLE IF NOT EXISTS article (
    id TEXT PRIMARY KEY,
    form_id TEXT NOT NULL REFERENCES form(id) ON DELETE CASCADE,
    job_set_id TEXT REFERENCES job_set(id) ON DELETE CASCADE,
    short_id TEXT NOT NULL,
    content TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0,
    batch_id TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (form_id, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_article_form_id ON article(form_id);
CREATE INDEX IF NOT EXISTS idx_article_job_set_id ON article(job_set_id);

-- Per-unit, per-group quota counters
CREATE TABLE IF NOT EXISTS unit_quota (
    unit_id TEXT NOT NULL,
    group_name TEXT NOT NULL,
    form_id TEXT NOT NULL REFERENCES form(id) ON DELETE CASCADE,
    unit_kind TEXT NOT NULL CHECK (unit_kind IN ('individual', 'job_set')),
    reserved INTEGER NOT NULL DEFAULT 0 CHECK (reserved >= 0),
    completed INTEGER NOT NULL DEFAULT 0 CHECK (completed >= 0 AND completed <= reserved),
    PRIMARY KEY (unit_id, group_name)
);

CREATE INDEX IF NOT EXISTS idx_unit_quota_form_id ON unit_quota(form_id);

-- Participant sessions
CREATE TABLE IF NOT EXISTS participant_session (
    id TEXT PRIMARY KEY,
    form_id TEXT NOT NULL REFERENCES form(id) ON DELETE CASCADE,
    session_token TEXT NOT NULL UNIQUE,
    status TEXT NOT NULL DEFAULT 'started' CHECK (status IN ('started', 'demographics', 'annotating', 'screened_out', 'completed', 'expired')),
    demographic_answers TEXT NOT NULL DEFAULT '{}',
    demographic_group TEXT,
    assigned_kind TEXT CHECK (assigned_kind IN ('individual', 'job_set')),
    required_article_count INTEGER NOT NULL DEFAULT 0,
    screen_out_reason TEXT,
    available_count INTEGER,
    ip_hash TEXT,
    user_agent TEXT,
    started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_activity_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    assigned_at TIMESTAMP,
    completed_at TIMESTAMP,
    CHECK ((assigned_kind IS NULL) = (status NOT IN ('annotating', 'completed')))
);

CREATE INDEX IF NOT EXISTS idx_session_form_status ON participant_session(form_id, status);

-- Units held by a session, in presentation order
CREATE TABLE IF NOT EXISTS session_unit (
    session_id TEXT NOT NULL REFERENCES participant_session(id) ON DELETE CASCADE,
    unit_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (session_id, unit_id)
);

CREATE INDEX IF NOT EXISTS idx_session_unit_unit_id ON session_unit(unit_id);
`
