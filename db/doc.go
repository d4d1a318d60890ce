// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db handles database schema creation for PostgreSQL and SQLite.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.
SQLite connections should be opened with SQLiteDSN so foreign keys and the
busy timeout are on.

# Tables

  - form: Assignment strategy, limits and quota settings
  - job_set: Fixed bundles of articles
  - article: Imported texts, optionally in a job set
  - unit_quota: reserved and completed counters per (unit, group)
  - participant_session: One participant's progress through a form
  - session_unit: Units held by a session

# Relationships

	form 1──* job_set
	form 1──* article
	job_set 1──* article
	form 1──* unit_quota
	form 1──* participant_session
	participant_session 1──* session_unit

Foreign keys use ON DELETE CASCADE. unit_quota enforces
0 <= completed <= reserved with CHECK constraints.
*/
package db
