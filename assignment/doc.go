// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package assignment hands allocation units to participant sessions under
per-group quota targets.

# Flow

Engine.Assign runs, in order:

 1. Load the form and the session (ErrFormNotFound, ErrSessionNotFound).
 2. Resume: a session that already has an outcome gets it back unchanged.
 3. Validate the birth date, then store the answers (status demographics).
 4. Age gate: screen out with reason under_age.
 5. Classify: screen out with reason no_matching_group.
 6. Find eligible units and pick the required number uniformly at random.
 7. Commit, or screen out with reason quota_full.

Screen-outs are persisted as terminal session states and returned as
results with Assigned=false. They are not errors.

# Counters

Each (unit, group) pair has a row in unit_quota with two counters:

	reserved   sessions holding or having completed the unit
	completed  sessions that finished annotating it

completed <= reserved <= target holds at all times.

A slot is reserved when the unit is assigned, with a single conditional
upsert:

	INSERT INTO unit_quota (...) VALUES (..., 1, 0)
	ON CONFLICT (unit_id, group_name) DO UPDATE
	SET reserved = unit_quota.reserved + 1
	WHERE unit_quota.reserved < $target

Zero affected rows means another session took the last slot. The commit
rolls back, drops that unit from the candidates and tries again, up to
WithMaxAttempts times. Engine.Complete turns the reservation into a
completion. ExpireStaleSessions gives reservations of abandoned sessions
back and marks those sessions expired.

# Locking

A commit locks the form row (LockForm), claims the session row (guarded by
its status) and then reserves units in ascending unit ID order. Complete
and the sweep take session then units, and a replacing import takes the
form row before counting held sessions, so PostgreSQL row locks are always
taken in one order. A commit queued behind a replace sees its units gone
and treats them as lost slots.
Two requests for the same session race on the session row; the loser
rolls back and returns what the winner stored.

# Usage

	engine := assignment.NewEngine(db,
		assignment.WithMetrics(collector),
		assignment.WithEvents(publisher),
		assignment.WithMaxAttempts(cfg.MaxAssignAttempts),
	)
	go engine.RunSweeper(ctx, cfg.SweepInterval)

	result, err := engine.Assign(ctx, formID, token, answers)
*/
package assignment
