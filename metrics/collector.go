// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package metrics

// Assignment outcomes used as the "outcome" label.
const (
	OutcomeAssigned = "assigned"
	OutcomeResumed  = "resumed"
)

// Collector receives assignment engine measurements.
// Screen-out outcomes are recorded under their reason (under_age, quota_full, ...).
type Collector interface {
	RecordAssignment(outcome string)
	RecordCommitConflict()
	RecordCompletion()
	RecordExpired(count int)
	ObserveAssignDuration(seconds float64)
}
