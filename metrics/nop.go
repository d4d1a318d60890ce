// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package metrics

// Nop discards every measurement.
type Nop struct{}

var _ Collector = Nop{}

func (Nop) RecordAssignment(string)       {}
func (Nop) RecordCommitConflict()         {}
func (Nop) RecordCompletion()             {}
func (Nop) RecordExpired(int)             {}
func (Nop) ObserveAssignDuration(float64) {}
