// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package quota

// HasCapacity reports whether another participant of group may take a unit
// whose reservations per group are reserved.
func HasCapacity(s Settings, group string, reserved map[string]int) bool {
	g, ok := s.Group(group)
	if !ok {
		return false
	}
	return reserved[group] < g.Target
}

// Remaining returns how many more participants of group the unit can take.
func Remaining(s Settings, group string, reserved map[string]int) int {
	g, ok := s.Group(group)
	if !ok || reserved[group] >= g.Target {
		return 0
	}
	return g.Target - reserved[group]
}
