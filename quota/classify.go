// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package quota

import "slices"

// Classify returns the first group whose values contain the participant's
// answer for s.GroupByField. Comparison is case- and whitespace-insensitive.
func Classify(answers map[string]string, s Settings) (string, bool) {
	if s.GroupByField == "" {
		return "", false
	}

	raw, ok := answers[s.GroupByField]
	if !ok {
		return "", false
	}
	value := Normalize(raw)
	if value == "" {
		return "", false
	}

	for _, g := range s.Groups {
		if slices.ContainsFunc(g.Values, func(v string) bool { return Normalize(v) == value }) {
			return g.Name, true
		}
	}
	return "", false
}
