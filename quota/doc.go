// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package quota holds the pure rules behind participant classification.

# Settings

A form stores its quota settings as JSON:

	{
	  "version": 1,
	  "group_by_field": "ethnicity",
	  "groups": {
	    "dutch":    {"values": ["Nederlands"], "target": 10},
	    "minority": {"values": ["Surinaams", "Turks"], "target": 10}
	  }
	}

ParseSettings fills defaults, lower-cases values and validates the document.
Overlapping values across groups are rejected, so classification never
depends on group order in practice. Group order is still preserved.

# Classification

	group, ok := quota.Classify(answers, settings)

The answer for GroupByField is trimmed and lower-cased before matching.

# Age Gate

	under, err := quota.IsUnderAge("2009-05-01", 18, time.Now())

Ages are counted in completed calendar years. Unparseable dates return
ErrInvalidBirthDate.

# Capacity

	ok := quota.HasCapacity(settings, group, reserved)

A unit has room for a group while its reservations are below the group target.
*/
package quota
