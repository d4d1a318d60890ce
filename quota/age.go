// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package quota

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultMinimumAge applies when a form does not set its own.
const DefaultMinimumAge = 18

var ErrInvalidBirthDate = errors.New("invalid birth date")

// IsUnderAge reports whether someone born on birthDate is younger than
// minimumAge on now. An empty birthDate means the gate does not apply.
func IsUnderAge(birthDate string, minimumAge int, now time.Time) (bool, error) {
	birthDate = strings.TrimSpace(birthDate)
	if birthDate == "" {
		return false, nil
	}
	if minimumAge <= 0 {
		minimumAge = DefaultMinimumAge
	}

	born, err := parseBirthDate(birthDate)
	if err != nil {
		return false, err
	}
	if born.After(now) {
		return false, fmt.Errorf("%w: %s is in the future", ErrInvalidBirthDate, birthDate)
	}

	return age(born, now) < minimumAge, nil
}

func parseBirthDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidBirthDate, s)
}

// age counts completed years, so the birthday itself has to have passed.
func age(born, now time.Time) int {
	years := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		years--
	}
	return years
}
