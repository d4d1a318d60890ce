// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package assignment

import "errors"

var (
	ErrMissingSessionToken = errors.New("session_token is required")
	ErrFormNotFound        = errors.New("form not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExpired      = errors.New("session expired")
	ErrNotAssigned         = errors.New("session has no assignment")
	ErrUnknownStrategy     = errors.New("unknown assignment strategy")

	errUnknownUnit   = errors.New("unknown allocation unit")
	errSessionMoved  = errors.New("session changed by a concurrent request")
	errMissingCounts = errors.New("no reservation to complete")
)
