// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"errors"
	"fmt"
)

// TransientError marks an upstream failure worth retrying: rate limits,
// 5xx responses, and timeouts. The provider retries these locally with
// exponential backoff before surfacing them.
type TransientError struct {
	Provider   string
	Op         string
	StatusCode int
	Cause      error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("providers: transient %s failure on %s (status %d): %v",
			e.Op, e.Provider, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("providers: transient %s failure on %s: %v", e.Op, e.Provider, e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// AuthError marks an expired or rejected credential. The provider refreshes
// its token and retries exactly once; a second auth failure escalates.
type AuthError struct {
	Provider string
	Cause    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("providers: auth failure on %s: %v", e.Provider, e.Cause)
}

func (e *AuthError) Unwrap() error { return e.Cause }

// ErrCircuitOpen is returned when a provider is skipped because its circuit
// breaker is open. No upstream call is made.
type ErrCircuitOpen struct {
	Provider string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("providers: circuit open: %s", e.Provider)
}

// AllProvidersFailed aggregates a full fallback-chain walk with no winner.
// It carries the last underlying cause for diagnosis.
type AllProvidersFailed struct {
	Op       string
	Attempts int
	LastErr  error
}

func (e *AllProvidersFailed) Error() string {
	return fmt.Sprintf("providers: all %d providers failed on %s: %v", e.Attempts, e.Op, e.LastErr)
}

func (e *AllProvidersFailed) Unwrap() error { return e.LastErr }

// IsTransient reports whether err (or anything it wraps) is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
