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
	"testing"
)

func TestIsTransient(t *testing.T) {
	base := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transient", &TransientError{Provider: "p", Op: "GET", Cause: base}, true},
		{"wrapped transient", fmt.Errorf("search: %w", &TransientError{Cause: base}), true},
		{"auth", &AuthError{Provider: "p", Cause: base}, false},
		{"circuit open", &ErrCircuitOpen{Provider: "p"}, false},
		{"plain", base, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrapping(t *testing.T) {
	cause := errors.New("root cause")

	all := &AllProvidersFailed{Op: "search", Attempts: 2,
		LastErr: &TransientError{Provider: "p", Op: "POST", Cause: cause}}
	if !errors.Is(all, cause) {
		t.Error("AllProvidersFailed should unwrap to the root cause")
	}
	var transient *TransientError
	if !errors.As(all, &transient) || transient.Provider != "p" {
		t.Error("AllProvidersFailed should expose the underlying TransientError")
	}

	auth := &AuthError{Provider: "p", Cause: cause}
	if !errors.Is(auth, cause) {
		t.Error("AuthError should unwrap its cause")
	}
}
