// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up in
// storage keys, object paths, or upstream catalog queries. Using these
// validators prevents injection attacks (path traversal, query injection).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern matches collection and provider names: lowercase
// alphanumerics with interior hyphens or underscores, max 32 chars.
var identifierPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

// manifestNamePattern matches "<collection>-<YYYY>-W<ww>".
var manifestNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}-\d{4}-W\d{2}$`)

// ValidateIdentifier validates a collection or provider name before it is
// used in a storage key or upstream query.
//
// Valid identifiers:
//   - 1-32 characters
//   - Lowercase letters a-z and digits 0-9
//   - Hyphens and underscores after the first character
//
// Example:
//
//	if err := validation.ValidateIdentifier(collection); err != nil {
//	    return nil, fmt.Errorf("invalid collection: %w", err)
//	}
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier: %q (must be 1-32 lowercase alphanumeric chars, hyphens, or underscores)", name)
	}
	return nil
}

// ValidateIdentifiers validates multiple names.
// Returns an error listing all invalid names if any fail validation.
func ValidateIdentifiers(names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidateIdentifier(n); err != nil {
			invalid = append(invalid, n)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid identifiers: %v", invalid)
	}
	return nil
}

// ValidateManifestName validates a mosaic manifest name like
// "optical-2026-W05" before it is turned into an object or file path.
func ValidateManifestName(name string) error {
	if name == "" {
		return fmt.Errorf("manifest name cannot be empty")
	}
	if !manifestNamePattern.MatchString(name) {
		return fmt.Errorf("invalid manifest name: %q (want <collection>-<YYYY>-W<ww>)", name)
	}
	return nil
}

// SanitizeIdentifier normalizes and validates a name.
// Returns the lowercase name if valid, or an error if invalid.
func SanitizeIdentifier(name string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if err := ValidateIdentifier(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
