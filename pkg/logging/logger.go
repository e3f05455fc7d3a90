// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging configures the process-wide structured logger.
//
// Every binary logs JSON to stdout by default so the collector can parse
// it; the text format exists for humans running campoctl or a local
// tileserver. Services call New once in main, set the result as the slog
// default, and pass component-scoped children to their dependencies.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the handler encoding.
type Format string

const (
	// FormatJSON is one JSON object per line, for log collectors.
	FormatJSON Format = "json"
	// FormatText is slog's key=value text output, for terminals.
	FormatText Format = "text"
)

// Config controls logger construction. The zero value is production
// defaults: JSON at info level on stdout.
type Config struct {
	// Level is one of debug, info, warn, error. Unknown values fall back
	// to info rather than failing startup over a typo'd env var.
	Level string

	// Format selects JSON or text output.
	Format Format

	// AddSource includes file:line in every record. Costs an allocation
	// per record; leave off outside debugging.
	AddSource bool

	// Output defaults to os.Stdout.
	Output io.Writer
}

// New builds a logger from the config.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.Format == FormatText {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler)
}

// FromEnv builds a logger from LOG_LEVEL and LOG_FORMAT, for service
// binaries whose whole configuration comes from the environment.
func FromEnv() *slog.Logger {
	return New(Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: Format(strings.ToLower(os.Getenv("LOG_FORMAT"))),
	})
}

// WithComponent returns a child logger tagged with the component name, so
// one process's subsystems are separable in aggregated logs.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", component)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
