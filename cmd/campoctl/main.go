// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// campoctl is the operator CLI: build mosaic manifests, inspect them,
// and run scene cache maintenance without going through the tileserver.
package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/pkg/logging"
)

func main() {
	logger := logging.New(logging.Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: logging.FormatText,
		Output: os.Stderr,
	})
	slog.SetDefault(logger)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
