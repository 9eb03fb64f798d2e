// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sigil-dev/warden/internal/config"
)

// newLogger builds the process logger from cfg. verbose forces debug. A nil
// w writes to stderr so command output on stdout stays clean.
func newLogger(cfg config.LoggingConfig, verbose bool, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
