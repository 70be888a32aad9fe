// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// ParseLevel maps a configured level name to a slog.Level. The empty
// string means info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}

// New returns a logger on stderr at the named level.
func New(level string) (*slog.Logger, error) {
	parsed, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(newHandler(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), parsed)), nil
}

func newHandler(w io.Writer, interactive bool, level slog.Level) slog.Handler {
	options := &slog.HandlerOptions{Level: level}
	if interactive {
		return slog.NewTextHandler(w, options)
	}
	return slog.NewJSONHandler(w, options)
}

// Discard returns a logger that drops everything. Tests use it when the
// component under test requires a logger but the output is irrelevant.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
