// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the slog.Logger shared by the bureau-exec
// binaries. Interactive stderr gets slog.TextHandler; anything else
// (systemd, a pipe, a test harness) gets slog.JSONHandler.
package logging
