// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides bounded waits for tests that exercise
// goroutines and sockets. Every helper fails the test instead of
// hanging when the awaited event never happens.
package testutil
