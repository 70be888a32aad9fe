// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the bureau-exec
// binaries. Release builds inject the variables with -ldflags -X;
// development builds fall back to the module build info recorded by
// the Go toolchain.
package version
