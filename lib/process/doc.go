// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helpers shared by the agent and
// controller binaries: reporting an error from run() before (or
// instead of) the structured logger, and turning it into an exit code.
//
//	func main() {
//	    process.Exit(run())
//	}
package process
