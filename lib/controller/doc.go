// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package controller is the client side of the agent's three channels.
// [DialCommand] sends commands, [DialLog] reads the agent's log
// stream, and [DialBuildLog] streams build-tool output into the agent.
//
// The agent accepts exactly one connection per channel per iteration.
// After a Disconnect the agent tears the iteration down and the
// client must redial every channel.
package controller
