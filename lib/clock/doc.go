// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by the agent's
// polling loops.
//
// The executor and log sender sleep a fixed interval between polls, the
// process supervisor bounds how long it waits for a killed process to be
// reaped, and the daemon waits between iterations. All of these take a
// Clock instead of calling the time package directly. Production code
// passes Real(); tests pass Fake() and drive time with Advance.
//
// # FakeClock Synchronization
//
// A goroutine calling Sleep or After on a FakeClock registers a pending
// waiter. Tests call WaitForTimers before Advance so the advance cannot
// race ahead of the registration:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go sender.run(c)
//	c.WaitForTimers(1)
//	c.Advance(50 * time.Millisecond)
package clock
