// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the remote execution agent: a daemon that
// accepts commands from a controller, runs them one at a time as OS
// processes, and streams status back.
//
// Each iteration of [Daemon.Run] builds a fresh [State] and runs four
// loops against it:
//
//   - [RunListener] reads command frames. Execute and Parse are queued
//     on the inbound FIFO; Kill and Disconnect act on receipt.
//   - [RunExecutor] pops queued work whenever the [Supervisor] slot is
//     free and starts it.
//   - [RunSender] drains the outbound FIFO onto the log connection at a
//     fixed cadence.
//   - [RunRelay] forwards build-tool output onto the outbound FIFO.
//
// The first loop to return ends the iteration. Teardown raises the
// iteration's cancellation signal, closes every listener and
// connection, kills the running process, waits for the remaining
// loops, and the daemon starts over with nothing carried across.
//
// Cancellation is cooperative: loops check [State.Err] at each loop
// boundary. A loop blocked in a read only returns when teardown closes
// its connection. A loop that ends because of cancellation returns an
// error wrapping [ErrCancelled]; anything else is a fault.
package agent
