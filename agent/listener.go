// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/bureau-foundation/bureau-exec/lib/codec"
	"github.com/bureau-foundation/bureau-exec/lib/wire"
)

// RunListener accepts the controller's command connection and
// dispatches each command frame until the connection closes or the
// iteration is cancelled. Empty and undecodable frames are ignored.
func RunListener(state *State, listener net.Listener) error {
	logger := state.logger.With("component", "listener")
	logger.Info("command listener started", "address", listener.Addr().String())

	conn, err := state.acceptSerialized(listener)
	if err != nil {
		return err
	}
	defer state.release(conn)
	logger.Info("command listener connection accepted", "remote", conn.RemoteAddr().String())

	frames := wire.NewFrameReader(conn, state.options.MaxFrameBytes)
	for {
		if err := state.Err(); err != nil {
			return err
		}

		payload, err := frames.Next()
		if err != nil {
			if errors.Is(err, wire.ErrMalformedFrame) {
				logger.Debug("ignoring malformed command frame", "error", err)
				continue
			}
			return state.connectionError("command", err)
		}

		command, err := wire.DecodeCommand(payload)
		if err != nil {
			logger.Debug("ignoring undecodable command", "error", err, "payload", describePayload(payload))
			continue
		}
		dispatch(state, logger, command)
	}
}

func dispatch(state *State, logger *slog.Logger, command wire.Command) {
	if !command.Kind.IsControl() {
		enqueue(state, logger, command)
		return
	}

	switch command.Kind {
	case wire.KindDisconnect:
		logger.Info("disconnect received")
		state.Cancel(ErrDisconnectRequested)

	case wire.KindKill:
		if _, err := state.Supervisor.Kill(); err != nil {
			logger.Error("kill failed", "error", err)
			state.Emit(wire.SourceExecutionLogger, fmt.Sprintf("Kill failed on Machine: %s: %v", state.options.Hostname, err))
		}
	}
}

func enqueue(state *State, logger *slog.Logger, command wire.Command) {
	work := PendingWork{
		Raw:        command.Raw,
		Digest:     wire.Fingerprint(command.Raw),
		AcceptedAt: state.options.Clock.Now(),
	}
	if !state.Inbound.Push(work) {
		return
	}
	logger.Info("command enqueued", "command", command.String(), "digest", work.Digest)
	state.Emit(wire.SourceDequeueLogger, fmt.Sprintf("Command %s Enqueued on the Agent", command))
}

// describePayload renders a rejected payload for debug logs: CBOR
// diagnostic notation when it parses, a byte count otherwise.
func describePayload(payload []byte) string {
	const limit = 256
	if len(payload) == 0 {
		return "empty"
	}
	if !codec.Wellformed(payload) {
		return fmt.Sprintf("%d bytes, not CBOR", len(payload))
	}
	diagnostic, err := codec.Diagnose(payload)
	if err != nil {
		return fmt.Sprintf("%d bytes", len(payload))
	}
	if len(diagnostic) > limit {
		diagnostic = diagnostic[:limit] + "..."
	}
	return diagnostic
}
