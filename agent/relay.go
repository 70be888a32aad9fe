// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"errors"
	"net"
	"strings"

	"github.com/bureau-foundation/bureau-exec/lib/wire"
)

// RunRelay accepts a build tool's connection and forwards every frame
// it sends onto the outbound queue as a BuildLogger entry, in receipt
// order. Empty frames are forwarded as empty entries.
func RunRelay(state *State, listener net.Listener) error {
	logger := state.logger.With("component", "relay")
	logger.Info("build log relay started", "address", listener.Addr().String())

	// The relay accepts independently of the listener and sender; a
	// build tool that never connects must not hold up the controller.
	conn, err := state.accept(listener)
	if err != nil {
		return err
	}
	defer state.release(conn)
	logger.Info("build log relay connection accepted", "remote", conn.RemoteAddr().String())

	frames := wire.NewFrameReader(conn, state.options.MaxFrameBytes)
	for {
		if err := state.Err(); err != nil {
			return err
		}

		payload, err := frames.Next()
		if err != nil {
			if errors.Is(err, wire.ErrMalformedFrame) {
				logger.Warn("skipping malformed build log frame", "error", err)
				continue
			}
			return state.connectionError("build log", err)
		}

		// Log entries carry CBOR text, which must be valid UTF-8.
		state.Emit(wire.SourceBuildLogger, strings.ToValidUTF8(string(payload), "�"))
	}
}
