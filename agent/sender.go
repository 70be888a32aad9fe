// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"net"

	"github.com/bureau-foundation/bureau-exec/lib/wire"
)

// RunSender accepts the controller's log connection and writes one
// outbound entry per send interval. It sleeps the full interval whether
// or not an entry was sent.
func RunSender(state *State, listener net.Listener) error {
	logger := state.logger.With("component", "sender")
	logger.Info("log sender started", "address", listener.Addr().String())

	conn, err := state.acceptSerialized(listener)
	if err != nil {
		return err
	}
	defer state.release(conn)
	logger.Info("log sender connection accepted", "remote", conn.RemoteAddr().String())

	for {
		if err := state.Err(); err != nil {
			return err
		}

		if entry, ok := state.Outbound.TryPop(); ok {
			payload, err := wire.EncodeEntry(entry)
			if err != nil {
				logger.Error("dropping unencodable log entry", "source", entry.Source, "error", err)
			} else if err := wire.WriteFrame(conn, payload, state.options.Compression); err != nil {
				return state.connectionError("log", err)
			}
		}

		state.sleep(state.options.SendInterval)
	}
}
