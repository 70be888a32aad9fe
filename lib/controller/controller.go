// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/bureau-foundation/bureau-exec/lib/wire"
)

func dial(ctx context.Context, channel, address string) (net.Conn, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s channel at %s: %w", channel, address, err)
	}
	return conn, nil
}

// CommandConn sends commands to the agent. Safe for concurrent use.
type CommandConn struct {
	mu   sync.Mutex
	conn net.Conn
}

// DialCommand connects to the agent's command channel.
func DialCommand(ctx context.Context, address string) (*CommandConn, error) {
	conn, err := dial(ctx, "command", address)
	if err != nil {
		return nil, err
	}
	return &CommandConn{conn: conn}, nil
}

// Send encodes and sends one command.
func (c *CommandConn) Send(request wire.Request) error {
	payload, err := wire.EncodeCommand(request)
	if err != nil {
		return err
	}
	return c.SendRaw(payload)
}

// Execute asks the agent to run program with args.
func (c *CommandConn) Execute(name, program string, args ...string) error {
	return c.Send(wire.Request{Kind: wire.KindExecute, Name: name, Program: program, Args: args})
}

// Kill asks the agent to terminate its running process.
func (c *CommandConn) Kill() error {
	return c.Send(wire.Request{Kind: wire.KindKill})
}

// Disconnect ends the agent's current iteration.
func (c *CommandConn) Disconnect() error {
	return c.Send(wire.Request{Kind: wire.KindDisconnect})
}

// SendRaw frames payload as-is. The agent ignores payloads that do not
// decode as a command.
func (c *CommandConn) SendRaw(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wire.WriteFrame(c.conn, payload, wire.CompressionNone)
}

// Close closes the connection.
func (c *CommandConn) Close() error {
	return c.conn.Close()
}

// LogStream reads log entries from the agent. Not safe for concurrent
// use.
type LogStream struct {
	conn   net.Conn
	frames *wire.FrameReader
}

// DialLog connects to the agent's log channel. maxFrameBytes of zero
// selects wire.DefaultMaxFrameBytes.
func DialLog(ctx context.Context, address string, maxFrameBytes int) (*LogStream, error) {
	conn, err := dial(ctx, "log", address)
	if err != nil {
		return nil, err
	}
	return &LogStream{conn: conn, frames: wire.NewFrameReader(conn, maxFrameBytes)}, nil
}

// Next blocks for the next entry. It returns io.EOF once the agent
// closes the channel.
func (s *LogStream) Next() (wire.LogEntry, error) {
	payload, err := s.frames.Next()
	if err != nil {
		return wire.LogEntry{}, err
	}
	return wire.DecodeEntry(payload)
}

// Close closes the connection.
func (s *LogStream) Close() error {
	return s.conn.Close()
}

// BuildLogConn streams build-tool messages into the agent.
type BuildLogConn struct {
	mu          sync.Mutex
	conn        net.Conn
	compression wire.Compression
}

// DialBuildLog connects to the agent's build-log channel.
func DialBuildLog(ctx context.Context, address string, compression wire.Compression) (*BuildLogConn, error) {
	conn, err := dial(ctx, "build log", address)
	if err != nil {
		return nil, err
	}
	return &BuildLogConn{conn: conn, compression: compression}, nil
}

// Send forwards one message. The agent relays it unchanged.
func (c *BuildLogConn) Send(message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wire.WriteFrame(c.conn, []byte(message), c.compression)
}

// Close closes the connection.
func (c *BuildLogConn) Close() error {
	return c.conn.Close()
}
