// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/bureau-exec/lib/clock"
	"github.com/bureau-foundation/bureau-exec/lib/netutil"
	"github.com/bureau-foundation/bureau-exec/lib/queue"
	"github.com/bureau-foundation/bureau-exec/lib/wire"
)

var (
	// ErrCancelled is wrapped by every error a loop returns because the
	// iteration's cancellation signal was raised.
	ErrCancelled = errors.New("agent: iteration cancelled")

	// ErrDisconnectRequested is the cancellation cause recorded when
	// the controller sends Disconnect.
	ErrDisconnectRequested = fmt.Errorf("%w: disconnect requested", ErrCancelled)

	// ErrConnectionClosed is returned when a peer closes its channel.
	ErrConnectionClosed = errors.New("agent: connection closed by peer")

	errTeardown = fmt.Errorf("%w: iteration teardown", ErrCancelled)
)

// PendingWork is an Execute or Parse command waiting on the inbound
// queue, still in its encoded form.
type PendingWork struct {
	Raw []byte

	// Digest correlates agent log lines for the same payload.
	Digest string

	AcceptedAt time.Time
}

// Options configures one iteration's State. Zero values select the
// defaults noted on each field.
type Options struct {
	Spawner Spawner

	// Clock drives every sleep and timestamp. Default: clock.Real()
	Clock clock.Clock

	// Logger receives the agent's own diagnostics. Default: discard
	Logger *slog.Logger

	// Hostname is reported in kill messages. Default: os.Hostname
	Hostname string

	// PollInterval is the executor's sleep between queue checks.
	// Default: 10ms
	PollInterval time.Duration

	// SendInterval is the sender's sleep between queue checks.
	// Default: 50ms
	SendInterval time.Duration

	// KillTimeout bounds how long Kill waits for the process to be
	// reaped. Default: 5s
	KillTimeout time.Duration

	// CaptureOutput forwards process output lines as ProcessOutput
	// entries.
	CaptureOutput bool

	// Compression is applied to outbound log frames.
	Compression wire.Compression

	// MaxFrameBytes bounds inbound frames. Default: wire.DefaultMaxFrameBytes
	MaxFrameBytes int
}

func (o *Options) setDefaults() {
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Hostname == "" {
		o.Hostname, _ = os.Hostname()
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Millisecond
	}
	if o.SendInterval <= 0 {
		o.SendInterval = 50 * time.Millisecond
	}
	if o.KillTimeout <= 0 {
		o.KillTimeout = 5 * time.Second
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = wire.DefaultMaxFrameBytes
	}
}

// State is everything one iteration's loops share. It is built fresh
// for every iteration and never outlives it.
type State struct {
	ID uuid.UUID

	Inbound  *queue.FIFO[PendingWork]
	Outbound *queue.FIFO[wire.LogEntry]

	Supervisor *Supervisor

	options Options
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc

	// acceptMu serializes the listener's and sender's one-time
	// accepts so startup log order is deterministic.
	acceptMu sync.Mutex

	connMu   sync.Mutex
	conns    map[net.Conn]struct{}
	tornDown bool
}

// NewState builds the state for a new iteration.
func NewState(options Options) *State {
	options.setDefaults()
	id := uuid.New()
	ctx, cancel := context.WithCancelCause(context.Background())
	state := &State{
		ID:       id,
		Inbound:  queue.New[PendingWork](),
		Outbound: queue.New[wire.LogEntry](),
		options:  options,
		logger:   options.Logger.With("iteration", id.String()),
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[net.Conn]struct{}),
	}
	state.Supervisor = newSupervisor(supervisorConfig{
		spawner:       options.Spawner,
		clock:         options.Clock,
		logger:        state.logger.With("component", "supervisor"),
		hostname:      options.Hostname,
		killTimeout:   options.KillTimeout,
		captureOutput: options.CaptureOutput,
		emit:          state.Emit,
	})
	return state
}

// Err returns nil until the cancellation signal is raised, then an
// error wrapping ErrCancelled that names the cause.
func (s *State) Err() error {
	if s.ctx.Err() == nil {
		return nil
	}
	return context.Cause(s.ctx)
}

// Done is closed when the cancellation signal is raised.
func (s *State) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Cancel raises the cancellation signal and closes both queues, so no
// loop in this iteration pushes or pops again. cause must wrap
// ErrCancelled. Only the first call has any effect.
func (s *State) Cancel(cause error) {
	if s.ctx.Err() != nil {
		return
	}
	s.cancel(cause)
	discardedWork := s.Inbound.Close()
	discardedEntries := s.Outbound.Close()
	s.logger.Info("cancellation signal raised",
		"cause", cause,
		"discarded_commands", discardedWork,
		"discarded_log_entries", discardedEntries,
	)
}

// Emit pushes a log entry stamped with the current time. Entries
// emitted after cancellation are dropped.
func (s *State) Emit(source wire.Source, text string) {
	s.Outbound.Push(wire.LogEntry{
		Text:      text,
		Source:    source,
		Timestamp: s.options.Clock.Now(),
	})
}

// sleep waits for d on the clock, returning early if the iteration is
// cancelled.
func (s *State) sleep(d time.Duration) {
	select {
	case <-s.options.Clock.After(d):
	case <-s.ctx.Done():
	}
}

// acceptSerialized accepts one connection while holding the accept
// mutex.
func (s *State) acceptSerialized(listener net.Listener) (net.Conn, error) {
	s.acceptMu.Lock()
	defer s.acceptMu.Unlock()
	return s.accept(listener)
}

// accept accepts one connection and registers it for teardown.
func (s *State) accept(listener net.Listener) (net.Conn, error) {
	if err := s.Err(); err != nil {
		return nil, err
	}
	conn, err := listener.Accept()
	if err != nil {
		if cancelled := s.Err(); cancelled != nil {
			return nil, cancelled
		}
		return nil, fmt.Errorf("accepting on %s: %w", listener.Addr(), err)
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.tornDown {
		conn.Close()
		return nil, s.Err()
	}
	s.conns[conn] = struct{}{}
	return conn, nil
}

// release closes a connection obtained from accept.
func (s *State) release(conn net.Conn) {
	s.connMu.Lock()
	delete(s.conns, conn)
	s.connMu.Unlock()
	conn.Close()
}

// closeConnections closes every tracked connection, unblocking any
// loop stuck in a read or write, and refuses connections accepted from
// now on.
func (s *State) closeConnections() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.tornDown = true
	for conn := range s.conns {
		conn.Close()
		delete(s.conns, conn)
	}
}

// connectionError classifies a read or write failure on channel. After
// cancellation the failure is the teardown closing the socket, so the
// cancellation error is returned instead.
func (s *State) connectionError(channel string, err error) error {
	if cancelled := s.Err(); cancelled != nil {
		return cancelled
	}
	if netutil.IsExpectedCloseError(err) {
		return fmt.Errorf("%s channel: %w", channel, ErrConnectionClosed)
	}
	return fmt.Errorf("%s channel: %w", channel, err)
}
