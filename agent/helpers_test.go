// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"errors"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/bureau-exec/lib/testutil"
	"github.com/bureau-foundation/bureau-exec/lib/wire"
)

const (
	testHost    = "test-host"
	testTimeout = 5 * time.Second
)

// fakeSpawner hands out fakeProcesses that exit only when the test (or
// Kill) says so. It tracks how many are alive at once.
type fakeSpawner struct {
	mu        sync.Mutex
	nextPID   int
	active    int
	maxActive int
	failures  map[string]error

	// ignoreKill makes spawned processes survive Kill.
	ignoreKill bool

	spawned chan *fakeProcess
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{
		nextPID:  1000,
		failures: make(map[string]error),
		spawned:  make(chan *fakeProcess, 64),
	}
}

func (s *fakeSpawner) Spawn(request wire.Request, output func(string)) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[request.Program]; err != nil {
		return nil, err
	}
	s.nextPID++
	s.active++
	s.maxActive = max(s.maxActive, s.active)

	process := &fakeProcess{
		spawner:    s,
		request:    request,
		pid:        s.nextPID,
		output:     output,
		ignoreKill: s.ignoreKill,
		done:       make(chan struct{}),
	}
	s.spawned <- process
	return process, nil
}

func (s *fakeSpawner) fail(program string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[program] = err
}

func (s *fakeSpawner) maxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxActive
}

type fakeProcess struct {
	spawner    *fakeSpawner
	request    wire.Request
	pid        int
	output     func(string)
	ignoreKill bool

	killed   atomic.Bool
	once     sync.Once
	exitCode int
	done     chan struct{}
}

func (p *fakeProcess) Name() string          { return filepath.Base(p.request.Program) }
func (p *fakeProcess) PID() int              { return p.pid }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }
func (p *fakeProcess) ExitCode() int         { return p.exitCode }

func (p *fakeProcess) Kill() error {
	p.killed.Store(true)
	if !p.ignoreKill {
		p.exit(-1)
	}
	return nil
}

// exit marks the process as reaped with code.
func (p *fakeProcess) exit(code int) {
	p.once.Do(func() {
		p.spawner.mu.Lock()
		p.spawner.active--
		p.spawner.mu.Unlock()
		p.exitCode = code
		close(p.done)
	})
}

// newTestState builds a State with short intervals and registers
// teardown.
func newTestState(t *testing.T, options Options) *State {
	t.Helper()
	if options.Spawner == nil {
		options.Spawner = newFakeSpawner()
	}
	if options.Hostname == "" {
		options.Hostname = testHost
	}
	if options.PollInterval == 0 {
		options.PollInterval = time.Millisecond
	}
	if options.SendInterval == 0 {
		options.SendInterval = time.Millisecond
	}
	state := NewState(options)
	t.Cleanup(func() {
		state.Cancel(errTeardown)
		state.closeConnections()
		state.Supervisor.Shutdown()
	})
	return state
}

// loopbackListener binds an ephemeral loopback port for one channel.
func loopbackListener(t *testing.T) net.Listener {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })
	return listener
}

// runLoop starts a loop in a goroutine and returns its result channel.
func runLoop(run func() error) <-chan error {
	result := make(chan error, 1)
	go func() { result <- run() }()
	return result
}

// nextEntry pops the oldest outbound entry, waiting for one to arrive.
func nextEntry(t *testing.T, state *State) wire.LogEntry {
	t.Helper()
	var entry wire.LogEntry
	testutil.Eventually(t, testTimeout, func() bool {
		var ok bool
		entry, ok = state.Outbound.TryPop()
		return ok
	}, "waiting for an outbound log entry")
	return entry
}

// expectEntry pops the next outbound entry and checks it.
func expectEntry(t *testing.T, state *State, source wire.Source, text string) {
	t.Helper()
	entry := nextEntry(t, state)
	if entry.Source != source || entry.Text != text {
		t.Fatalf("entry = %s %q, want %s %q", entry.Source, entry.Text, source, text)
	}
}

// queueWork encodes request and pushes it onto the inbound queue as the
// listener would.
func queueWork(t *testing.T, state *State, request wire.Request) {
	t.Helper()
	raw, err := wire.EncodeCommand(request)
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	state.Inbound.Push(PendingWork{Raw: raw, Digest: wire.Fingerprint(raw)})
}

func executeRequest(name string) wire.Request {
	return wire.Request{Kind: wire.KindExecute, Name: name, Program: "/usr/bin/msbuild", Args: []string{name + ".proj"}}
}

// requireCancelled checks that a loop ended because of cancellation.
func requireCancelled(t *testing.T, err error) {
	t.Helper()
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("loop returned %v, want an error wrapping ErrCancelled", err)
	}
}
