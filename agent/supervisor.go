// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/bureau-exec/lib/clock"
	"github.com/bureau-foundation/bureau-exec/lib/wire"
)

var (
	// ErrBusy is returned by Start while a process occupies the slot.
	ErrBusy = errors.New("agent: a process is already running")

	// ErrSupervisorClosed is returned by Start after Shutdown.
	ErrSupervisorClosed = errors.New("agent: supervisor shut down")

	// ErrKillTimeout is returned by Kill when the process was signalled
	// but not reaped within the kill timeout. The slot stays occupied
	// until the process does exit.
	ErrKillTimeout = errors.New("agent: killed process did not exit in time")
)

type supervisorConfig struct {
	spawner       Spawner
	clock         clock.Clock
	logger        *slog.Logger
	hostname      string
	killTimeout   time.Duration
	captureOutput bool
	emit          func(wire.Source, string)
}

// Supervisor owns the single running-process slot. Every
// read-check-modify of the slot happens under one mutex, so Kill from
// the listener and Start from the executor never interleave.
type Supervisor struct {
	supervisorConfig

	mu      sync.Mutex
	running Process
	closed  bool

	watchers sync.WaitGroup
}

func newSupervisor(config supervisorConfig) *Supervisor {
	return &Supervisor{supervisorConfig: config}
}

// Busy reports whether a process occupies the slot.
func (s *Supervisor) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running != nil
}

// Start spawns the process for command and stores it in the slot.
func (s *Supervisor) Start(command wire.Command) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSupervisorClosed
	}
	if s.running != nil {
		return nil, ErrBusy
	}

	var output func(string)
	if s.captureOutput {
		output = func(line string) { s.emit(wire.SourceProcessOutput, line) }
	}
	process, err := s.spawner.Spawn(command.Request, output)
	if err != nil {
		return nil, err
	}
	s.running = process
	s.logger.Info("process started",
		"command", command.String(),
		"process", process.Name(),
		"pid", process.PID(),
	)

	s.watchers.Add(1)
	go s.watch(process)
	return process, nil
}

// watch frees the slot when process exits on its own. If Kill got
// there first the slot no longer holds process and watch does nothing.
func (s *Supervisor) watch(process Process) {
	defer s.watchers.Done()
	<-process.Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running != process {
		return
	}
	s.reportExit(process)
}

// reportExit clears the slot for a process that exited on its own.
// Called with mu held.
func (s *Supervisor) reportExit(process Process) {
	s.running = nil
	code := process.ExitCode()
	s.logger.Info("process exited", "process", process.Name(), "pid", process.PID(), "exit_code", code)
	s.emit(wire.SourceExecutionLogger, fmt.Sprintf("Process %s with ID:%d exited with code %d",
		process.Name(), process.PID(), code))
}

// Kill terminates the running process, waits for it to be reaped, and
// clears the slot. It reports whether there was a process to kill.
// The slot stays locked throughout, so nothing queued can start until
// the killed process is gone.
func (s *Supervisor) Kill() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killLocked()
}

func (s *Supervisor) killLocked() (bool, error) {
	process := s.running
	if process == nil {
		s.logger.Info("kill requested with no running process")
		return false, nil
	}

	select {
	case <-process.Done():
		// Exited on its own before the kill arrived. watch is waiting
		// for the lock and will find the slot already cleared.
		s.reportExit(process)
		return true, nil
	default:
	}

	if err := process.Kill(); err != nil {
		return true, fmt.Errorf("killing %s (pid %d): %w", process.Name(), process.PID(), err)
	}
	select {
	case <-process.Done():
	case <-s.clock.After(s.killTimeout):
		s.logger.Error("killed process not reaped",
			"process", process.Name(),
			"pid", process.PID(),
			"timeout", s.killTimeout,
		)
		return true, fmt.Errorf("%w: %s (pid %d) after %s", ErrKillTimeout, process.Name(), process.PID(), s.killTimeout)
	}

	s.running = nil
	message := fmt.Sprintf("Process %s with ID:%d was canceled successfully on Machine: %s",
		process.Name(), process.PID(), s.hostname)
	s.logger.Info(message)
	s.emit(wire.SourceExecutionLogger, message)
	return true, nil
}

// Shutdown refuses further Starts, kills any running process, and
// waits for every exit watcher to finish. If the kill times out the
// watcher for that process is left running and Shutdown returns the
// kill error without waiting.
func (s *Supervisor) Shutdown() error {
	s.mu.Lock()
	s.closed = true
	_, err := s.killLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.watchers.Wait()
	return nil
}
