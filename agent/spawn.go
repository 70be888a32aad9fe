// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/bureau-exec/lib/wire"
)

// Spawner starts OS processes for Execute commands.
type Spawner interface {
	// Spawn starts the process described by request. When output is
	// non-nil it is called once per line the process writes to stdout
	// or stderr, from a goroutine owned by the process.
	Spawn(request wire.Request, output func(line string)) (Process, error)
}

// Process is a handle to one spawned process.
type Process interface {
	// Name is the executable's base name.
	Name() string
	PID() int

	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}

	// ExitCode is valid after Done is closed. A process terminated by
	// a signal reports -1.
	ExitCode() int

	// Kill sends SIGKILL to the process and everything it spawned. It
	// does not wait; callers wait on Done.
	Kill() error
}

// OSSpawner runs processes directly, without a shell, each in its own
// process group.
type OSSpawner struct {
	// OutputWaitDelay bounds how long reaping waits for output pipes
	// held open by orphaned descendants. Default: 1s
	OutputWaitDelay time.Duration
}

// Spawn implements Spawner.
func (s OSSpawner) Spawn(request wire.Request, output func(line string)) (Process, error) {
	cmd := exec.Command(request.Program, request.Args...)
	cmd.Dir = request.Dir
	if len(request.Env) > 0 {
		cmd.Env = os.Environ()
		for name, value := range request.Env {
			cmd.Env = append(cmd.Env, name+"="+value)
		}
	}

	// A process group lets Kill reach grandchildren too (negative PID
	// addresses the whole group).
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var lines *lineWriter
	if output != nil {
		lines = &lineWriter{emit: output}
		// Same comparable writer for both streams: exec serializes
		// the Write calls.
		cmd.Stdout = lines
		cmd.Stderr = lines
		cmd.WaitDelay = s.OutputWaitDelay
		if cmd.WaitDelay <= 0 {
			cmd.WaitDelay = time.Second
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", request.Program, err)
	}

	process := &osProcess{
		cmd:  cmd,
		name: filepath.Base(request.Program),
		done: make(chan struct{}),
	}
	go func() {
		// Exit status is in ProcessState; the error only adds
		// WaitDelay expiry or signal details.
		_ = cmd.Wait()
		if lines != nil {
			lines.flush()
		}
		process.exitCode = cmd.ProcessState.ExitCode()
		close(process.done)
	}()
	return process, nil
}

type osProcess struct {
	cmd      *exec.Cmd
	name     string
	done     chan struct{}
	exitCode int
}

func (p *osProcess) Name() string          { return p.name }
func (p *osProcess) PID() int              { return p.cmd.Process.Pid }
func (p *osProcess) Done() <-chan struct{} { return p.done }

func (p *osProcess) ExitCode() int {
	<-p.done
	return p.exitCode
}

func (p *osProcess) Kill() error {
	err := unix.Kill(-p.cmd.Process.Pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		// The group is already gone.
		return nil
	}
	return err
}

// lineWriter splits a byte stream into lines. A trailing partial line
// is held until more output arrives or flush is called.
type lineWriter struct {
	mu      sync.Mutex
	emit    func(string)
	pending []byte
}

func (w *lineWriter) Write(data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, data...)
	for {
		index := bytes.IndexByte(w.pending, '\n')
		if index < 0 {
			break
		}
		line := bytes.TrimSuffix(w.pending[:index], []byte("\r"))
		w.emit(string(line))
		w.pending = w.pending[index+1:]
	}
	return len(data), nil
}

func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) > 0 {
		w.emit(string(w.pending))
		w.pending = nil
	}
}
