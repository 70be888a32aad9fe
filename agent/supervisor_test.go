// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/bureau-exec/lib/clock"
	"github.com/bureau-foundation/bureau-exec/lib/testutil"
	"github.com/bureau-foundation/bureau-exec/lib/wire"
)

func startCommand(t *testing.T, supervisor *Supervisor, name string) *fakeProcess {
	t.Helper()
	raw, err := wire.EncodeCommand(executeRequest(name))
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	command, err := wire.DecodeCommand(raw)
	if err != nil {
		t.Fatalf("DecodeCommand: %v", err)
	}
	process, err := supervisor.Start(command)
	if err != nil {
		t.Fatalf("Start(%s): %v", name, err)
	}
	return process.(*fakeProcess)
}

func TestSupervisorSingleFlight(t *testing.T) {
	spawner := newFakeSpawner()
	state := newTestState(t, Options{Spawner: spawner})
	supervisor := state.Supervisor

	first := startCommand(t, supervisor, "buildX")
	if !supervisor.Busy() {
		t.Fatal("Busy() = false with a running process")
	}

	command, _ := wire.DecodeCommand(mustEncode(t, executeRequest("buildY")))
	if _, err := supervisor.Start(command); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Start = %v, want ErrBusy", err)
	}

	first.exit(0)
	expectEntry(t, state, wire.SourceExecutionLogger, "Process msbuild with ID:1001 exited with code 0")
	if supervisor.Busy() {
		t.Fatal("slot still occupied after exit was reported")
	}

	startCommand(t, supervisor, "buildY")
	if got := spawner.maxConcurrent(); got != 1 {
		t.Errorf("max concurrent processes = %d, want 1", got)
	}
}

func TestSupervisorKillClearsSlotBeforeReturning(t *testing.T) {
	state := newTestState(t, Options{})
	supervisor := state.Supervisor
	process := startCommand(t, supervisor, "buildX")

	killed, err := supervisor.Kill()
	if err != nil || !killed {
		t.Fatalf("Kill() = %v, %v", killed, err)
	}
	if !process.killed.Load() {
		t.Error("process was not signalled")
	}
	testutil.RequireClosed(t, process.Done(), testTimeout, "killed process reaped")
	if supervisor.Busy() {
		t.Error("slot occupied after Kill returned")
	}
	expectEntry(t, state, wire.SourceExecutionLogger,
		"Process msbuild with ID:1001 was canceled successfully on Machine: test-host")

	// The exit watcher must not report a second time.
	if err := supervisor.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if entry, ok := state.Outbound.TryPop(); ok {
		t.Errorf("unexpected entry after kill: %q", entry.Text)
	}
}

func TestSupervisorKillWithoutProcess(t *testing.T) {
	state := newTestState(t, Options{})
	killed, err := state.Supervisor.Kill()
	if killed || err != nil {
		t.Errorf("Kill() = %v, %v, want false, nil", killed, err)
	}
	if state.Outbound.Len() != 0 {
		t.Error("Kill with nothing running emitted an entry")
	}
}

func TestSupervisorKillOfExitedProcessReportsExit(t *testing.T) {
	state := newTestState(t, Options{})
	process := startCommand(t, state.Supervisor, "buildX")

	// Hold the slot lock so the watcher cannot clear it first.
	state.Supervisor.mu.Lock()
	process.exit(2)
	killed, err := state.Supervisor.killLocked()
	state.Supervisor.mu.Unlock()

	if !killed || err != nil {
		t.Fatalf("killLocked() = %v, %v", killed, err)
	}
	if process.killed.Load() {
		t.Error("exited process was signalled")
	}
	expectEntry(t, state, wire.SourceExecutionLogger, "Process msbuild with ID:1001 exited with code 2")
}

func TestSupervisorKillTimeoutKeepsSlot(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	spawner := newFakeSpawner()
	spawner.ignoreKill = true
	state := newTestState(t, Options{Spawner: spawner, Clock: fake, KillTimeout: 5 * time.Second})
	process := startCommand(t, state.Supervisor, "buildX")

	result := runLoop(func() error {
		_, err := state.Supervisor.Kill()
		return err
	})
	fake.WaitForTimers(1)
	fake.Advance(5 * time.Second)

	if err := testutil.RequireReceive(t, result, testTimeout); !errors.Is(err, ErrKillTimeout) {
		t.Fatalf("Kill() = %v, want ErrKillTimeout", err)
	}
	if !state.Supervisor.Busy() {
		t.Fatal("slot freed while the process is still alive")
	}

	process.exit(-1)
	testutil.Eventually(t, testTimeout, func() bool { return !state.Supervisor.Busy() },
		"slot freed once the process finally exits")
}

func TestSupervisorSpawnFailureLeavesSlotFree(t *testing.T) {
	spawner := newFakeSpawner()
	spawnErr := errors.New("exec: \"msbuild\": executable file not found in $PATH")
	spawner.fail("/usr/bin/msbuild", spawnErr)
	state := newTestState(t, Options{Spawner: spawner})

	command, _ := wire.DecodeCommand(mustEncode(t, executeRequest("buildX")))
	if _, err := state.Supervisor.Start(command); !errors.Is(err, spawnErr) {
		t.Fatalf("Start = %v, want spawn error", err)
	}
	if state.Supervisor.Busy() {
		t.Error("slot occupied after failed spawn")
	}
}

func TestSupervisorShutdownKillsAndRefuses(t *testing.T) {
	state := newTestState(t, Options{})
	process := startCommand(t, state.Supervisor, "buildX")

	if err := state.Supervisor.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !process.killed.Load() {
		t.Error("running process survived Shutdown")
	}

	command, _ := wire.DecodeCommand(mustEncode(t, executeRequest("buildY")))
	if _, err := state.Supervisor.Start(command); !errors.Is(err, ErrSupervisorClosed) {
		t.Errorf("Start after Shutdown = %v, want ErrSupervisorClosed", err)
	}
}

func TestSupervisorCapturesOutput(t *testing.T) {
	state := newTestState(t, Options{CaptureOutput: true})
	process := startCommand(t, state.Supervisor, "buildX")
	if process.output == nil {
		t.Fatal("no output callback with CaptureOutput set")
	}

	process.output("Build succeeded.")
	expectEntry(t, state, wire.SourceProcessOutput, "Build succeeded.")
}

func mustEncode(t *testing.T, request wire.Request) []byte {
	t.Helper()
	raw, err := wire.EncodeCommand(request)
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	return raw
}
