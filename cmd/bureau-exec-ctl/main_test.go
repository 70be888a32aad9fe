// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/bureau-exec/lib/process"
	"github.com/bureau-foundation/bureau-exec/lib/testutil"
	"github.com/bureau-foundation/bureau-exec/lib/wire"
)

func TestParseExecute(t *testing.T) {
	request, err := parseExecute([]string{
		"--name", "buildX", "--dir", "/srv/build", "--env", "CONFIGURATION=Release", "--env", "EMPTY=",
		"--", "/usr/bin/msbuild", "Agent.sln", "-t:Rebuild",
	})
	if err != nil {
		t.Fatalf("parseExecute: %v", err)
	}
	want := wire.Request{
		Kind:    wire.KindExecute,
		Name:    "buildX",
		Program: "/usr/bin/msbuild",
		Args:    []string{"Agent.sln", "-t:Rebuild"},
		Dir:     "/srv/build",
		Env:     map[string]string{"CONFIGURATION": "Release", "EMPTY": ""},
	}
	if !reflect.DeepEqual(request, want) {
		t.Errorf("request = %+v, want %+v", request, want)
	}
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no subcommand", nil},
		{"unknown subcommand", []string{"launch"}},
		{"execute without program", []string{"execute", "--name", "x"}},
		{"bad env", []string{"execute", "--env", "NOEQUALS", "/bin/true"}},
		{"parse without path", []string{"parse"}},
		{"kill with argument", []string{"kill", "now"}},
		{"unknown flag", []string{"--bogus", "kill"}},
		{"bad compression", []string{"--compression", "gzip", "build-log"}},
		{"bad color", []string{"--color", "sometimes", "tail"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := run(context.Background(), test.args, strings.NewReader(""), &bytes.Buffer{})
			var exitError *process.ExitError
			if !errors.As(err, &exitError) || exitError.ExitCode() != 2 {
				t.Errorf("run(%q) = %v, want a usage error", test.args, err)
			}
		})
	}
}

// fakeAgentChannel accepts one connection on loopback.
func fakeAgentChannel(t *testing.T) (int, <-chan net.Conn) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	accepted := make(chan net.Conn, 1)
	go func() {
		defer close(accepted)
		if conn, err := listener.Accept(); err == nil {
			accepted <- conn
		}
	}()
	t.Cleanup(func() {
		listener.Close()
		for conn := range accepted {
			conn.Close()
		}
	})
	return listener.Addr().(*net.TCPAddr).Port, accepted
}

func TestExecuteSendsCommand(t *testing.T) {
	port, accepted := fakeAgentChannel(t)
	args := []string{"--command-port", strconv.Itoa(port), "execute", "--name", "buildX", "/usr/bin/msbuild"}
	if err := run(context.Background(), args, nil, &bytes.Buffer{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	conn := testutil.RequireReceive(t, accepted, 5*time.Second)
	defer conn.Close()
	payload, err := wire.NewFrameReader(conn, 0).Next()
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	command, err := wire.DecodeCommand(payload)
	if err != nil {
		t.Fatalf("DecodeCommand: %v", err)
	}
	if command.Kind != wire.KindExecute || command.Name != "buildX" || command.Request.Program != "/usr/bin/msbuild" {
		t.Errorf("command = %+v", command)
	}
}

func TestTailPrintsEntriesUntilClose(t *testing.T) {
	port, accepted := fakeAgentChannel(t)
	go func() {
		conn, ok := <-accepted
		if !ok {
			return
		}
		defer conn.Close()
		for _, text := range []string{"Start Executing buildX", "Process msbuild with ID:4242 exited with code 0"} {
			payload, _ := wire.EncodeEntry(wire.LogEntry{Text: text, Source: wire.SourceExecutionLogger, Timestamp: time.Now()})
			wire.WriteFrame(conn, payload, wire.CompressionNone)
		}
	}()

	var output bytes.Buffer
	if err := run(context.Background(), []string{"--log-port", strconv.Itoa(port), "--color", "never", "tail"}, nil, &output); err != nil {
		t.Fatalf("run tail: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), output.String())
	}
	if !strings.Contains(lines[0], "ExecutionLogger") || !strings.Contains(lines[0], "Start Executing buildX") {
		t.Errorf("line = %q", lines[0])
	}
}

func TestBuildLogStreamsStdinLines(t *testing.T) {
	port, accepted := fakeAgentChannel(t)
	stdin := strings.NewReader("Build started.\n\nBuild succeeded.\n")
	args := []string{"--build-log-port", strconv.Itoa(port), "--compression", "lz4", "build-log"}
	if err := run(context.Background(), args, stdin, &bytes.Buffer{}); err != nil {
		t.Fatalf("run build-log: %v", err)
	}

	conn := testutil.RequireReceive(t, accepted, 5*time.Second)
	defer conn.Close()
	frames := wire.NewFrameReader(conn, 0)
	for _, want := range []string{"Build started.", "", "Build succeeded."} {
		payload, err := frames.Next()
		if err != nil {
			t.Fatalf("reading frame: %v", err)
		}
		if string(payload) != want {
			t.Errorf("payload = %q, want %q", payload, want)
		}
	}
}
