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
	"time"

	"github.com/bureau-foundation/bureau-exec/lib/clock"
	"github.com/bureau-foundation/bureau-exec/lib/config"
	"github.com/bureau-foundation/bureau-exec/lib/wire"
)

// Channel names one of the agent's three listening channels.
type Channel string

const (
	ChannelCommand  Channel = "command"
	ChannelLog      Channel = "log"
	ChannelBuildLog Channel = "build_log"
)

// ListenFunc binds the listener for one channel.
type ListenFunc func(ctx context.Context, channel Channel, address config.ChannelAddress) (net.Listener, error)

// ListenTCP is the default ListenFunc.
func ListenTCP(ctx context.Context, channel Channel, address config.ChannelAddress) (net.Listener, error) {
	var listenConfig net.ListenConfig
	listener, err := listenConfig.Listen(ctx, "tcp", address.String())
	if err != nil {
		return nil, fmt.Errorf("binding %s channel: %w", channel, err)
	}
	return listener, nil
}

// Daemon runs agent iterations until its context is cancelled. Every
// iteration reloads configuration and starts from an empty State.
type Daemon struct {
	// Load is called at the start of every iteration.
	Load config.Loader

	Spawner Spawner

	// Listen defaults to ListenTCP.
	Listen ListenFunc

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to discarding.
	Logger *slog.Logger

	// Hostname defaults to os.Hostname.
	Hostname string
}

// Run loops until ctx is cancelled, then tears down the current
// iteration and returns nil. Iteration failures are logged, never
// returned.
func (d *Daemon) Run(ctx context.Context) error {
	d.setDefaults()
	for iteration := 1; ; iteration++ {
		restartDelay := d.iterate(ctx, iteration)
		if ctx.Err() != nil {
			d.Logger.Info("agent stopped")
			return nil
		}

		d.Logger.Info("restarting agent", "delay", restartDelay)
		select {
		case <-d.Clock.After(restartDelay):
		case <-ctx.Done():
			d.Logger.Info("agent stopped")
			return nil
		}
	}
}

func (d *Daemon) setDefaults() {
	if d.Listen == nil {
		d.Listen = ListenTCP
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.Spawner == nil {
		d.Spawner = OSSpawner{}
	}
	if d.Hostname == "" {
		d.Hostname, _ = os.Hostname()
	}
}

type taskResult struct {
	name string
	err  error
}

// iterate runs one iteration to completion and returns the delay
// before the next.
func (d *Daemon) iterate(ctx context.Context, iteration int) time.Duration {
	restartDelay := config.Default().Supervisor.RestartDelay.Std()

	cfg, err := d.Load()
	if err != nil {
		d.Logger.Error("loading configuration", "iteration", iteration, "error", err)
		return restartDelay
	}
	restartDelay = cfg.Supervisor.RestartDelay.Std()

	compression, err := wire.ParseCompression(cfg.Log.Compression)
	if err != nil {
		d.Logger.Error("invalid log compression", "iteration", iteration, "error", err)
		return restartDelay
	}

	state := NewState(Options{
		Spawner:       d.Spawner,
		Clock:         d.Clock,
		Logger:        d.Logger,
		Hostname:      d.Hostname,
		PollInterval:  cfg.Executor.PollInterval.Std(),
		SendInterval:  cfg.Sender.Interval.Std(),
		KillTimeout:   cfg.Executor.KillTimeout.Std(),
		CaptureOutput: cfg.Executor.CaptureOutput,
		Compression:   compression,
		MaxFrameBytes: cfg.Log.MaxFrameBytes,
	})
	logger := state.logger
	logger.Info("agent settings initialized",
		"count", iteration,
		"command", cfg.Channels.Command.String(),
		"log", cfg.Channels.Log.String(),
		"build_log", cfg.Channels.BuildLog.String(),
	)

	listeners, err := d.bind(ctx, cfg.Channels)
	if err != nil {
		logger.Error("binding channels", "error", err)
		state.Cancel(errTeardown)
		return restartDelay
	}

	tasks := []struct {
		name string
		run  func() error
	}{
		{"command listener", func() error { return RunListener(state, listeners[ChannelCommand]) }},
		{"log sender", func() error { return RunSender(state, listeners[ChannelLog]) }},
		{"command executor", func() error { return RunExecutor(state) }},
		{"build log relay", func() error { return RunRelay(state, listeners[ChannelBuildLog]) }},
	}
	results := make(chan taskResult, len(tasks))
	for _, task := range tasks {
		go func() {
			results <- taskResult{name: task.name, err: task.run()}
		}()
	}

	remaining := len(tasks)
	select {
	case first := <-results:
		remaining--
		logTaskResult(logger, first)
	case <-ctx.Done():
		logger.Info("shutdown requested", "cause", context.Cause(ctx))
	}

	// Teardown: raise the signal, then unblock every accept and read.
	state.Cancel(errTeardown)
	for _, listener := range listeners {
		listener.Close()
	}
	state.closeConnections()
	if err := state.Supervisor.Shutdown(); err != nil {
		logger.Error("stopping running process", "error", err)
	}

	for ; remaining > 0; remaining-- {
		logTaskResult(logger, <-results)
	}
	logger.Info("iteration ended")
	return restartDelay
}

// bind opens all three listeners or none.
func (d *Daemon) bind(ctx context.Context, channels config.ChannelsConfig) (map[Channel]net.Listener, error) {
	addresses := []struct {
		channel Channel
		address config.ChannelAddress
	}{
		{ChannelCommand, channels.Command},
		{ChannelLog, channels.Log},
		{ChannelBuildLog, channels.BuildLog},
	}
	listeners := make(map[Channel]net.Listener, len(addresses))
	for _, entry := range addresses {
		listener, err := d.Listen(ctx, entry.channel, entry.address)
		if err != nil {
			for _, opened := range listeners {
				opened.Close()
			}
			return nil, err
		}
		listeners[entry.channel] = listener
	}
	return listeners, nil
}

func logTaskResult(logger *slog.Logger, result taskResult) {
	switch {
	case result.err == nil:
		logger.Info("task ended", "task", result.name)
	case errors.Is(result.err, ErrCancelled):
		logger.Info("task ended", "task", result.name, "reason", result.err)
	case errors.Is(result.err, ErrConnectionClosed):
		logger.Warn("task ended", "task", result.name, "reason", result.err)
	default:
		logger.Error("task failed", "task", result.name, "error", result.err)
	}
}
