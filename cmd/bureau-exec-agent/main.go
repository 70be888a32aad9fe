// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// bureau-exec-agent is the remote execution agent. It listens on three
// TCP channels (commands, log, build log), runs commands one at a time,
// and restarts itself from scratch whenever an iteration ends.
//
// Configuration comes from the file named by --config or
// BUREAU_EXEC_CONFIG and is reread at the start of every iteration.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/bureau-exec/agent"
	"github.com/bureau-foundation/bureau-exec/lib/config"
	"github.com/bureau-foundation/bureau-exec/lib/logging"
	"github.com/bureau-foundation/bureau-exec/lib/process"
	"github.com/bureau-foundation/bureau-exec/lib/version"
)

func main() {
	process.Exit(run(os.Args[1:]))
}

func run(args []string) error {
	var configPath, logLevel string
	var checkOnly, showVersion bool

	flagSet := pflag.NewFlagSet("bureau-exec-agent", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to the agent config file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&logLevel, "log-level", "", "override logging.level from the config file")
	flagSet.BoolVar(&checkOnly, "check", false, "validate the config file and exit")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return &process.ExitError{Code: 2, Err: err}
	}
	if showVersion {
		version.Print(os.Stdout, "bureau-exec-agent")
		return nil
	}
	if flagSet.NArg() > 0 {
		return &process.ExitError{Code: 2, Err: fmt.Errorf("unexpected arguments: %q", flagSet.Args())}
	}

	load := config.Loader(config.Load)
	if configPath != "" {
		load = config.FileLoader(configPath)
	} else {
		configPath = os.Getenv(config.EnvironmentVariable)
	}

	// Load once up front so a broken file fails fast instead of
	// looping on restart, and so the log level is known.
	cfg, err := load()
	if err != nil {
		return err
	}
	if checkOnly {
		fmt.Printf("%s: ok\n", configPath)
		return nil
	}

	if logLevel == "" {
		logLevel = cfg.Logging.Level
	}
	logger, err := logging.New(logLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("agent starting", "version", version.Info(), "config", configPath, "pid", os.Getpid())
	daemon := &agent.Daemon{
		Load:    load,
		Spawner: agent.OSSpawner{},
		Logger:  logger,
	}
	return daemon.Run(ctx)
}
