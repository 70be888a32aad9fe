// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// bureau-exec-ctl drives a bureau-exec-agent from the command line.
//
//	bureau-exec-ctl [flags] execute [--name N] [--dir D] [--env K=V]... -- PROGRAM [ARG...]
//	bureau-exec-ctl [flags] parse [--name N] RESULTS_PATH
//	bureau-exec-ctl [flags] kill
//	bureau-exec-ctl [flags] disconnect
//	bureau-exec-ctl [flags] tail
//	bureau-exec-ctl [flags] build-log < build-output.txt
//
// Commands are fire-and-forget: the agent answers only on its log
// channel, which tail follows until the agent closes it.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/bureau-exec/lib/config"
	"github.com/bureau-foundation/bureau-exec/lib/controller"
	"github.com/bureau-foundation/bureau-exec/lib/process"
	"github.com/bureau-foundation/bureau-exec/lib/version"
	"github.com/bureau-foundation/bureau-exec/lib/wire"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	process.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout))
}

// endpoints holds the agent's channel addresses.
type endpoints struct {
	host         string
	commandPort  int
	logPort      int
	buildLogPort int
	compression  string
	color        string
}

func (e endpoints) address(port int) string {
	return net.JoinHostPort(e.host, strconv.Itoa(port))
}

func usageError(format string, args ...any) error {
	return &process.ExitError{Code: 2, Err: fmt.Errorf(format, args...)}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	defaults := config.Default().Channels
	agent := endpoints{host: "127.0.0.1"}

	flagSet := pflag.NewFlagSet("bureau-exec-ctl", pflag.ContinueOnError)
	flagSet.StringVar(&agent.host, "host", agent.host, "agent host")
	flagSet.IntVar(&agent.commandPort, "command-port", defaults.Command.Port, "agent command channel port")
	flagSet.IntVar(&agent.logPort, "log-port", defaults.Log.Port, "agent log channel port")
	flagSet.IntVar(&agent.buildLogPort, "build-log-port", defaults.BuildLog.Port, "agent build-log channel port")
	flagSet.StringVar(&agent.compression, "compression", "none", "compression for build-log frames (none, lz4, zstd)")
	flagSet.StringVar(&agent.color, "color", "auto", "colorize tail output (auto, always, never)")
	showVersion := flagSet.Bool("version", false, "print version information and exit")
	flagSet.SetInterspersed(false)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return &process.ExitError{Code: 2, Err: err}
	}
	if *showVersion {
		version.Print(stdout, "bureau-exec-ctl")
		return nil
	}
	if flagSet.NArg() == 0 {
		return usageError("missing subcommand (execute, parse, kill, disconnect, tail, build-log)")
	}

	subcommand, rest := flagSet.Arg(0), flagSet.Args()[1:]
	switch subcommand {
	case "execute":
		request, err := parseExecute(rest)
		if err != nil {
			return err
		}
		return sendCommand(ctx, agent, request)
	case "parse":
		request, err := parseParse(rest)
		if err != nil {
			return err
		}
		return sendCommand(ctx, agent, request)
	case "kill", "disconnect":
		if len(rest) > 0 {
			return usageError("%s takes no arguments", subcommand)
		}
		kind := wire.KindKill
		if subcommand == "disconnect" {
			kind = wire.KindDisconnect
		}
		return sendCommand(ctx, agent, wire.Request{Kind: kind})
	case "tail":
		if len(rest) > 0 {
			return usageError("tail takes no arguments")
		}
		return tail(ctx, agent, stdout)
	case "build-log":
		return streamBuildLog(ctx, agent, stdin)
	default:
		return usageError("unknown subcommand %q", subcommand)
	}
}

func parseExecute(args []string) (wire.Request, error) {
	var name, dir string
	var env []string
	flagSet := pflag.NewFlagSet("execute", pflag.ContinueOnError)
	flagSet.StringVar(&name, "name", "", "label for log entries (default: program base name)")
	flagSet.StringVar(&dir, "dir", "", "working directory on the agent")
	flagSet.StringArrayVar(&env, "env", nil, "extra environment variable KEY=VALUE (repeatable)")
	if err := flagSet.Parse(args); err != nil {
		return wire.Request{}, &process.ExitError{Code: 2, Err: err}
	}
	if flagSet.NArg() == 0 {
		return wire.Request{}, usageError("execute needs a program")
	}

	request := wire.Request{
		Kind:    wire.KindExecute,
		Name:    name,
		Program: flagSet.Arg(0),
		Args:    flagSet.Args()[1:],
		Dir:     dir,
	}
	for _, assignment := range env {
		key, value, ok := strings.Cut(assignment, "=")
		if !ok || key == "" {
			return wire.Request{}, usageError("--env %q: want KEY=VALUE", assignment)
		}
		if request.Env == nil {
			request.Env = make(map[string]string)
		}
		request.Env[key] = value
	}
	return request, nil
}

func parseParse(args []string) (wire.Request, error) {
	var name string
	flagSet := pflag.NewFlagSet("parse", pflag.ContinueOnError)
	flagSet.StringVar(&name, "name", "", "label for log entries")
	if err := flagSet.Parse(args); err != nil {
		return wire.Request{}, &process.ExitError{Code: 2, Err: err}
	}
	if flagSet.NArg() != 1 {
		return wire.Request{}, usageError("parse needs exactly one results path")
	}
	return wire.Request{Kind: wire.KindParse, Name: name, ResultsPath: flagSet.Arg(0)}, nil
}

func sendCommand(ctx context.Context, agent endpoints, request wire.Request) error {
	conn, err := controller.DialCommand(ctx, agent.address(agent.commandPort))
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.Send(request)
}

func tail(ctx context.Context, agent endpoints, stdout io.Writer) error {
	styles, err := newSourceStyles(stdout, agent.color)
	if err != nil {
		return usageError("%v", err)
	}
	stream, err := controller.DialLog(ctx, agent.address(agent.logPort), 0)
	if err != nil {
		return err
	}
	defer stream.Close()
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()

	for {
		entry, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading log channel: %w", err)
		}
		fmt.Fprintln(stdout, styles.render(entry))
	}
}

func streamBuildLog(ctx context.Context, agent endpoints, stdin io.Reader) error {
	compression, err := wire.ParseCompression(agent.compression)
	if err != nil {
		return usageError("%v", err)
	}
	conn, err := controller.DialBuildLog(ctx, agent.address(agent.buildLogPort), compression)
	if err != nil {
		return err
	}
	defer conn.Close()

	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 64*1024), wire.DefaultMaxFrameBytes)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if err := conn.Send(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}
