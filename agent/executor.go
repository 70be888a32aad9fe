// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bureau-foundation/bureau-exec/lib/wire"
)

// ParseResultID is the result identifier reported for every Parse
// command. Results parsing happens outside the agent.
var ParseResultID = uuid.MustParse("ccb4dc49-7e20-4f12-a7b0-80cd643409af")

// RunExecutor pops queued work whenever the supervisor slot is free and
// starts it. It checks at the configured poll interval and also wakes
// early when work is pushed. It returns only when the iteration is
// cancelled.
func RunExecutor(state *State) error {
	logger := state.logger.With("component", "executor")
	logger.Info("command executor started")

	for {
		if err := state.Err(); err != nil {
			return err
		}
		if !state.Supervisor.Busy() {
			if work, ok := state.Inbound.TryPop(); ok {
				execute(state, work)
			}
		}
		select {
		case <-state.options.Clock.After(state.options.PollInterval):
		case <-state.Inbound.Notify():
		case <-state.Done():
		}
	}
}

func execute(state *State, work PendingWork) {
	logger := state.logger.With("component", "executor", "digest", work.Digest)

	command, err := wire.DecodeCommand(work.Raw)
	if err != nil {
		logger.Warn("skipping undecodable queued command", "error", err)
		return
	}
	state.Emit(wire.SourceDequeueLogger, fmt.Sprintf("Command %s Dequeued on the Agent", command))

	if command.Kind == wire.KindParse {
		logger.Info("parse requested", "results_path", command.Request.ResultsPath)
		state.Emit(wire.SourceResultsParser, ParseResultID.String())
		return
	}

	if _, err := state.Supervisor.Start(command); err != nil {
		if errors.Is(err, ErrSupervisorClosed) {
			return
		}
		logger.Error("starting command", "command", command.String(), "error", err)
		state.Emit(wire.SourceExecutionLogger, fmt.Sprintf("Failed to start %s: %v", command, err))
		return
	}
	state.Emit(wire.SourceExecutionLogger, fmt.Sprintf("Start Executing %s", command))
}
