// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
)

// ExitError carries a specific exit status out of run().
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the status the binary should exit with.
func (e *ExitError) ExitCode() int { return e.Code }

// Fatal writes "error: err" to stderr and exits with status 1.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// Exit terminates the process according to run()'s result: nil exits
// 0, an error with an ExitCode method exits with that code, anything
// else goes through Fatal.
func Exit(err error) {
	if err != nil && !hasExitCode(err) {
		Fatal(err)
	}
	os.Exit(report(os.Stderr, err))
}

func hasExitCode(err error) bool {
	_, ok := err.(interface{ ExitCode() int })
	return ok
}

// report writes the error (if any) and returns the exit status.
func report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	if coder, ok := err.(interface{ ExitCode() int }); ok {
		if message := err.Error(); message != "" {
			fmt.Fprintf(w, "error: %s\n", message)
		}
		return coder.ExitCode()
	}
	fmt.Fprintf(w, "error: %v\n", err)
	return 1
}
