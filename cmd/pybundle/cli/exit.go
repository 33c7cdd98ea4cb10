// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
)

// ExitError signals a non-zero exit code without printing an extra
// error message. When a command handler returns an ExitError, main
// exits with the specified code without printing the error string;
// the command is expected to have already written its own output.
//
// Used where a non-zero exit is a valid outcome rather than an
// unexpected error, such as "status" reporting an unhealthy
// environment.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. main checks for this interface on
// returned errors to distinguish "handled non-zero exit" from
// "unexpected error to display".
func (e *ExitError) ExitCode() int {
	return e.Code
}

// ResolveExitCode walks the error chain for an exit-code carrier and
// returns its code, or 1 for any other non-nil error. External tool
// failures carry the tool's own exit status this way, so a failed pip
// resolve or bundler run propagates its exit code to the shell.
func ResolveExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return 1
}
