// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

// Package invoke runs external toolchain binaries and returns
// structured results. Every subprocess pybundle spawns (interpreter,
// pip, pyinstaller) goes through the [Runner] interface, so the
// bootstrap state machine can be exercised in tests with a [Fake]
// instead of real tool processes.
package invoke

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Spec describes a single tool invocation.
type Spec struct {
	// Binary is the absolute path of the binary to run.
	Binary string

	// Args are the arguments, not including the binary name.
	Args []string

	// Dir is the working directory. Empty means the current process
	// working directory (callers always set this — pybundle threads
	// explicit paths instead of relying on ambient CWD).
	Dir string

	// Env contains extra environment entries in KEY=VALUE form,
	// appended to the process environment. Used to inject
	// VIRTUAL_ENV and a restricted PATH for environment binaries.
	Env []string
}

// Command returns the invocation formatted as a shell-style command
// line, for error messages and logs.
func (s Spec) Command() string {
	return s.Binary + " " + strings.Join(s.Args, " ")
}

// Result holds the captured output of a completed invocation.
type Result struct {
	// Stdout is the captured standard output.
	Stdout string

	// Stderr is the captured standard error. Python tooling writes
	// its diagnostics here.
	Stderr string

	// ExitCode is the tool's exit status. Zero on success.
	ExitCode int
}

// Error reports a tool that ran and exited non-zero, or could not be
// started at all. The message prefers the tool's stderr text over the
// generic exec error — pip and pyinstaller put the actual diagnosis
// there.
type Error struct {
	// Spec is the invocation that failed.
	Spec Spec

	// Code is the tool's exit status, or -1 if it never started.
	Code int

	// Stderr is the captured standard error text, trimmed.
	Stderr string

	// Err is the underlying exec error.
	Err error
}

func (e *Error) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %s", e.Spec.Command(), e.Stderr)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Spec.Command(), e.Err)
	}
	return fmt.Sprintf("%s: exit status %d", e.Spec.Command(), e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// ExitCode returns the failing tool's exit status. The CLI entrypoint
// walks the error chain for this interface so that the process exit
// code matches whichever step first failed.
func (e *Error) ExitCode() int {
	if e.Code > 0 {
		return e.Code
	}
	return 1
}

// Runner executes tool invocations. Production code uses [Exec];
// tests inject a [Fake].
type Runner interface {
	// Run executes the invocation and blocks until the tool exits.
	// A non-zero exit returns a *Error (with the Result still
	// populated, so callers can inspect partial output).
	Run(ctx context.Context, spec Spec) (Result, error)
}

// Exec is the production [Runner]: it spawns the binary with os/exec,
// captures stdout and stderr, and blocks until exit.
type Exec struct {
	// Stream, when set, additionally copies the tool's output to the
	// process's own stdout/stderr as it runs. Long installs and
	// bundler runs are silent for minutes otherwise.
	Stream bool
}

// Run implements [Runner].
func (e Exec) Run(ctx context.Context, spec Spec) (Result, error) {
	var stdout, stderr bytes.Buffer

	command := exec.CommandContext(ctx, spec.Binary, spec.Args...)
	command.Dir = spec.Dir
	if len(spec.Env) > 0 {
		command.Env = append(os.Environ(), spec.Env...)
	}
	if e.Stream {
		command.Stdout = io.MultiWriter(&stdout, os.Stdout)
		command.Stderr = io.MultiWriter(&stderr, os.Stderr)
	} else {
		command.Stdout = &stdout
		command.Stderr = &stderr
	}

	err := command.Run()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, &Error{
			Spec:   spec,
			Code:   result.ExitCode,
			Stderr: strings.TrimSpace(result.Stderr),
			Err:    err,
		}
	}
	return result, nil
}
