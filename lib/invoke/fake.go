// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

package invoke

import (
	"context"
	"strings"
	"sync"
)

// Fake is a [Runner] for tests. It records every invocation and
// answers from a handler function, so pipeline and command tests run
// without spawning real tool processes.
//
// The zero value succeeds every invocation with empty output.
type Fake struct {
	// Handler produces the result for each invocation. Nil means
	// unconditional success with an empty Result.
	Handler func(spec Spec) (Result, error)

	mu    sync.Mutex
	calls []Spec
}

// Run implements [Runner].
func (f *Fake) Run(ctx context.Context, spec Spec) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1}, err
	}

	f.mu.Lock()
	f.calls = append(f.calls, spec)
	f.mu.Unlock()

	if f.Handler == nil {
		return Result{}, nil
	}
	return f.Handler(spec)
}

// Calls returns a copy of the recorded invocations, in order.
func (f *Fake) Calls() []Spec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Spec(nil), f.calls...)
}

// CallCommands returns the recorded invocations formatted as command
// lines. Convenient for asserting the exact tool sequence in tests.
func (f *Fake) CallCommands() []string {
	calls := f.Calls()
	commands := make([]string, len(calls))
	for i, call := range calls {
		commands[i] = call.Command()
	}
	return commands
}

// FailWhen returns a handler that fails invocations whose command
// line contains the given substring, with the given exit code and
// stderr text, and succeeds everything else.
func FailWhen(substring string, code int, stderr string) func(Spec) (Result, error) {
	return func(spec Spec) (Result, error) {
		if !strings.Contains(spec.Command(), substring) {
			return Result{}, nil
		}
		result := Result{Stderr: stderr, ExitCode: code}
		return result, &Error{Spec: spec, Code: code, Stderr: strings.TrimSpace(stderr)}
	}
}
