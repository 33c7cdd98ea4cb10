// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline runs the bootstrap sequence as a strictly linear
// state machine:
//
//	start → environment-ready → dependencies-installed → packaged → done
//
// Steps run sequentially; the first failure halts the run at the
// state already reached. There is no retry and no rollback —
// re-running from start is always safe because every step is
// idempotent over the filesystem state it owns.
//
// Steps are plain closures over an injectable tool runner, so the
// whole machine is testable without spawning subprocesses.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/pybundle-project/pybundle/lib/clock"
)

// State identifies a position in the bootstrap sequence.
type State string

const (
	// StateStart is the initial state; nothing has run.
	StateStart State = "start"

	// StateEnvironmentReady means the isolated environment exists and
	// its installer tool is current.
	StateEnvironmentReady State = "environment-ready"

	// StateDependenciesInstalled means every manifest entry is
	// installed in the environment.
	StateDependenciesInstalled State = "dependencies-installed"

	// StatePackaged means the bundler produced the executable
	// artifact.
	StatePackaged State = "packaged"

	// StateDone is the terminal success state.
	StateDone State = "done"
)

// progression is the only legal order of states.
var progression = []State{
	StateStart,
	StateEnvironmentReady,
	StateDependenciesInstalled,
	StatePackaged,
	StateDone,
}

// index returns the state's position in the progression, or -1.
func (s State) index() int {
	for i, state := range progression {
		if state == s {
			return i
		}
	}
	return -1
}

// ValidTransition reports whether from → to is a legal single
// advance. The machine never skips states and never moves backward.
func ValidTransition(from, to State) bool {
	fromIndex, toIndex := from.index(), to.index()
	return fromIndex >= 0 && toIndex == fromIndex+1
}

// Reached reports whether s is at or beyond target in the
// progression. Unknown states never reach anything.
func (s State) Reached(target State) bool {
	sIndex, targetIndex := s.index(), target.index()
	return sIndex >= 0 && targetIndex >= 0 && sIndex >= targetIndex
}

// Step is one stage of the bootstrap sequence.
type Step struct {
	// Name identifies the step in results and error messages
	// (e.g. "create-environment").
	Name string

	// Advances is the state the machine reaches when Run succeeds.
	Advances State

	// Run does the work. It must be idempotent: running it again
	// after an interruption reaches the same filesystem state.
	Run func(ctx context.Context) error
}

// StepResult records one executed step.
type StepResult struct {
	// Name is the step name.
	Name string `json:"name"`

	// Reached is the state the machine was in after the step
	// (unchanged from before when the step failed).
	Reached State `json:"reached"`

	// Duration is the step's wall-clock duration.
	Duration time.Duration `json:"duration"`

	// Failed is true when the step returned an error.
	Failed bool `json:"failed"`
}

// StepError reports the step that halted the sequence.
type StepError struct {
	// Step is the failed step's name.
	Step string

	// Halted is the state the machine halted in.
	Halted State

	// Err is the step's error.
	Err error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s (halted at %s): %v", e.Step, e.Halted, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Outcome is the result of a pipeline run.
type Outcome struct {
	// Final is the state the machine ended in: StateDone on success,
	// the last reached state on failure.
	Final State `json:"final"`

	// Results holds one entry per executed step, in order. Steps
	// after a failure never execute and have no entry.
	Results []StepResult `json:"results"`

	// Err is nil on success, a *StepError otherwise.
	Err error `json:"-"`
}

// Pipeline is a validated, ordered sequence of steps.
type Pipeline struct {
	steps []Step
	clock clock.Clock
}

// New builds a pipeline from steps. The steps' Advances states must
// walk the progression in order, ending at StateDone. A malformed
// sequence is a programming error and is rejected here, not at run
// time.
func New(timeSource clock.Clock, steps ...Step) (*Pipeline, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("pipeline: no steps")
	}

	current := StateStart
	for _, step := range steps {
		if step.Name == "" || step.Run == nil {
			return nil, fmt.Errorf("pipeline: step %q incomplete", step.Name)
		}
		if !ValidTransition(current, step.Advances) {
			return nil, fmt.Errorf("pipeline: step %q advances %s → %s, which is not a legal transition",
				step.Name, current, step.Advances)
		}
		current = step.Advances
	}
	if current != StateDone {
		return nil, fmt.Errorf("pipeline: sequence ends at %s, not %s", current, StateDone)
	}

	return &Pipeline{steps: steps, clock: timeSource}, nil
}

// Run executes the steps in order, halting at the first failure or
// context cancellation. The returned Outcome always describes what
// actually ran, including the failing step.
func (p *Pipeline) Run(ctx context.Context) Outcome {
	outcome := Outcome{Final: StateStart}

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			outcome.Err = &StepError{Step: step.Name, Halted: outcome.Final, Err: err}
			return outcome
		}

		began := p.clock.Now()
		err := step.Run(ctx)
		result := StepResult{
			Name:     step.Name,
			Duration: p.clock.Now().Sub(began),
		}

		if err != nil {
			result.Reached = outcome.Final
			result.Failed = true
			outcome.Results = append(outcome.Results, result)
			outcome.Err = &StepError{Step: step.Name, Halted: outcome.Final, Err: err}
			return outcome
		}

		outcome.Final = step.Advances
		result.Reached = outcome.Final
		outcome.Results = append(outcome.Results, result)
	}

	return outcome
}
