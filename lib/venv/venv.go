// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

// Package venv manages Python virtual environments as explicit
// resource handles. There is no shell "activation": an [Environment]
// value carries the root path, and every invocation inside it
// receives the environment's own binaries plus VIRTUAL_ENV and a
// PATH that puts the environment's binary directory first. This is
// what activation scripts do, expressed as data instead of ambient
// shell state.
package venv

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pybundle-project/pybundle/lib/invoke"
	"github.com/pybundle-project/pybundle/lib/python"
)

// Environment is a handle to a virtual environment rooted at a
// directory. The zero value is not usable; construct with [New].
type Environment struct {
	// Root is the absolute path of the environment directory.
	Root string
}

// New returns an Environment handle for the given root directory.
// The directory need not exist yet — [Create] brings it into being,
// [Probe] reports its current condition.
func New(root string) (Environment, error) {
	absolute, err := filepath.Abs(root)
	if err != nil {
		return Environment{}, fmt.Errorf("resolving environment root %s: %w", root, err)
	}
	return Environment{Root: absolute}, nil
}

// Interpreter returns the path of the environment's own interpreter.
func (e Environment) Interpreter() string {
	return python.EnvInterpreter(e.Root)
}

// Binary returns the path of a named entry-point binary inside the
// environment (e.g. "pyinstaller").
func (e Environment) Binary(name string) string {
	return python.EnvBinary(e.Root, name)
}

// CommandEnv returns the environment variables that make subprocess
// invocations resolve tools from this environment first: VIRTUAL_ENV
// plus a PATH with the environment's binary directory prepended.
// This is the venv activation script's effect, expressed as data.
func (e Environment) CommandEnv() []string {
	return []string{
		"VIRTUAL_ENV=" + e.Root,
		"PATH=" + python.BinDir(e.Root) + string(os.PathListSeparator) + os.Getenv("PATH"),
	}
}

// Status describes the observed condition of an environment
// directory.
type Status struct {
	// Exists is true when the root directory exists.
	Exists bool `json:"exists"`

	// Valid is true when the directory holds a usable environment:
	// pyvenv.cfg is present and the interpreter entry point exists.
	Valid bool `json:"valid"`

	// Version is the Python version recorded in pyvenv.cfg, when
	// present (the "version" or "version_info" key, depending on the
	// creating interpreter).
	Version string `json:"version,omitempty"`

	// BaseInterpreter is the system interpreter home recorded in
	// pyvenv.cfg, when present.
	BaseInterpreter string `json:"base_interpreter,omitempty"`
}

// Probe inspects the environment directory without running any tool.
// A missing directory is not an error: Status.Exists is false.
func (e Environment) Probe() (Status, error) {
	var status Status

	info, err := os.Stat(e.Root)
	if os.IsNotExist(err) {
		return status, nil
	}
	if err != nil {
		return status, fmt.Errorf("inspecting environment at %s: %w", e.Root, err)
	}
	if !info.IsDir() {
		return status, fmt.Errorf("environment path %s exists but is not a directory", e.Root)
	}
	status.Exists = true

	config, err := readPyvenvConfig(filepath.Join(e.Root, "pyvenv.cfg"))
	if os.IsNotExist(err) {
		return status, nil
	}
	if err != nil {
		return status, err
	}
	status.Version = config["version"]
	if status.Version == "" {
		status.Version = config["version_info"]
	}
	status.BaseInterpreter = config["home"]

	if _, err := os.Stat(e.Interpreter()); err == nil {
		status.Valid = true
	}
	return status, nil
}

// readPyvenvConfig parses the "key = value" lines of a pyvenv.cfg.
func readPyvenvConfig(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, found := strings.Cut(scanner.Text(), "=")
		if !found {
			continue
		}
		config[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return config, nil
}

// CreateError reports that the environment could not be created.
type CreateError struct {
	// Root is the environment directory that creation targeted.
	Root string

	// Err is the underlying failure (interpreter missing, venv
	// module failure, filesystem error).
	Err error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("creating environment at %s: %v", e.Root, e.Err)
}

func (e *CreateError) Unwrap() error { return e.Err }

// CreateOptions controls [Create].
type CreateOptions struct {
	// Interpreter is the system interpreter to create the
	// environment with. Empty means resolve from PATH.
	Interpreter string

	// Recreate removes an existing environment directory first.
	Recreate bool
}

// Create ensures a usable environment exists at the handle's root.
// An already-valid environment is a no-op unless options.Recreate is
// set. A directory that exists but does not hold a valid environment
// is re-created by the venv module in place (python -m venv is itself
// idempotent over its own layout); with Recreate it is refused
// instead of deleted, since it could be anything.
func Create(ctx context.Context, runner invoke.Runner, environment Environment, options CreateOptions) error {
	status, err := environment.Probe()
	if err != nil {
		return &CreateError{Root: environment.Root, Err: err}
	}

	if options.Recreate && status.Exists {
		// Only delete directories that probe as environments: a
		// mistyped environment_dir must not take a project subtree
		// with it.
		if !status.Valid {
			return &CreateError{Root: environment.Root,
				Err: fmt.Errorf("directory exists but is not an environment; remove it manually")}
		}
		if err := os.RemoveAll(environment.Root); err != nil {
			return &CreateError{Root: environment.Root, Err: fmt.Errorf("removing existing environment: %w", err)}
		}
		status = Status{}
	}

	if status.Valid {
		return nil
	}

	interpreter := options.Interpreter
	if interpreter == "" {
		interpreter, err = python.FindInterpreter()
		if err != nil {
			return &CreateError{Root: environment.Root, Err: err}
		}
	}

	if _, err := runner.Run(ctx, invoke.Spec{
		Binary: interpreter,
		Args:   []string{"-m", "venv", environment.Root},
		Dir:    filepath.Dir(environment.Root),
	}); err != nil {
		return &CreateError{Root: environment.Root, Err: err}
	}
	return nil
}
