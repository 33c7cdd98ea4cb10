// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

package environment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pybundle-project/pybundle/cmd/pybundle/cli"
	"github.com/pybundle-project/pybundle/lib/invoke"
	"github.com/pybundle-project/pybundle/lib/testutil"
)

func TestRunCreateInvokesVenvAndUpgrade(t *testing.T) {
	t.Parallel()

	// An explicit interpreter keeps the test independent of PATH.
	projectDir := testutil.ProjectDir(t, map[string]string{
		"pybundle.jsonc": `{"interpreter": "/usr/bin/python3"}`,
	})
	envRoot := filepath.Join(projectDir, ".venv")

	// The fake stands in for python: the venv invocation materializes
	// the environment tree.
	fake := &invoke.Fake{Handler: func(spec invoke.Spec) (invoke.Result, error) {
		for _, arg := range spec.Args {
			if arg == "venv" {
				testutil.EnvironmentTree(t, envRoot)
			}
		}
		return invoke.Result{}, nil
	}}

	params := &createParams{Scope: cli.Scope{Project: projectDir}, Quiet: true}
	if err := runCreate(context.Background(), params, fake); err != nil {
		t.Fatalf("runCreate: %v", err)
	}

	commands := fake.CallCommands()
	if len(commands) != 2 {
		t.Fatalf("commands = %v, want venv then pip upgrade", commands)
	}
	if !strings.Contains(commands[0], "-m venv") {
		t.Errorf("first command = %q", commands[0])
	}
	if !strings.Contains(commands[1], "pip install --upgrade pip") {
		t.Errorf("second command = %q", commands[1])
	}
}

func TestRunStatusMissingEnvironment(t *testing.T) {
	t.Parallel()

	projectDir := testutil.ProjectDir(t, nil)
	params := &statusParams{Scope: cli.Scope{Project: projectDir}}

	err := runStatus(params)
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Errorf("error = %v, want ExitError{1}", err)
	}
}

func TestRunStatusValidEnvironment(t *testing.T) {
	t.Parallel()

	projectDir := testutil.ProjectDir(t, nil)
	testutil.EnvironmentTree(t, filepath.Join(projectDir, ".venv"))
	params := &statusParams{Scope: cli.Scope{Project: projectDir}}

	if err := runStatus(params); err != nil {
		t.Errorf("runStatus: %v", err)
	}
}

func TestRunRemove(t *testing.T) {
	t.Parallel()

	projectDir := testutil.ProjectDir(t, nil)
	envRoot := filepath.Join(projectDir, ".venv")
	testutil.EnvironmentTree(t, envRoot)

	params := &removeParams{Scope: cli.Scope{Project: projectDir}}
	if err := runRemove(params); err != nil {
		t.Fatalf("runRemove: %v", err)
	}
	if _, err := os.Stat(envRoot); !os.IsNotExist(err) {
		t.Error("environment directory still present")
	}

	// A second remove reports not_found.
	err := runRemove(params)
	var toolErr *cli.ToolError
	if !errors.As(err, &toolErr) || toolErr.Category != cli.CategoryNotFound {
		t.Errorf("second remove error = %v", err)
	}
}

func TestRunRemoveRefusesNonEnvironment(t *testing.T) {
	t.Parallel()

	projectDir := testutil.ProjectDir(t, map[string]string{
		".venv/precious.txt": "not an environment",
	})
	params := &removeParams{Scope: cli.Scope{Project: projectDir}}

	err := runRemove(params)
	var toolErr *cli.ToolError
	if !errors.As(err, &toolErr) || toolErr.Category != cli.CategoryConflict {
		t.Errorf("error = %v, want conflict", err)
	}
	if _, statErr := os.Stat(filepath.Join(projectDir, ".venv", "precious.txt")); statErr != nil {
		t.Error("non-environment directory was deleted")
	}
}
