// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

// Package environment implements the "pybundle env" subcommands for
// managing a project's isolated environment on its own, outside the
// full build sequence.
package environment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/pybundle-project/pybundle/cmd/pybundle/cli"
	"github.com/pybundle-project/pybundle/lib/invoke"
	"github.com/pybundle-project/pybundle/lib/venv"
)

// Command returns the top-level "env" command.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "env",
		Summary: "Manage the project's isolated environment",
		Subcommands: []*cli.Command{
			createCommand(),
			statusCommand(),
			removeCommand(),
		},
		Examples: []cli.Example{
			{Description: "create the environment for the current project", Command: "pybundle env create"},
			{Description: "inspect an environment without touching it", Command: "pybundle env status --json"},
		},
	}
}

type createParams struct {
	cli.JSONOutput
	cli.Scope
	Recreate bool `json:"recreate" flag:"recreate" desc:"delete any existing environment first"`
	Quiet    bool `json:"quiet" flag:"quiet,q" desc:"do not stream tool output"`
}

func createCommand() *cli.Command {
	var params createParams
	return &cli.Command{
		Name:    "create",
		Summary: "Create the isolated environment and upgrade its installer",
		Description: `Create the project's virtual environment at the recipe's
environment directory (default .venv). A directory already holding a
valid environment is left untouched unless --recreate is given.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("env create", &params)
		},
		Run: func(args []string) error {
			runner := &invoke.Exec{Stream: !params.Quiet && !params.OutputJSON}
			return runCreate(context.Background(), &params, runner)
		},
	}
}

func runCreate(ctx context.Context, params *createParams, runner invoke.Runner) error {
	projectDir, recipe, config, err := params.Load()
	if err != nil {
		return err
	}
	environment, err := venv.New(filepath.Join(projectDir, recipe.EnvironmentDir))
	if err != nil {
		return cli.Internal("%v", err)
	}

	if err := venv.Create(ctx, runner, environment, venv.CreateOptions{
		Interpreter: cli.BaseInterpreter(recipe, config),
		Recreate:    params.Recreate,
	}); err != nil {
		return cli.Internal("%w", err)
	}
	if !config.Installer.SkipUpgrade {
		if err := venv.UpgradeInstaller(ctx, runner, environment); err != nil {
			return cli.Internal("%w", err)
		}
	}

	status, err := environment.Probe()
	if err != nil {
		return cli.Internal("%v", err)
	}
	if done, err := params.EmitJSON(statusReport{Root: environment.Root, Status: status}); done {
		return err
	}
	fmt.Printf("environment ready at %s (python %s)\n", environment.Root, status.Version)
	return nil
}

type statusParams struct {
	cli.JSONOutput
	cli.Scope
}

// statusReport pairs the probe result with the environment location.
type statusReport struct {
	Root   string      `json:"root"`
	Status venv.Status `json:"status"`
}

func statusCommand() *cli.Command {
	var params statusParams
	return &cli.Command{
		Name:    "status",
		Summary: "Report the environment's condition without modifying it",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("env status", &params)
		},
		Run: func(args []string) error {
			return runStatus(&params)
		},
	}
}

func runStatus(params *statusParams) error {
	projectDir, recipe, _, err := params.Load()
	if err != nil {
		return err
	}
	environment, err := venv.New(filepath.Join(projectDir, recipe.EnvironmentDir))
	if err != nil {
		return cli.Internal("%v", err)
	}
	status, err := environment.Probe()
	if err != nil {
		return cli.Internal("%v", err)
	}

	if done, err := params.EmitJSON(statusReport{Root: environment.Root, Status: status}); done {
		if err != nil {
			return err
		}
	} else {
		switch {
		case !status.Exists:
			fmt.Printf("no environment at %s\n", environment.Root)
		case !status.Valid:
			fmt.Printf("directory at %s is not a usable environment\n", environment.Root)
		default:
			fmt.Printf("environment at %s\n  python %s\n  base %s\n",
				environment.Root, status.Version, status.BaseInterpreter)
		}
	}

	if !status.Valid {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

type removeParams struct {
	cli.JSONOutput
	cli.Scope
}

func removeCommand() *cli.Command {
	var params removeParams
	return &cli.Command{
		Name:    "remove",
		Summary: "Delete the environment directory",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("env remove", &params)
		},
		Run: func(args []string) error {
			return runRemove(&params)
		},
	}
}

func runRemove(params *removeParams) error {
	projectDir, recipe, _, err := params.Load()
	if err != nil {
		return err
	}
	environment, err := venv.New(filepath.Join(projectDir, recipe.EnvironmentDir))
	if err != nil {
		return cli.Internal("%v", err)
	}

	status, err := environment.Probe()
	if err != nil {
		return cli.Internal("%v", err)
	}
	if !status.Exists {
		return cli.NotFound("no environment at %s", environment.Root)
	}
	// Refuse to remove a directory that is not an environment: a
	// recipe typo must not delete arbitrary project trees.
	if !status.Valid {
		return cli.Conflict("directory at %s is not a pybundle environment; remove it manually", environment.Root)
	}

	if err := os.RemoveAll(environment.Root); err != nil {
		return cli.Internal("removing environment: %v", err)
	}
	if done, err := params.EmitJSON(map[string]string{"removed": environment.Root}); done {
		return err
	}
	fmt.Printf("removed %s\n", environment.Root)
	return nil
}
