// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

// Package deps implements the "pybundle deps" subcommands: installing
// the dependency manifest on its own and inspecting what it declares.
package deps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/pybundle-project/pybundle/cmd/pybundle/cli"
	"github.com/pybundle-project/pybundle/lib/invoke"
	"github.com/pybundle-project/pybundle/lib/manifest"
	"github.com/pybundle-project/pybundle/lib/venv"
)

// Command returns the top-level "deps" command.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "deps",
		Summary: "Install and inspect the dependency manifest",
		Subcommands: []*cli.Command{
			installCommand(),
			listCommand(),
		},
		Examples: []cli.Example{
			{Description: "install requirements.txt into the environment", Command: "pybundle deps install"},
			{Description: "show the declared dependencies", Command: "pybundle deps list --json"},
		},
	}
}

type installParams struct {
	cli.JSONOutput
	cli.Scope
	Quiet bool `json:"quiet" flag:"quiet,q" desc:"do not stream tool output"`
}

func installCommand() *cli.Command {
	var params installParams
	return &cli.Command{
		Name:    "install",
		Summary: "Install the manifest into the existing environment",
		Description: `Install the project's dependency manifest into its environment.
The environment must already exist (run "pybundle env create" first);
this command never creates one implicitly.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("deps install", &params)
		},
		Run: func(args []string) error {
			runner := &invoke.Exec{Stream: !params.Quiet && !params.OutputJSON}
			return runInstall(context.Background(), &params, runner)
		},
	}
}

func runInstall(ctx context.Context, params *installParams, runner invoke.Runner) error {
	projectDir, recipe, config, err := params.Load()
	if err != nil {
		return err
	}

	declared, err := loadManifest(projectDir, recipe.Manifest)
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
	if !status.Valid {
		return cli.NotFound("no environment at %s; run \"pybundle env create\" first", environment.Root)
	}

	if err := venv.Install(ctx, runner, environment, declared, venv.InstallOptions{
		IndexURL: config.Installer.IndexURL,
	}); err != nil {
		return cli.Transient("%w", err)
	}

	result := map[string]any{
		"manifest":  declared.Path,
		"installed": len(declared.Requirements),
		"hash":      manifest.FormatHash(declared.Hash()),
	}
	if done, err := params.EmitJSON(result); done {
		return err
	}
	if declared.Empty() {
		fmt.Println("manifest declares nothing; nothing installed")
		return nil
	}
	fmt.Printf("installed %d requirements from %s\n", len(declared.Requirements), declared.Path)
	return nil
}

type listParams struct {
	cli.JSONOutput
	cli.Scope
	Pinned bool `json:"pinned" flag:"pinned" desc:"only show exactly pinned requirements"`
}

func listCommand() *cli.Command {
	var params listParams
	return &cli.Command{
		Name:    "list",
		Summary: "Show the manifest's declared requirements",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("deps list", &params)
		},
		Run: func(args []string) error {
			return runList(&params)
		},
	}
}

func runList(params *listParams) error {
	projectDir, recipe, _, err := params.Load()
	if err != nil {
		return err
	}
	declared, err := loadManifest(projectDir, recipe.Manifest)
	if err != nil {
		return err
	}

	requirements := declared.Requirements
	if params.Pinned {
		var pinned []manifest.Requirement
		for _, requirement := range requirements {
			if requirement.Pinned() {
				pinned = append(pinned, requirement)
			}
		}
		requirements = pinned
	}

	if done, err := params.EmitJSON(requirements); done {
		return err
	}

	if len(requirements) == 0 {
		fmt.Println("no requirements declared")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	for _, requirement := range requirements {
		fmt.Fprintf(tw, "%s\t%s\n", requirement.CanonicalName(), requirement.String())
	}
	return tw.Flush()
}

func loadManifest(projectDir, manifestName string) (*manifest.Manifest, error) {
	declared, err := manifest.ReadFile(filepath.Join(projectDir, manifestName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, cli.NotFound("dependency manifest %s not found", filepath.Join(projectDir, manifestName))
		}
		return nil, cli.Validation("%v", err)
	}
	return declared, nil
}
