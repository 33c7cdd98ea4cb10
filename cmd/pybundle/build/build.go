// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

// Package build implements "pybundle build": the full bootstrap
// sequence from bare checkout to packaged executable. Create the
// isolated environment, bring its installer up to date, install the
// declared dependencies, package the entry point, and record the
// outcome in the project's state file.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/pybundle-project/pybundle/cmd/pybundle/cli"
	"github.com/pybundle-project/pybundle/lib/bundler"
	"github.com/pybundle-project/pybundle/lib/clock"
	"github.com/pybundle-project/pybundle/lib/invoke"
	"github.com/pybundle-project/pybundle/lib/manifest"
	"github.com/pybundle-project/pybundle/lib/pipeline"
	"github.com/pybundle-project/pybundle/lib/project"
	"github.com/pybundle-project/pybundle/lib/state"
	"github.com/pybundle-project/pybundle/lib/venv"
)

type buildParams struct {
	cli.JSONOutput
	cli.Scope
	NoSkip        bool `json:"no_skip" flag:"no-skip" desc:"install dependencies even when the manifest is unchanged"`
	ForceRecreate bool `json:"force_recreate" flag:"force-recreate" desc:"delete and rebuild the environment first"`
	Quiet         bool `json:"quiet" flag:"quiet,q" desc:"do not stream tool output"`
}

// Command returns the "build" command.
func Command() *cli.Command {
	var params buildParams
	return &cli.Command{
		Name:    "build",
		Summary: "Create the environment, install dependencies, and package",
		Description: `Run the full bootstrap sequence for a project.

The sequence is strictly linear and halts at the first failure:
create the isolated environment, upgrade its package installer,
install the dependency manifest, package the entry point. A rerun
after a failure is always safe; completed stages are no-ops.

When the dependency manifest is unchanged since the last successful
install, the install stage is skipped. --no-skip forces it.`,
		Examples: []cli.Example{
			{Description: "build the project in the current directory", Command: "pybundle build"},
			{Description: "rebuild everything from scratch", Command: "pybundle build --force-recreate --no-skip"},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("build", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return cli.Validation("build takes no positional arguments, got %d", len(args))
			}
			runner := &invoke.Exec{Stream: !params.Quiet && !params.OutputJSON}
			return run(context.Background(), &params, runner, clock.Real())
		},
	}
}

// report is the build outcome surfaced to the user.
type report struct {
	Final          pipeline.State        `json:"final"`
	Steps          []pipeline.StepResult `json:"steps"`
	SkippedInstall bool                  `json:"skipped_install"`
	ManifestHash   string                `json:"manifest_hash,omitempty"`
	Artifact       *bundler.Artifact     `json:"artifact,omitempty"`
}

func run(ctx context.Context, params *buildParams, runner invoke.Runner, timeSource clock.Clock) error {
	projectDir, recipe, config, err := params.Load()
	if err != nil {
		return err
	}

	declared, err := manifest.ReadFile(filepath.Join(projectDir, recipe.Manifest))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cli.NotFound("dependency manifest %s not found", filepath.Join(projectDir, recipe.Manifest))
		}
		return cli.Validation("%v", err)
	}
	manifestHash := manifest.FormatHash(declared.Hash())

	environment, err := venv.New(filepath.Join(projectDir, recipe.EnvironmentDir))
	if err != nil {
		return cli.Internal("%v", err)
	}

	// The install stage is skipped when the previous run installed
	// this exact manifest into a still-valid environment. A run that
	// halted before dependencies-installed never satisfies this: its
	// record carries the manifest hash but not the install.
	skipInstall := false
	if !params.NoSkip && !params.ForceRecreate {
		previous, err := state.Load(projectDir)
		if err == nil && previous != nil && previous.ManifestHash == manifestHash &&
			pipeline.State(previous.Final).Reached(pipeline.StateDependenciesInstalled) {
			if status, probeErr := environment.Probe(); probeErr == nil && status.Valid {
				skipInstall = true
			}
		}
	}

	var artifact bundler.Artifact
	record := &state.Record{ManifestHash: manifestHash}

	sequence, err := pipeline.New(timeSource,
		pipeline.Step{
			Name:     "create-environment",
			Advances: pipeline.StateEnvironmentReady,
			Run: func(ctx context.Context) error {
				if err := venv.Create(ctx, runner, environment, venv.CreateOptions{
					Interpreter: cli.BaseInterpreter(recipe, config),
					Recreate:    params.ForceRecreate,
				}); err != nil {
					return err
				}
				if skipInstall || config.Installer.SkipUpgrade {
					return nil
				}
				return venv.UpgradeInstaller(ctx, runner, environment)
			},
		},
		pipeline.Step{
			Name:     "install-dependencies",
			Advances: pipeline.StateDependenciesInstalled,
			Run: func(ctx context.Context) error {
				if skipInstall {
					return nil
				}
				return venv.Install(ctx, runner, environment, declared, venv.InstallOptions{
					IndexURL: config.Installer.IndexURL,
				})
			},
		},
		pipeline.Step{
			Name:     "package",
			Advances: pipeline.StatePackaged,
			Run: func(ctx context.Context) error {
				packaged, err := bundler.Package(ctx, runner, environment, projectDir, bundlerOptions(projectDir, recipe))
				if err != nil {
					return err
				}
				artifact = packaged
				return nil
			},
		},
		pipeline.Step{
			Name:     "finalize",
			Advances: pipeline.StateDone,
			Run: func(ctx context.Context) error {
				return finalize(record, environment, projectDir, recipe, artifact)
			},
		},
	)
	if err != nil {
		return cli.Internal("%v", err)
	}

	outcome := sequence.Run(ctx)

	// The record is written even when the run halted, so the next
	// invocation (and "pybundle status") can see how far it got.
	record.UpdatedAt = timeSource.Now()
	record.Final = string(outcome.Final)
	for _, result := range outcome.Results {
		record.Steps = append(record.Steps, state.StepRecord{
			Name:     result.Name,
			Reached:  string(result.Reached),
			Duration: result.Duration,
			Failed:   result.Failed,
		})
	}
	if storeErr := record.Store(projectDir); storeErr != nil && outcome.Err == nil {
		return cli.Internal("storing build record: %v", storeErr)
	}

	if outcome.Err != nil {
		return classify(outcome.Err)
	}

	result := report{
		Final:          outcome.Final,
		Steps:          outcome.Results,
		SkippedInstall: skipInstall,
		ManifestHash:   manifestHash,
		Artifact:       &artifact,
	}
	if done, err := params.EmitJSON(result); done {
		return err
	}

	for _, step := range outcome.Results {
		fmt.Printf("  %-22s %s  (%s)\n", step.Name, step.Reached, step.Duration.Round(time.Millisecond))
	}
	if skipInstall {
		fmt.Println("  dependencies unchanged, install skipped")
	}
	fmt.Printf("built %s (%d bytes)\n", artifact.Path, artifact.Size)
	return nil
}

// finalize hashes the build inputs and output into the record. The
// artifact hash is what "pybundle archive" later embeds, closing the
// integrity chain from source to distributed blob.
func finalize(record *state.Record, environment venv.Environment, projectDir string, recipe *project.Recipe, artifact bundler.Artifact) error {
	entryHash, err := state.HashFile(filepath.Join(projectDir, recipe.EntryPoint))
	if err != nil {
		return fmt.Errorf("hashing entry point: %w", err)
	}
	artifactHash, err := state.HashFile(artifact.Path)
	if err != nil {
		return fmt.Errorf("hashing artifact: %w", err)
	}

	record.EntryHash = entryHash
	record.ArtifactPath = artifact.Path
	record.ArtifactHash = artifactHash
	record.ArtifactSize = artifact.Size
	if status, err := environment.Probe(); err == nil {
		record.PythonVersion = status.Version
	}
	return nil
}

// bundlerOptions maps the recipe onto a bundler invocation. The entry
// point is resolved against the project directory so the bundler
// never depends on the process working directory.
func bundlerOptions(projectDir string, recipe *project.Recipe) bundler.Options {
	return bundler.Options{
		EntryPoint: filepath.Join(projectDir, recipe.EntryPoint),
		Name:       recipe.Name,
		OneFile:    !recipe.OneDir,
		Windowed:   !recipe.Console,
		ExtraArgs:  recipe.ExtraArgs,
	}
}

// classify maps pipeline failures onto CLI error categories. The
// wrapped invoke error keeps the failing tool's exit code, which
// main propagates to the shell.
func classify(err error) error {
	var packageErr *bundler.PackageError
	if errors.As(err, &packageErr) {
		if errors.Is(err, os.ErrNotExist) {
			return cli.NotFound("%w", err)
		}
		return cli.Internal("%w", err)
	}
	var installErr *venv.InstallError
	if errors.As(err, &installErr) {
		if errors.Is(err, os.ErrNotExist) {
			return cli.NotFound("%w", err)
		}
		return cli.Transient("%w", err)
	}
	return cli.Internal("%w", err)
}
