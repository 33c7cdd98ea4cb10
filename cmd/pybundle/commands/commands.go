// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete pybundle CLI command tree.
package commands

import (
	"github.com/pybundle-project/pybundle/cmd/pybundle/build"
	"github.com/pybundle-project/pybundle/cmd/pybundle/bundle"
	"github.com/pybundle-project/pybundle/cmd/pybundle/cli"
	"github.com/pybundle-project/pybundle/cmd/pybundle/deps"
	environmentcmd "github.com/pybundle-project/pybundle/cmd/pybundle/environment"
	"github.com/pybundle-project/pybundle/cmd/pybundle/staterecord"
	statuscmd "github.com/pybundle-project/pybundle/cmd/pybundle/status"
)

// Root builds and returns the complete pybundle CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "pybundle",
		Description: `pybundle: reproducible Python application packaging.

Bootstrap a project-local virtual environment, install the declared
dependencies, and package the entry-point script into a standalone
executable, resuming cleanly after any failed step.`,
		Examples: []cli.Example{
			{
				Description: "Build the current directory end to end",
				Command:     "pybundle build",
			},
			{
				Description: "Inspect project health without changing anything",
				Command:     "pybundle status",
			},
			{
				Description: "Archive the built executable with zstd compression",
				Command:     "pybundle archive create --compression zstd",
			},
		},
		Subcommands: []*cli.Command{
			build.Command(),
			statuscmd.Command(),
			environmentcmd.Command(),
			deps.Command(),
			bundle.PackageCommand(),
			bundle.ArchiveCommand(),
			staterecord.Command(),
		},
	}
}
