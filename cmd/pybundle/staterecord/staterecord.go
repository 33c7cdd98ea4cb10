// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

// Package staterecord implements "pybundle state", exposing the
// project's persisted build record.
package staterecord

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/pybundle-project/pybundle/cmd/pybundle/cli"
	"github.com/pybundle-project/pybundle/lib/codec"
	"github.com/pybundle-project/pybundle/lib/state"
)

// Command returns the top-level "state" command.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "state",
		Summary: "Inspect the persisted build record",
		Subcommands: []*cli.Command{
			showCommand(),
		},
	}
}

type showParams struct {
	cli.JSONOutput
	cli.Scope
	Raw bool `json:"raw" flag:"raw" desc:"print the record in CBOR diagnostic notation"`
}

func showCommand() *cli.Command {
	var params showParams
	return &cli.Command{
		Name:    "show",
		Summary: "Print the last build record",
		Description: `Print the project's build record: the state the last run ended
in, per-step durations, and the input/output hashes. --raw prints the
on-disk CBOR in diagnostic notation instead.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("state show", &params)
		},
		Run: func(args []string) error {
			return runShow(&params)
		},
	}
}

func runShow(params *showParams) error {
	projectDir, _, _, err := params.Load()
	if err != nil {
		return err
	}

	if params.Raw {
		raw, err := state.RawBytes(projectDir)
		if err != nil {
			return cli.Internal("%v", err)
		}
		if raw == nil {
			return cli.NotFound("no build record at %s", state.Path(projectDir))
		}
		diagnostic, err := codec.Diagnose(raw)
		if err != nil {
			return cli.Internal("decoding build record: %v", err)
		}
		fmt.Println(diagnostic)
		return nil
	}

	record, err := state.Load(projectDir)
	if err != nil {
		return cli.Internal("%v", err)
	}
	if record == nil {
		return cli.NotFound("no build record at %s", state.Path(projectDir))
	}

	if done, err := params.EmitJSON(record); done {
		return err
	}

	fmt.Printf("last run %s, ended at %q\n", record.UpdatedAt.Format(time.RFC3339), record.Final)
	if record.PythonVersion != "" {
		fmt.Printf("  python          %s\n", record.PythonVersion)
	}
	if record.ManifestHash != "" {
		fmt.Printf("  manifest hash   %s\n", record.ManifestHash)
	}
	if record.EntryHash != "" {
		fmt.Printf("  entry hash      %s\n", record.EntryHash)
	}
	if record.ArtifactPath != "" {
		fmt.Printf("  artifact        %s (%d bytes)\n", record.ArtifactPath, record.ArtifactSize)
		fmt.Printf("  artifact hash   %s\n", record.ArtifactHash)
	}
	for _, step := range record.Steps {
		marker := " "
		if step.Failed {
			marker = "x"
		}
		fmt.Printf("  %s %-22s %s  (%s)\n", marker, step.Name, step.Reached, step.Duration.Round(time.Millisecond))
	}
	return nil
}
