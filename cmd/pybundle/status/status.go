// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

// Package status implements "pybundle status": a read-only health
// report over the project's build inputs and outputs. It answers
// "what will happen if I run build now" without running anything.
package status

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/pybundle-project/pybundle/cmd/pybundle/cli"
	"github.com/pybundle-project/pybundle/lib/manifest"
	"github.com/pybundle-project/pybundle/lib/pipeline"
	"github.com/pybundle-project/pybundle/lib/project"
	"github.com/pybundle-project/pybundle/lib/state"
	"github.com/pybundle-project/pybundle/lib/venv"
)

type statusParams struct {
	cli.JSONOutput
	cli.Scope
}

// Command returns the "status" command.
func Command() *cli.Command {
	var params statusParams
	return &cli.Command{
		Name:    "status",
		Summary: "Report environment, manifest, and artifact health",
		Description: `Inspect the project without modifying it: entry point and
manifest presence, environment validity, and whether the last built
artifact still matches its recorded hash. Exits non-zero when any
check fails.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("status", &params)
		},
		Run: func(args []string) error {
			return run(&params)
		},
	}
}

// checkState grades one check.
type checkState string

const (
	checkOK   checkState = "ok"
	checkWarn checkState = "warn"
	checkFail checkState = "fail"
)

// check is one line of the report.
type check struct {
	Name   string     `json:"name"`
	State  checkState `json:"state"`
	Detail string     `json:"detail"`
}

// report is the full health report.
type report struct {
	Project string  `json:"project"`
	Checks  []check `json:"checks"`
	Healthy bool    `json:"healthy"`
}

func run(params *statusParams) error {
	projectDir, recipe, config, err := params.Load()
	if err != nil {
		return err
	}

	result := report{Project: projectDir, Healthy: true}
	add := func(c check) {
		if c.State == checkFail {
			result.Healthy = false
		}
		result.Checks = append(result.Checks, c)
	}

	add(checkEntryPoint(projectDir, recipe))
	add(checkManifest(projectDir, recipe))
	add(checkEnvironment(projectDir, recipe))
	for _, c := range checkRecord(projectDir, recipe) {
		add(c)
	}

	if done, err := params.EmitJSON(result); done {
		if err != nil {
			return err
		}
	} else {
		printReport(result, config)
	}
	if !result.Healthy {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

func checkEntryPoint(projectDir string, recipe *project.Recipe) check {
	path := filepath.Join(projectDir, recipe.EntryPoint)
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return check{"entry-point", checkFail, fmt.Sprintf("%s missing", recipe.EntryPoint)}
	case err != nil:
		return check{"entry-point", checkFail, err.Error()}
	case info.IsDir():
		return check{"entry-point", checkFail, fmt.Sprintf("%s is a directory", recipe.EntryPoint)}
	default:
		return check{"entry-point", checkOK, recipe.EntryPoint}
	}
}

func checkManifest(projectDir string, recipe *project.Recipe) check {
	declared, err := manifest.ReadFile(filepath.Join(projectDir, recipe.Manifest))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return check{"manifest", checkFail, fmt.Sprintf("%s missing", recipe.Manifest)}
		}
		return check{"manifest", checkFail, err.Error()}
	}
	if declared.Empty() {
		return check{"manifest", checkWarn, fmt.Sprintf("%s declares nothing", recipe.Manifest)}
	}

	pinned := 0
	for _, requirement := range declared.Requirements {
		if requirement.Pinned() {
			pinned++
		}
	}
	detail := fmt.Sprintf("%d requirements, %d pinned, hash %.12s",
		len(declared.Requirements), pinned, manifest.FormatHash(declared.Hash()))
	if pinned < len(declared.Requirements) {
		return check{"manifest", checkWarn, detail + " (unpinned requirements make builds drift)"}
	}
	return check{"manifest", checkOK, detail}
}

func checkEnvironment(projectDir string, recipe *project.Recipe) check {
	environment, err := venv.New(filepath.Join(projectDir, recipe.EnvironmentDir))
	if err != nil {
		return check{"environment", checkFail, err.Error()}
	}
	status, err := environment.Probe()
	switch {
	case err != nil:
		return check{"environment", checkFail, err.Error()}
	case !status.Exists:
		return check{"environment", checkWarn, fmt.Sprintf("%s absent (build will create it)", recipe.EnvironmentDir)}
	case !status.Valid:
		return check{"environment", checkFail, fmt.Sprintf("%s exists but is not a usable environment", recipe.EnvironmentDir)}
	default:
		return check{"environment", checkOK, "python " + status.Version}
	}
}

func checkRecord(projectDir string, recipe *project.Recipe) []check {
	record, err := state.Load(projectDir)
	if err != nil {
		return []check{{"build-record", checkFail, err.Error()}}
	}
	if record == nil {
		return []check{{"build-record", checkWarn, "no build recorded yet"}}
	}

	checks := []check{}
	if record.Final == string(pipeline.StateDone) {
		checks = append(checks, check{"build-record", checkOK,
			fmt.Sprintf("last build done at %s", record.UpdatedAt.Format("2006-01-02 15:04:05"))})
	} else {
		checks = append(checks, check{"build-record", checkWarn,
			fmt.Sprintf("last run halted at %q", record.Final)})
	}

	if record.ArtifactPath != "" {
		hash, err := state.HashFile(record.ArtifactPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			checks = append(checks, check{"artifact", checkWarn, "recorded artifact deleted"})
		case err != nil:
			checks = append(checks, check{"artifact", checkFail, err.Error()})
		case hash != record.ArtifactHash:
			checks = append(checks, check{"artifact", checkFail, "artifact content changed since it was built"})
		default:
			checks = append(checks, check{"artifact", checkOK, record.ArtifactPath})
		}
	}
	return checks
}

// styles holds the rendering for one color mode.
type styles struct {
	ok, warn, fail, name lipgloss.Style
}

// newStyles builds styles against an explicit renderer so the color
// decision follows the config and the actual terminal, not global
// detection at import time.
func newStyles(config *project.Config) styles {
	profile := termenv.Ascii
	useColor := false
	switch config.Output.Color {
	case "always":
		useColor = true
	case "never":
	default:
		useColor = term.IsTerminal(int(os.Stdout.Fd()))
	}
	if useColor {
		profile = termenv.EnvColorProfile()
	}

	renderer := lipgloss.NewRenderer(os.Stdout, termenv.WithProfile(profile))
	return styles{
		ok:   renderer.NewStyle().Foreground(lipgloss.Color("2")),
		warn: renderer.NewStyle().Foreground(lipgloss.Color("3")),
		fail: renderer.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		name: renderer.NewStyle().Faint(true),
	}
}

func printReport(result report, config *project.Config) {
	rendering := newStyles(config)
	fmt.Printf("project %s\n", result.Project)
	for _, c := range result.Checks {
		var marker string
		switch c.State {
		case checkOK:
			marker = rendering.ok.Render("✓")
		case checkWarn:
			marker = rendering.warn.Render("!")
		default:
			marker = rendering.fail.Render("✗")
		}
		fmt.Printf("  %s %s %s\n", marker, rendering.name.Render(fmt.Sprintf("%-13s", c.Name)), c.Detail)
	}
}
