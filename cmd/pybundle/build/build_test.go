// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pybundle-project/pybundle/cmd/pybundle/cli"
	"github.com/pybundle-project/pybundle/lib/clock"
	"github.com/pybundle-project/pybundle/lib/invoke"
	"github.com/pybundle-project/pybundle/lib/pipeline"
	"github.com/pybundle-project/pybundle/lib/state"
	"github.com/pybundle-project/pybundle/lib/testutil"
)

// converterProject writes a project fixture with a ready-made
// environment tree, so the create step is a no-op and the fake runner
// only sees installer and bundler invocations.
func converterProject(t *testing.T) string {
	t.Helper()
	projectDir := testutil.ProjectDir(t, map[string]string{
		"rw2toexr.py":      "import sys\nsys.exit(0)\n",
		"requirements.txt": "rawpy==0.19.1\nnumpy==1.26.4\npyinstaller==6.6.0\n",
		"pybundle.jsonc":   `{"entry_point": "rw2toexr.py"}`,
	})
	testutil.EnvironmentTree(t, filepath.Join(projectDir, ".venv"), "pyinstaller")
	return projectDir
}

// bundlingFake returns a runner that emulates a successful toolchain:
// every invocation succeeds, and a pyinstaller run drops the expected
// artifact into dist/.
func bundlingFake(projectDir, artifactName string) *invoke.Fake {
	return &invoke.Fake{Handler: func(spec invoke.Spec) (invoke.Result, error) {
		if strings.Contains(spec.Binary, "pyinstaller") {
			distDir := filepath.Join(projectDir, "dist")
			if err := os.MkdirAll(distDir, 0o755); err != nil {
				return invoke.Result{}, err
			}
			path := filepath.Join(distDir, artifactName)
			if err := os.WriteFile(path, []byte("ELF stand-in"), 0o755); err != nil {
				return invoke.Result{}, err
			}
		}
		return invoke.Result{}, nil
	}}
}

func TestRunFullSequence(t *testing.T) {
	t.Parallel()

	projectDir := converterProject(t)
	fake := bundlingFake(projectDir, "rw2toexr")
	params := &buildParams{Scope: cli.Scope{Project: projectDir}, Quiet: true}

	if err := run(context.Background(), params, fake, clock.Fake(time.Unix(1700000000, 0))); err != nil {
		t.Fatalf("run: %v", err)
	}

	commands := fake.CallCommands()
	var sawUpgrade, sawInstall, sawBundle bool
	for _, command := range commands {
		switch {
		case strings.Contains(command, "pip install --upgrade pip"):
			sawUpgrade = true
		case strings.Contains(command, "pip install -r"):
			sawInstall = true
		case strings.Contains(command, "pyinstaller"):
			sawBundle = true
		}
	}
	if !sawUpgrade || !sawInstall || !sawBundle {
		t.Errorf("commands = %v, want upgrade, install, and bundle", commands)
	}

	record, err := state.Load(projectDir)
	if err != nil || record == nil {
		t.Fatalf("Load record: %v, %v", record, err)
	}
	if record.Final != string(pipeline.StateDone) {
		t.Errorf("record.Final = %q", record.Final)
	}
	if record.ManifestHash == "" || record.EntryHash == "" || record.ArtifactHash == "" {
		t.Errorf("record hashes incomplete: %+v", record)
	}
	if record.PythonVersion != "3.12.4" {
		t.Errorf("PythonVersion = %q", record.PythonVersion)
	}
	if len(record.Steps) != 4 {
		t.Errorf("recorded %d steps, want 4", len(record.Steps))
	}
	if filepath.Base(record.ArtifactPath) != "rw2toexr" {
		t.Errorf("ArtifactPath = %q", record.ArtifactPath)
	}
}

func TestRunSkipsInstallWhenManifestUnchanged(t *testing.T) {
	t.Parallel()

	projectDir := converterProject(t)
	params := &buildParams{Scope: cli.Scope{Project: projectDir}, Quiet: true}

	first := bundlingFake(projectDir, "rw2toexr")
	if err := run(context.Background(), params, first, clock.Fake(time.Unix(1700000000, 0))); err != nil {
		t.Fatalf("first run: %v", err)
	}

	second := bundlingFake(projectDir, "rw2toexr")
	if err := run(context.Background(), params, second, clock.Fake(time.Unix(1700003600, 0))); err != nil {
		t.Fatalf("second run: %v", err)
	}
	for _, command := range second.CallCommands() {
		if strings.Contains(command, "pip install") {
			t.Errorf("unchanged manifest reran pip: %q", command)
		}
	}

	// --no-skip forces the install stage.
	forced := bundlingFake(projectDir, "rw2toexr")
	params.NoSkip = true
	if err := run(context.Background(), params, forced, clock.Fake(time.Unix(1700007200, 0))); err != nil {
		t.Fatalf("forced run: %v", err)
	}
	var sawInstall bool
	for _, command := range forced.CallCommands() {
		if strings.Contains(command, "pip install -r") {
			sawInstall = true
		}
	}
	if !sawInstall {
		t.Error("--no-skip did not rerun the installer")
	}
}

func TestRunHaltsAtResolutionFailure(t *testing.T) {
	t.Parallel()

	projectDir := converterProject(t)
	fake := &invoke.Fake{Handler: invoke.FailWhen("pip install -r", 1,
		"ERROR: No matching distribution found for rawpy==0.19.1")}
	params := &buildParams{Scope: cli.Scope{Project: projectDir}, Quiet: true}

	err := run(context.Background(), params, fake, clock.Fake(time.Unix(1700000000, 0)))
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(err.Error(), "No matching distribution") {
		t.Errorf("error = %v, want pip stderr surfaced", err)
	}
	if got := cli.ResolveExitCode(err); got != 1 {
		t.Errorf("exit code = %d, want pip's", got)
	}

	// The bundler must never have run.
	for _, command := range fake.CallCommands() {
		if strings.Contains(command, "pyinstaller") {
			t.Error("bundler ran after install failure")
		}
	}

	// The halt point is recorded for the next run and for status.
	record, loadErr := state.Load(projectDir)
	if loadErr != nil || record == nil {
		t.Fatalf("Load record: %v, %v", record, loadErr)
	}
	if record.Final != string(pipeline.StateEnvironmentReady) {
		t.Errorf("record.Final = %q, want halt state", record.Final)
	}
}

func TestRunAfterFailedInstallRunsInstaller(t *testing.T) {
	t.Parallel()

	// A halted run records the manifest hash without the install
	// having succeeded. The rerun must not mistake that for an
	// installed manifest.
	projectDir := converterProject(t)
	params := &buildParams{Scope: cli.Scope{Project: projectDir}, Quiet: true}

	failing := &invoke.Fake{Handler: invoke.FailWhen("pip install -r", 1,
		"ERROR: Could not find a version that satisfies the requirement numpy==1.26.4")}
	if err := run(context.Background(), params, failing, clock.Fake(time.Unix(1700000000, 0))); err == nil {
		t.Fatal("expected first run to fail")
	}

	retry := bundlingFake(projectDir, "rw2toexr")
	if err := run(context.Background(), params, retry, clock.Fake(time.Unix(1700003600, 0))); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	var sawInstall bool
	for _, command := range retry.CallCommands() {
		if strings.Contains(command, "pip install -r") {
			sawInstall = true
		}
	}
	if !sawInstall {
		t.Error("rerun skipped the installer after a failed install")
	}
	record, err := state.Load(projectDir)
	if err != nil || record == nil {
		t.Fatalf("Load record: %v, %v", record, err)
	}
	if record.Final != string(pipeline.StateDone) {
		t.Errorf("record.Final = %q after rerun", record.Final)
	}
}

func TestRunMissingManifest(t *testing.T) {
	t.Parallel()

	projectDir := testutil.ProjectDir(t, map[string]string{
		"rw2toexr.py": "print('hello')\n",
	})
	params := &buildParams{Scope: cli.Scope{Project: projectDir}, Quiet: true}

	err := run(context.Background(), params, &invoke.Fake{}, clock.Real())
	var toolErr *cli.ToolError
	if !errors.As(err, &toolErr) || toolErr.Category != cli.CategoryNotFound {
		t.Errorf("error = %v, want not_found", err)
	}
}

func TestRunMissingEntryPoint(t *testing.T) {
	t.Parallel()

	projectDir := testutil.ProjectDir(t, map[string]string{
		"requirements.txt": "",
		"pybundle.jsonc":   `{"entry_point": "rw2toexr.py"}`,
	})
	testutil.EnvironmentTree(t, filepath.Join(projectDir, ".venv"), "pyinstaller")
	params := &buildParams{Scope: cli.Scope{Project: projectDir}, Quiet: true}

	err := run(context.Background(), params, &invoke.Fake{}, clock.Fake(time.Unix(1700000000, 0)))
	var toolErr *cli.ToolError
	if !errors.As(err, &toolErr) || toolErr.Category != cli.CategoryNotFound {
		t.Errorf("error = %v, want not_found", err)
	}
	if _, statErr := os.Stat(filepath.Join(projectDir, "dist")); statErr == nil {
		t.Error("artifact directory exists after failed packaging")
	}
}

func TestRunEmptyManifestMinimalEntryPoint(t *testing.T) {
	t.Parallel()

	// An empty manifest and a no-op script still produce exactly one
	// artifact and a clean exit.
	projectDir := testutil.ProjectDir(t, map[string]string{
		"main.py":          "pass\n",
		"requirements.txt": "# nothing pinned yet\n",
	})
	testutil.EnvironmentTree(t, filepath.Join(projectDir, ".venv"), "pyinstaller")

	fake := bundlingFake(projectDir, "main")
	params := &buildParams{Scope: cli.Scope{Project: projectDir}, Quiet: true}

	if err := run(context.Background(), params, fake, clock.Fake(time.Unix(1700000000, 0))); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, command := range fake.CallCommands() {
		if strings.Contains(command, "pip install -r") {
			t.Errorf("empty manifest invoked pip: %q", command)
		}
	}
	entries, err := os.ReadDir(filepath.Join(projectDir, "dist"))
	if err != nil || len(entries) != 1 {
		t.Errorf("dist entries = %v, %v; want exactly one artifact", entries, err)
	}
}
