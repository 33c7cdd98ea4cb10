// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

package venv

import (
	"context"
	"fmt"
	"os"

	"github.com/pybundle-project/pybundle/lib/invoke"
	"github.com/pybundle-project/pybundle/lib/manifest"
)

// InstallError reports that the package installer failed: the
// installer tool itself could not be upgraded, the manifest was
// missing, or a declared dependency could not be resolved. A partial
// install is a failure, never a success — pip's own exit status is
// authoritative and is propagated through the wrapped invoke error.
type InstallError struct {
	// Stage is "upgrade-installer" or "install".
	Stage string

	// Manifest is the requirements file, empty for the upgrade stage.
	Manifest string

	// Err is the underlying failure.
	Err error
}

func (e *InstallError) Error() string {
	if e.Manifest != "" {
		return fmt.Sprintf("installing dependencies from %s: %v", e.Manifest, e.Err)
	}
	return fmt.Sprintf("upgrading package installer: %v", e.Err)
}

func (e *InstallError) Unwrap() error { return e.Err }

// UpgradeInstaller upgrades pip inside the environment to its latest
// version. Runs before dependency installation so installer bugs do
// not affect dependency resolution.
func UpgradeInstaller(ctx context.Context, runner invoke.Runner, environment Environment) error {
	if _, err := runner.Run(ctx, invoke.Spec{
		Binary: environment.Interpreter(),
		Args:   []string{"-m", "pip", "install", "--upgrade", "pip"},
		Dir:    environment.Root,
		Env:    environment.CommandEnv(),
	}); err != nil {
		return &InstallError{Stage: "upgrade-installer", Err: err}
	}
	return nil
}

// InstallOptions adjusts dependency installation.
type InstallOptions struct {
	// IndexURL overrides pip's package index when non-empty.
	IndexURL string
}

// Install installs the dependencies declared in a parsed manifest
// into the environment. pip receives the manifest file itself (so
// option lines like --index-url keep their pip semantics); the
// parsed form is used only to detect the empty case and for hashing
// and reporting elsewhere.
//
// A missing manifest file is an error here, before pip ever runs. An
// empty manifest is a trivial success without invoking pip.
func Install(ctx context.Context, runner invoke.Runner, environment Environment, declared *manifest.Manifest, options InstallOptions) error {
	if declared.Path == "" {
		return &InstallError{Stage: "install", Err: fmt.Errorf("manifest has no file path")}
	}
	if _, err := os.Stat(declared.Path); err != nil {
		return &InstallError{Stage: "install", Manifest: declared.Path,
			Err: fmt.Errorf("manifest not readable: %w", err)}
	}

	if declared.Empty() {
		return nil
	}

	args := []string{"-m", "pip", "install"}
	if options.IndexURL != "" {
		args = append(args, "--index-url", options.IndexURL)
	}
	args = append(args, "-r", declared.Path)

	if _, err := runner.Run(ctx, invoke.Spec{
		Binary: environment.Interpreter(),
		Args:   args,
		Dir:    environment.Root,
		Env:    environment.CommandEnv(),
	}); err != nil {
		return &InstallError{Stage: "install", Manifest: declared.Path, Err: err}
	}
	return nil
}
