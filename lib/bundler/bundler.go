// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

// Package bundler invokes PyInstaller to package an entry-point
// script plus its installed dependencies into a standalone
// executable. The bundler binary is resolved from the virtual
// environment, never from PATH — packaging must see exactly the
// dependency set the install step produced.
package bundler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pybundle-project/pybundle/lib/invoke"
	"github.com/pybundle-project/pybundle/lib/python"
	"github.com/pybundle-project/pybundle/lib/venv"
)

// Options configures a packaging run.
type Options struct {
	// EntryPoint is the path of the script to package.
	EntryPoint string

	// Name is the artifact base name. Empty means the entry point's
	// filename without extension (PyInstaller's own default).
	Name string

	// OneFile requests a single self-contained executable instead of
	// a directory tree.
	OneFile bool

	// Windowed suppresses the console window at runtime (--noconsole).
	// PyInstaller ignores it on platforms without the concept.
	Windowed bool

	// Clean asks PyInstaller to wipe its work directory cache before
	// building.
	Clean bool

	// DistDir is where the artifact lands. Empty means PyInstaller's
	// conventional "dist" next to the work directory.
	DistDir string

	// WorkDir is PyInstaller's scratch directory. Empty means the
	// conventional "build".
	WorkDir string

	// ExtraArgs are appended verbatim after all generated flags.
	ExtraArgs []string
}

// artifactName returns the base name the bundler will give the
// artifact.
func (o Options) artifactName() string {
	if o.Name != "" {
		return o.Name
	}
	base := filepath.Base(o.EntryPoint)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// args assembles the PyInstaller argument list.
func (o Options) args() []string {
	var args []string
	if o.OneFile {
		args = append(args, "--onefile")
	}
	if o.Windowed {
		args = append(args, "--noconsole")
	}
	if o.Clean {
		args = append(args, "--clean")
	}
	if o.Name != "" {
		args = append(args, "--name", o.Name)
	}
	if o.DistDir != "" {
		args = append(args, "--distpath", o.DistDir)
	}
	if o.WorkDir != "" {
		args = append(args, "--workpath", o.WorkDir)
	}
	args = append(args, "--noconfirm")
	args = append(args, o.ExtraArgs...)
	args = append(args, o.EntryPoint)
	return args
}

// Artifact describes a packaged executable.
type Artifact struct {
	// Path is the artifact's location on disk.
	Path string `json:"path"`

	// Size is the artifact's size in bytes.
	Size int64 `json:"size"`
}

// PackageError reports a failed packaging step: missing entry point,
// bundler binary absent from the environment, or a bundler run that
// exited non-zero. No artifact exists when a PackageError is
// returned.
type PackageError struct {
	// EntryPoint is the script the packaging targeted.
	EntryPoint string

	// Err is the underlying failure.
	Err error
}

func (e *PackageError) Error() string {
	return fmt.Sprintf("packaging %s: %v", e.EntryPoint, e.Err)
}

func (e *PackageError) Unwrap() error { return e.Err }

// Package runs the bundler against the entry point and returns the
// produced artifact. projectDir is the working directory for the
// bundler run; relative DistDir/WorkDir options resolve against it.
func Package(ctx context.Context, runner invoke.Runner, environment venv.Environment, projectDir string, options Options) (Artifact, error) {
	if _, err := os.Stat(options.EntryPoint); err != nil {
		return Artifact{}, &PackageError{EntryPoint: options.EntryPoint,
			Err: fmt.Errorf("entry point not readable: %w", err)}
	}

	binary := environment.Binary("pyinstaller")
	if _, err := os.Stat(binary); err != nil {
		return Artifact{}, &PackageError{EntryPoint: options.EntryPoint,
			Err: fmt.Errorf("pyinstaller not present in environment at %s (is it in the manifest?): %w", binary, err)}
	}

	if _, err := runner.Run(ctx, invoke.Spec{
		Binary: binary,
		Args:   options.args(),
		Dir:    projectDir,
		Env:    environment.CommandEnv(),
	}); err != nil {
		return Artifact{}, &PackageError{EntryPoint: options.EntryPoint, Err: err}
	}

	artifactPath := ExpectedArtifactPath(projectDir, options)
	info, err := os.Stat(artifactPath)
	if err != nil {
		return Artifact{}, &PackageError{EntryPoint: options.EntryPoint,
			Err: fmt.Errorf("bundler exited successfully but artifact missing at %s: %w", artifactPath, err)}
	}

	return Artifact{Path: artifactPath, Size: info.Size()}, nil
}

// ExpectedArtifactPath computes where the bundler places the
// artifact: <dist>/<name> for one-file builds, <dist>/<name>/<name>
// for directory builds, with the platform executable suffix.
func ExpectedArtifactPath(projectDir string, options Options) string {
	distDir := options.DistDir
	if distDir == "" {
		distDir = "dist"
	}
	if !filepath.IsAbs(distDir) {
		distDir = filepath.Join(projectDir, distDir)
	}

	name := options.artifactName()
	if options.OneFile {
		return filepath.Join(distDir, name+python.ExeSuffix())
	}
	return filepath.Join(distDir, name, name+python.ExeSuffix())
}
