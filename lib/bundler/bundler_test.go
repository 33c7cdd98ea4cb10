// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

package bundler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pybundle-project/pybundle/lib/invoke"
	"github.com/pybundle-project/pybundle/lib/python"
	"github.com/pybundle-project/pybundle/lib/venv"
)

func testEnvironment(t *testing.T, root string, withBundler bool) venv.Environment {
	t.Helper()

	environment, err := venv.New(root)
	if err != nil {
		t.Fatalf("venv.New: %v", err)
	}
	if err := os.MkdirAll(python.BinDir(environment.Root), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(environment.Root, "pyvenv.cfg"), []byte("version = 3.11.2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(environment.Interpreter(), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if withBundler {
		if err := os.WriteFile(environment.Binary("pyinstaller"), []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return environment
}

func TestOptionsArgs(t *testing.T) {
	t.Parallel()

	options := Options{
		EntryPoint: "rw2toexr.py",
		OneFile:    true,
		Windowed:   true,
		DistDir:    "dist",
	}
	got := strings.Join(options.args(), " ")
	want := "--onefile --noconsole --distpath dist --noconfirm rw2toexr.py"
	if got != want {
		t.Errorf("args = %q, want %q", got, want)
	}
}

func TestOptionsArgs_NamedAndClean(t *testing.T) {
	t.Parallel()

	options := Options{
		EntryPoint: "app.py",
		Name:       "converter",
		Clean:      true,
		ExtraArgs:  []string{"--hidden-import", "numpy"},
	}
	got := strings.Join(options.args(), " ")
	want := "--clean --name converter --noconfirm --hidden-import numpy app.py"
	if got != want {
		t.Errorf("args = %q, want %q", got, want)
	}
}

func TestExpectedArtifactPath(t *testing.T) {
	t.Parallel()

	suffix := python.ExeSuffix()
	tests := []struct {
		name    string
		options Options
		want    string
	}{
		{
			name:    "one-file default dist",
			options: Options{EntryPoint: "rw2toexr.py", OneFile: true},
			want:    filepath.Join("/proj", "dist", "rw2toexr"+suffix),
		},
		{
			name:    "directory build",
			options: Options{EntryPoint: "rw2toexr.py"},
			want:    filepath.Join("/proj", "dist", "rw2toexr", "rw2toexr"+suffix),
		},
		{
			name:    "explicit name and dist",
			options: Options{EntryPoint: "main.py", Name: "converter", OneFile: true, DistDir: "out"},
			want:    filepath.Join("/proj", "out", "converter"+suffix),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			got := ExpectedArtifactPath("/proj", test.options)
			if got != test.want {
				t.Errorf("ExpectedArtifactPath = %q, want %q", got, test.want)
			}
		})
	}
}

func TestPackage_Success(t *testing.T) {
	t.Parallel()

	projectDir := t.TempDir()
	entryPoint := filepath.Join(projectDir, "rw2toexr.py")
	if err := os.WriteFile(entryPoint, []byte("print('hi')\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	environment := testEnvironment(t, filepath.Join(projectDir, ".venv"), true)
	options := Options{EntryPoint: entryPoint, OneFile: true, Windowed: true}

	// The fake "bundler" writes the artifact the way a real run would.
	fake := &invoke.Fake{Handler: func(spec invoke.Spec) (invoke.Result, error) {
		artifact := ExpectedArtifactPath(projectDir, options)
		if err := os.MkdirAll(filepath.Dir(artifact), 0o755); err != nil {
			return invoke.Result{}, err
		}
		if err := os.WriteFile(artifact, []byte("binary"), 0o755); err != nil {
			return invoke.Result{}, err
		}
		return invoke.Result{}, nil
	}}

	artifact, err := Package(context.Background(), fake, environment, projectDir, options)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	if artifact.Size != int64(len("binary")) {
		t.Errorf("Size = %d, want %d", artifact.Size, len("binary"))
	}

	calls := fake.Calls()
	if len(calls) != 1 {
		t.Fatalf("recorded %d invocations, want 1", len(calls))
	}
	if calls[0].Binary != environment.Binary("pyinstaller") {
		t.Errorf("ran %q, want the environment's pyinstaller", calls[0].Binary)
	}
	command := calls[0].Command()
	for _, flag := range []string{"--onefile", "--noconsole"} {
		if !strings.Contains(command, flag) {
			t.Errorf("invocation %q missing %s", command, flag)
		}
	}
}

func TestPackage_MissingEntryPoint(t *testing.T) {
	t.Parallel()

	projectDir := t.TempDir()
	environment := testEnvironment(t, filepath.Join(projectDir, ".venv"), true)
	fake := &invoke.Fake{}

	options := Options{EntryPoint: filepath.Join(projectDir, "absent.py"), OneFile: true}
	_, err := Package(context.Background(), fake, environment, projectDir, options)
	if err == nil {
		t.Fatal("expected failure for missing entry point")
	}
	var packageErr *PackageError
	if !errors.As(err, &packageErr) {
		t.Fatalf("error type = %T, want *PackageError", err)
	}
	if len(fake.Calls()) != 0 {
		t.Error("bundler must not run when the entry point is missing")
	}
	if _, statErr := os.Stat(ExpectedArtifactPath(projectDir, options)); !os.IsNotExist(statErr) {
		t.Error("no artifact may exist after a failed packaging step")
	}
}

func TestPackage_BundlerAbsentFromEnvironment(t *testing.T) {
	t.Parallel()

	projectDir := t.TempDir()
	entryPoint := filepath.Join(projectDir, "app.py")
	if err := os.WriteFile(entryPoint, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	environment := testEnvironment(t, filepath.Join(projectDir, ".venv"), false)

	_, err := Package(context.Background(), &invoke.Fake{}, environment, projectDir, Options{EntryPoint: entryPoint})
	if err == nil || !strings.Contains(err.Error(), "pyinstaller not present") {
		t.Fatalf("err = %v, want missing-bundler error", err)
	}
}

func TestPackage_BundlerFailure(t *testing.T) {
	t.Parallel()

	projectDir := t.TempDir()
	entryPoint := filepath.Join(projectDir, "app.py")
	if err := os.WriteFile(entryPoint, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	environment := testEnvironment(t, filepath.Join(projectDir, ".venv"), true)
	fake := &invoke.Fake{Handler: invoke.FailWhen("pyinstaller", 1, "ModuleNotFoundError: No module named 'PySide6'")}

	_, err := Package(context.Background(), fake, environment, projectDir, Options{EntryPoint: entryPoint, OneFile: true})
	if err == nil {
		t.Fatal("expected bundler failure")
	}
	if !strings.Contains(err.Error(), "ModuleNotFoundError") {
		t.Errorf("error = %v, want bundler stderr included", err)
	}
}

func TestPackage_SilentBundlerWithoutArtifact(t *testing.T) {
	t.Parallel()

	projectDir := t.TempDir()
	entryPoint := filepath.Join(projectDir, "app.py")
	if err := os.WriteFile(entryPoint, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	environment := testEnvironment(t, filepath.Join(projectDir, ".venv"), true)

	// Bundler exits zero but produces nothing.
	_, err := Package(context.Background(), &invoke.Fake{}, environment, projectDir, Options{EntryPoint: entryPoint, OneFile: true})
	if err == nil || !strings.Contains(err.Error(), "artifact missing") {
		t.Fatalf("err = %v, want artifact-missing error", err)
	}
}
