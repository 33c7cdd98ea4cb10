// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test fixtures: on-disk project
// trees and synthetic virtual environments that look valid to a
// probe without any Python installation present.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pybundle-project/pybundle/lib/python"
)

// ProjectDir creates a temporary project directory populated with the
// given files (path relative to the project root → content). Parent
// directories are created as needed.
func ProjectDir(t *testing.T, files map[string]string) string {
	t.Helper()

	projectDir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(projectDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("creating %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
	}
	return projectDir
}

// EnvironmentTree writes a directory that passes environment probing:
// a pyvenv.cfg and an executable interpreter stub, plus any named
// extra tool stubs in the binary directory. No Python is involved.
func EnvironmentTree(t *testing.T, root string, extraTools ...string) {
	t.Helper()

	binDir := python.BinDir(root)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("creating %s: %v", binDir, err)
	}

	cfg := "home = /usr/bin\nversion = 3.12.4\nexecutable = /usr/bin/python3\n"
	if err := os.WriteFile(filepath.Join(root, "pyvenv.cfg"), []byte(cfg), 0o644); err != nil {
		t.Fatalf("writing pyvenv.cfg: %v", err)
	}

	stub := []byte("#!/bin/sh\nexit 0\n")
	tools := append([]string{"python"}, extraTools...)
	for _, tool := range tools {
		path := filepath.Join(binDir, tool+python.ExeSuffix())
		if err := os.WriteFile(path, stub, 0o755); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
	}
}
