// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

// Package python provides typed access to Python toolchain binaries
// (the interpreter, pip, pyinstaller). It centralizes binary
// resolution and provides uniform error formatting across all
// toolchain invocations.
//
// Two resolution contexts exist:
//
//   - System interpreter: used once, to create the virtual
//     environment. Resolved from PATH, checking the conventional
//     names in order (python3, then python).
//   - Environment binaries: the interpreter and entry points inside a
//     virtual environment. Resolved from the environment's binary
//     directory (bin/ on POSIX, Scripts/ on Windows), never from PATH,
//     so a bootstrapped project can never silently fall back to a
//     system-wide installation.
package python

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
)

// interpreterNames are the candidate names for the system interpreter,
// checked in order. "python3" is preferred: on Debian-family systems
// "python" may be absent, and on older systems it may be Python 2.
var interpreterNames = []string{"python3", "python"}

// FindInterpreter resolves the system Python interpreter from PATH.
// Returns the absolute path to the binary.
func FindInterpreter() (string, error) {
	for _, name := range interpreterNames {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no python interpreter found on PATH (tried %v) — install Python 3 first", interpreterNames)
}

// BinDir returns the binary directory of a virtual environment rooted
// at root: <root>/bin on POSIX systems, <root>/Scripts on Windows.
func BinDir(root string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(root, "Scripts")
	}
	return filepath.Join(root, "bin")
}

// ExeSuffix is the executable filename suffix for the current
// platform: ".exe" on Windows, empty elsewhere.
func ExeSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}

// EnvBinary returns the path of a named binary inside the virtual
// environment rooted at root. The path is constructed, not probed:
// callers that need existence guarantees must stat it themselves
// (see venv.Probe).
func EnvBinary(root, name string) string {
	return filepath.Join(BinDir(root), name+ExeSuffix())
}

// EnvInterpreter returns the path of the interpreter inside the
// virtual environment rooted at root. On POSIX the venv module always
// creates a "python" entry (a symlink to the creating interpreter);
// on Windows it creates "python.exe".
func EnvInterpreter(root string) string {
	return EnvBinary(root, "python")
}
