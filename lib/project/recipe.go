// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

// Package project locates and loads the two configuration surfaces of
// a build: the per-project recipe (pybundle.jsonc, authored as JSONC
// so it can carry comments and trailing commas) and the optional
// per-operator global config (YAML, pointed to by PYBUNDLE_CONFIG or
// --config, never discovered).
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
)

// RecipeFileName is the recipe's conventional name in the project
// directory.
const RecipeFileName = "pybundle.jsonc"

// Recipe declares what to build for one project. Every field has a
// default, so an empty (or absent) recipe describes the conventional
// layout: main.py packaged from requirements.txt into dist/.
type Recipe struct {
	// EntryPoint is the script handed to the bundler, relative to
	// the project directory.
	EntryPoint string `json:"entry_point"`

	// Name is the artifact name. Defaults to the entry point's
	// stem.
	Name string `json:"name"`

	// Manifest is the requirements file, relative to the project
	// directory.
	Manifest string `json:"manifest"`

	// EnvironmentDir is where the isolated environment lives,
	// relative to the project directory.
	EnvironmentDir string `json:"environment_dir"`

	// Interpreter overrides base interpreter discovery with an
	// explicit binary path or name.
	Interpreter string `json:"interpreter"`

	// Console keeps the console window attached on platforms that
	// distinguish windowed executables. The default is windowed.
	Console bool `json:"console"`

	// OneDir packages into a directory instead of a single file.
	OneDir bool `json:"one_dir"`

	// ExtraArgs are appended verbatim to the bundler invocation.
	ExtraArgs []string `json:"extra_args"`

	// Archive configures the optional distribution archive.
	Archive ArchiveRecipe `json:"archive"`
}

// ArchiveRecipe configures `pybundle archive`.
type ArchiveRecipe struct {
	// Compression names the codec: zstd (default), lz4, or none.
	Compression string `json:"compression"`

	// KeyFile points at a 64-character hex key file. When set,
	// archives are encrypted.
	KeyFile string `json:"key_file"`

	// Output is the archive path, relative to the project
	// directory. Defaults to dist/<name>.pyba.
	Output string `json:"output"`
}

// DefaultRecipe returns the recipe for a project with no
// pybundle.jsonc.
func DefaultRecipe() *Recipe {
	return &Recipe{
		EntryPoint:     "main.py",
		Manifest:       "requirements.txt",
		EnvironmentDir: ".venv",
	}
}

// ParseRecipe strips JSONC comments and trailing commas from data,
// unmarshals the result, and fills defaults.
func ParseRecipe(data []byte) (*Recipe, error) {
	stripped := jsonc.ToJSON(data)

	recipe := &Recipe{}
	if err := json.Unmarshal(stripped, recipe); err != nil {
		return nil, fmt.Errorf("parsing recipe: %w", err)
	}
	recipe.fillDefaults()
	if err := recipe.validate(); err != nil {
		return nil, err
	}
	return recipe, nil
}

// LoadRecipe reads the recipe from projectDir. An absent recipe file
// is not an error: the project gets DefaultRecipe.
func LoadRecipe(projectDir string) (*Recipe, error) {
	path := filepath.Join(projectDir, RecipeFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		recipe := DefaultRecipe()
		recipe.fillDefaults()
		return recipe, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	recipe, err := ParseRecipe(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recipe, nil
}

func (r *Recipe) fillDefaults() {
	defaults := DefaultRecipe()
	if r.EntryPoint == "" {
		r.EntryPoint = defaults.EntryPoint
	}
	if r.Manifest == "" {
		r.Manifest = defaults.Manifest
	}
	if r.EnvironmentDir == "" {
		r.EnvironmentDir = defaults.EnvironmentDir
	}
	if r.Name == "" {
		r.Name = entryStem(r.EntryPoint)
	}
	if r.Archive.Compression == "" {
		r.Archive.Compression = "zstd"
	}
	if r.Archive.Output == "" {
		r.Archive.Output = filepath.Join("dist", r.Name+".pyba")
	}
}

func (r *Recipe) validate() error {
	for field, value := range map[string]string{
		"entry_point":     r.EntryPoint,
		"manifest":        r.Manifest,
		"environment_dir": r.EnvironmentDir,
	} {
		if filepath.IsAbs(value) {
			return fmt.Errorf("recipe field %s must be relative to the project directory, got %q", field, value)
		}
	}
	switch r.Archive.Compression {
	case "zstd", "lz4", "none":
	default:
		return fmt.Errorf("recipe field archive.compression: unknown codec %q (want zstd, lz4, or none)", r.Archive.Compression)
	}
	return nil
}

// entryStem derives an artifact name from an entry-point path:
// "tools/rw2toexr.py" becomes "rw2toexr".
func entryStem(entryPoint string) string {
	base := filepath.Base(entryPoint)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
