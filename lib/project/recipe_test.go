// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseRecipe(t *testing.T) {
	t.Parallel()

	recipe, err := ParseRecipe([]byte(`{
		// Desktop RAW converter.
		"entry_point": "rw2toexr.py",
		"console": false,
		"extra_args": ["--collect-all", "rawpy"],
		"archive": {
			"compression": "lz4",
		},
	}`))
	if err != nil {
		t.Fatalf("ParseRecipe: %v", err)
	}
	if recipe.EntryPoint != "rw2toexr.py" {
		t.Errorf("EntryPoint = %q", recipe.EntryPoint)
	}
	if recipe.Name != "rw2toexr" {
		t.Errorf("Name = %q, want entry stem", recipe.Name)
	}
	if recipe.Manifest != "requirements.txt" {
		t.Errorf("Manifest = %q, want default", recipe.Manifest)
	}
	if recipe.EnvironmentDir != ".venv" {
		t.Errorf("EnvironmentDir = %q, want default", recipe.EnvironmentDir)
	}
	if len(recipe.ExtraArgs) != 2 || recipe.ExtraArgs[0] != "--collect-all" {
		t.Errorf("ExtraArgs = %v", recipe.ExtraArgs)
	}
	if recipe.Archive.Compression != "lz4" {
		t.Errorf("Archive.Compression = %q", recipe.Archive.Compression)
	}
	if recipe.Archive.Output != filepath.Join("dist", "rw2toexr.pyba") {
		t.Errorf("Archive.Output = %q", recipe.Archive.Output)
	}
}

func TestParseRecipeRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"absolute-entry", `{"entry_point": "/usr/lib/app.py"}`, "must be relative"},
		{"absolute-env", `{"environment_dir": "/tmp/venv"}`, "must be relative"},
		{"bad-codec", `{"archive": {"compression": "brotli"}}`, "unknown codec"},
		{"not-json", `{"entry_point": `, "parsing recipe"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseRecipe([]byte(test.text))
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("error = %v, want %q", err, test.want)
			}
		})
	}
}

func TestLoadRecipeAbsentFile(t *testing.T) {
	t.Parallel()

	recipe, err := LoadRecipe(t.TempDir())
	if err != nil {
		t.Fatalf("LoadRecipe: %v", err)
	}
	if recipe.EntryPoint != "main.py" || recipe.Name != "main" {
		t.Errorf("defaults = %+v", recipe)
	}
	if recipe.Archive.Compression != "zstd" {
		t.Errorf("Archive.Compression = %q, want zstd default", recipe.Archive.Compression)
	}
}

func TestLoadRecipeFromDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	text := `{
		"entry_point": "tools/convert.py",
		"name": "converter", // release name
	}`
	if err := os.WriteFile(filepath.Join(dir, RecipeFileName), []byte(text), 0o644); err != nil {
		t.Fatalf("writing recipe: %v", err)
	}

	recipe, err := LoadRecipe(dir)
	if err != nil {
		t.Fatalf("LoadRecipe: %v", err)
	}
	if recipe.EntryPoint != "tools/convert.py" {
		t.Errorf("EntryPoint = %q", recipe.EntryPoint)
	}
	if recipe.Name != "converter" {
		t.Errorf("Name = %q, want explicit name over stem", recipe.Name)
	}
}

func TestLoadRecipeMalformedFileNamesPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, RecipeFileName), []byte("{["), 0o644); err != nil {
		t.Fatalf("writing recipe: %v", err)
	}
	_, err := LoadRecipe(dir)
	if err == nil || !strings.Contains(err.Error(), RecipeFileName) {
		t.Errorf("error = %v, want recipe path in message", err)
	}
}

func TestEntryStem(t *testing.T) {
	t.Parallel()

	for input, want := range map[string]string{
		"rw2toexr.py":       "rw2toexr",
		"tools/convert.py":  "convert",
		"noextension":       "noextension",
		"archive.tar.gz.py": "archive.tar.gz",
	} {
		if got := entryStem(input); got != want {
			t.Errorf("entryStem(%q) = %q, want %q", input, got, want)
		}
	}
}
