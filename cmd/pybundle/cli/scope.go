// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"os"
	"path/filepath"

	"github.com/pybundle-project/pybundle/lib/project"
)

// Scope is the embeddable parameter block shared by every command
// that operates on a project: --project selects the project
// directory, --config names an explicit global config file.
type Scope struct {
	Project    string `json:"project" flag:"project,p" desc:"project directory" default:"."`
	ConfigFile string `json:"-" flag:"config" desc:"global config file (overrides PYBUNDLE_CONFIG)"`
}

// Load resolves the project directory and loads its recipe and the
// global config. The directory must exist; everything else has
// defaults.
func (s *Scope) Load() (string, *project.Recipe, *project.Config, error) {
	projectDir, err := filepath.Abs(s.Project)
	if err != nil {
		return "", nil, nil, Validation("resolving project directory %q: %v", s.Project, err)
	}
	info, err := os.Stat(projectDir)
	if err != nil {
		return "", nil, nil, NotFound("project directory %s: %v", projectDir, err)
	}
	if !info.IsDir() {
		return "", nil, nil, Validation("project path %s is not a directory", projectDir)
	}

	recipe, err := project.LoadRecipe(projectDir)
	if err != nil {
		return "", nil, nil, Validation("%v", err)
	}

	var config *project.Config
	if s.ConfigFile != "" {
		config, err = project.LoadConfigFile(s.ConfigFile)
	} else {
		config, err = project.LoadConfig()
	}
	if err != nil {
		return "", nil, nil, Validation("%v", err)
	}

	return projectDir, recipe, config, nil
}

// BaseInterpreter resolves the base interpreter precedence: the
// recipe wins over the global config, and an empty result means PATH
// discovery applies.
func BaseInterpreter(recipe *project.Recipe, config *project.Config) string {
	if recipe.Interpreter != "" {
		return recipe.Interpreter
	}
	return config.Python.Interpreter
}
