// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the operator-wide configuration. It is loaded from a
// single file named by PYBUNDLE_CONFIG or --config; there is no
// automatic discovery and no environment-variable overrides, so a
// build's inputs are always auditable. All fields are optional: the
// zero config is valid and is what every command starts from when no
// config file is named.
type Config struct {
	// Python configures interpreter discovery.
	Python PythonConfig `yaml:"python"`

	// Installer configures pip behavior.
	Installer InstallerConfig `yaml:"installer"`

	// Output configures terminal rendering.
	Output OutputConfig `yaml:"output"`
}

// PythonConfig configures base interpreter discovery.
type PythonConfig struct {
	// Interpreter is an explicit base interpreter path or name.
	// When empty, PATH discovery applies. A recipe's interpreter
	// field wins over this.
	Interpreter string `yaml:"interpreter"`
}

// InstallerConfig configures pip behavior for every project.
type InstallerConfig struct {
	// IndexURL overrides the package index, passed to pip as
	// --index-url.
	IndexURL string `yaml:"index_url"`

	// SkipUpgrade leaves the environment's bundled pip as-is
	// instead of upgrading it before installing dependencies.
	SkipUpgrade bool `yaml:"skip_upgrade"`
}

// OutputConfig configures terminal rendering.
type OutputConfig struct {
	// Color is "auto" (default), "always", or "never".
	Color string `yaml:"color"`
}

// LoadConfig loads the config file named by PYBUNDLE_CONFIG, or
// returns the zero config when the variable is unset.
func LoadConfig() (*Config, error) {
	path := os.Getenv("PYBUNDLE_CONFIG")
	if path == "" {
		return &Config{}, nil
	}
	return LoadConfigFile(path)
}

// LoadConfigFile loads a specific config file. The file must exist:
// naming a config that cannot be read is an error, never a silent
// fallback to defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	switch config.Output.Color {
	case "", "auto", "always", "never":
	default:
		return nil, fmt.Errorf("config %s: output.color must be auto, always, or never, got %q", path, config.Output.Color)
	}

	config.Python.Interpreter = expandHome(config.Python.Interpreter)
	return config, nil
}

var homePattern = regexp.MustCompile(`\$\{HOME\}|\$HOME`)

// expandHome expands ${HOME} and $HOME in a path for portability.
// Nothing else is expanded.
func expandHome(path string) string {
	if path == "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return homePattern.ReplaceAllString(path, home)
}
