// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

// Package bundle implements "pybundle package" (run the bundler
// against an existing environment) and the "pybundle archive"
// subcommands (wrap the artifact in a compressed, optionally
// encrypted distribution blob, and unwrap it again).
package bundle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/pybundle-project/pybundle/cmd/pybundle/cli"
	"github.com/pybundle-project/pybundle/lib/archive"
	"github.com/pybundle-project/pybundle/lib/bundler"
	"github.com/pybundle-project/pybundle/lib/invoke"
	"github.com/pybundle-project/pybundle/lib/venv"
)

type packageParams struct {
	cli.JSONOutput
	cli.Scope
	Clean bool `json:"clean" flag:"clean" desc:"wipe the bundler's cache before building"`
	Quiet bool `json:"quiet" flag:"quiet,q" desc:"do not stream tool output"`
}

// PackageCommand returns the top-level "package" command.
func PackageCommand() *cli.Command {
	var params packageParams
	return &cli.Command{
		Name:    "package",
		Summary: "Package the entry point with the environment's bundler",
		Description: `Run PyInstaller against the recipe's entry point, producing a
single-file windowed executable in dist/ (adjustable via the recipe).
The environment must already exist and hold pyinstaller; "pybundle
build" does all of that in one go.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("package", &params)
		},
		Run: func(args []string) error {
			runner := &invoke.Exec{Stream: !params.Quiet && !params.OutputJSON}
			return runPackage(context.Background(), &params, runner)
		},
	}
}

func runPackage(ctx context.Context, params *packageParams, runner invoke.Runner) error {
	projectDir, recipe, _, err := params.Load()
	if err != nil {
		return err
	}
	environment, err := venv.New(filepath.Join(projectDir, recipe.EnvironmentDir))
	if err != nil {
		return cli.Internal("%v", err)
	}

	artifact, err := bundler.Package(ctx, runner, environment, projectDir, bundler.Options{
		EntryPoint: filepath.Join(projectDir, recipe.EntryPoint),
		Name:       recipe.Name,
		OneFile:    !recipe.OneDir,
		Windowed:   !recipe.Console,
		Clean:      params.Clean,
		ExtraArgs:  recipe.ExtraArgs,
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cli.NotFound("%w", err)
		}
		return cli.Internal("%w", err)
	}

	if done, err := params.EmitJSON(artifact); done {
		return err
	}
	fmt.Printf("packaged %s (%d bytes)\n", artifact.Path, artifact.Size)
	return nil
}

// ArchiveCommand returns the top-level "archive" command.
func ArchiveCommand() *cli.Command {
	return &cli.Command{
		Name:    "archive",
		Summary: "Wrap and unwrap distributable artifact blobs",
		Subcommands: []*cli.Command{
			archiveCreateCommand(),
			archiveExtractCommand(),
			archiveInfoCommand(),
		},
		Examples: []cli.Example{
			{Description: "archive the last built artifact", Command: "pybundle archive create"},
			{Description: "archive with encryption", Command: "pybundle archive create --key-file release.key"},
			{Description: "unpack a received blob", Command: "pybundle archive extract rw2toexr.pyba -o rw2toexr"},
		},
	}
}

type archiveCreateParams struct {
	cli.JSONOutput
	cli.Scope
	Compression string `json:"compression" flag:"compression" desc:"codec: zstd, lz4, or none (default from recipe)"`
	KeyFile     string `json:"-" flag:"key-file" desc:"hex key file; enables encryption"`
	Output      string `json:"output" flag:"output,o" desc:"archive path (default from recipe)"`
}

func archiveCreateCommand() *cli.Command {
	var params archiveCreateParams
	return &cli.Command{
		Name:    "create",
		Summary: "Compress (and optionally encrypt) the built artifact",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("archive create", &params)
		},
		Run: func(args []string) error {
			return runArchiveCreate(&params)
		},
	}
}

func runArchiveCreate(params *archiveCreateParams) error {
	projectDir, recipe, _, err := params.Load()
	if err != nil {
		return err
	}

	artifactPath := bundler.ExpectedArtifactPath(projectDir, bundler.Options{
		EntryPoint: filepath.Join(projectDir, recipe.EntryPoint),
		Name:       recipe.Name,
		OneFile:    !recipe.OneDir,
	})
	if _, err := os.Stat(artifactPath); err != nil {
		return cli.NotFound("no artifact at %s; run \"pybundle build\" or \"pybundle package\" first", artifactPath)
	}

	compressionName := params.Compression
	if compressionName == "" {
		compressionName = recipe.Archive.Compression
	}
	compression, err := archive.ParseCompressionTag(compressionName)
	if err != nil {
		return cli.Validation("%v", err)
	}

	keyFile := params.KeyFile
	if keyFile == "" {
		keyFile = recipe.Archive.KeyFile
	}
	var key []byte
	if keyFile != "" {
		key, err = archive.ReadKeyFile(keyFile)
		if err != nil {
			return cli.Validation("%v", err)
		}
	}

	outputPath := params.Output
	if outputPath == "" {
		outputPath = recipe.Archive.Output
	}
	if !filepath.IsAbs(outputPath) {
		outputPath = filepath.Join(projectDir, outputPath)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return cli.Internal("creating archive directory: %v", err)
	}

	info, err := archive.Create(outputPath, artifactPath, archive.Options{
		Compression: compression,
		Key:         key,
	})
	if err != nil {
		return cli.Internal("%v", err)
	}

	if done, err := params.EmitJSON(info); done {
		return err
	}
	fmt.Printf("archived %s → %s (%d → %d bytes, %s%s)\n",
		artifactPath, info.Path, info.OriginalSize, info.ArchiveSize,
		info.Compression, encryptedSuffix(info.Encrypted))
	return nil
}

func encryptedSuffix(encrypted bool) string {
	if encrypted {
		return ", encrypted"
	}
	return ""
}

type archiveExtractParams struct {
	cli.JSONOutput
	KeyFile string `json:"-" flag:"key-file" desc:"hex key file for encrypted blobs"`
	Output  string `json:"output" flag:"output,o" desc:"destination path (default: blob name without .pyba)"`
}

func archiveExtractCommand() *cli.Command {
	var params archiveExtractParams
	return &cli.Command{
		Name:    "extract",
		Summary: "Verify and unpack an archive blob",
		Usage:   "pybundle archive extract <blob> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("archive extract", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.Validation("archive extract takes exactly one blob path, got %d arguments", len(args))
			}
			return runArchiveExtract(&params, args[0])
		},
	}
}

func runArchiveExtract(params *archiveExtractParams, blobPath string) error {
	if _, err := os.Stat(blobPath); err != nil {
		return cli.NotFound("archive %s: %v", blobPath, err)
	}

	var key []byte
	if params.KeyFile != "" {
		material, err := archive.ReadKeyFile(params.KeyFile)
		if err != nil {
			return cli.Validation("%v", err)
		}
		key = material
	}

	outputPath := params.Output
	if outputPath == "" {
		outputPath = strings.TrimSuffix(blobPath, ".pyba")
		if outputPath == blobPath {
			outputPath = blobPath + ".out"
		}
	}

	if err := archive.Extract(outputPath, blobPath, key); err != nil {
		return cli.Internal("%v", err)
	}

	if done, err := params.EmitJSON(map[string]string{"extracted": outputPath}); done {
		return err
	}
	fmt.Printf("extracted %s\n", outputPath)
	return nil
}

type archiveInfoParams struct {
	cli.JSONOutput
}

func archiveInfoCommand() *cli.Command {
	var params archiveInfoParams
	return &cli.Command{
		Name:    "info",
		Summary: "Show the content hash embedded in an archive header",
		Usage:   "pybundle archive info <blob> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("archive info", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.Validation("archive info takes exactly one blob path, got %d arguments", len(args))
			}
			hash, err := archive.EmbeddedHash(args[0])
			if err != nil {
				return cli.Validation("%v", err)
			}
			if done, err := params.EmitJSON(map[string]string{"original_hash": hash}); done {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}
