// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the pybundle CLI.
//
// The central type is [Command]: a named subcommand with optional
// nested [Command.Subcommands], a [pflag.FlagSet] factory, and a Run
// function. Commands are assembled into a tree in
// cmd/pybundle/commands and dispatched via [Command.Execute], which
// handles flag parsing, subcommand routing, and help output.
//
// Flag binding is declarative: a command declares a params struct
// whose fields carry flag:/desc:/default: tags, and
// [FlagsFromParams] reflects them into a FlagSet. Embedding
// [JSONOutput] in a params struct adds the --json flag and the
// EmitJSON method, so every command can serve both humans and
// scripts.
//
// Unknown subcommands and flags get a "did you mean" suggestion
// computed by Levenshtein edit distance (threshold: distance <= 3).
//
// Errors returned from Run are classified with [ToolError] categories
// so scripted callers can distinguish bad input from missing
// resources from transient failures without parsing message text.
// [ExitError] lets a command that already printed its own output
// select the process exit code directly.
package cli
