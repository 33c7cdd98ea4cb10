// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

package staterecord

import (
	"errors"
	"testing"
	"time"

	"github.com/pybundle-project/pybundle/cmd/pybundle/cli"
	"github.com/pybundle-project/pybundle/lib/state"
)

func TestShowMissingRecord(t *testing.T) {
	t.Parallel()

	params := &showParams{Scope: cli.Scope{Project: t.TempDir()}}
	err := runShow(params)
	if err == nil {
		t.Fatal("runShow on empty project succeeded, want not-found")
	}
	var toolErr *cli.ToolError
	if !errors.As(err, &toolErr) || toolErr.Category != cli.CategoryNotFound {
		t.Errorf("err = %v, want not_found", err)
	}
}

func TestShowRecord(t *testing.T) {
	t.Parallel()

	projectDir := t.TempDir()
	record := &state.Record{
		UpdatedAt:     time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		Final:         "done",
		PythonVersion: "3.12.4",
		ManifestHash:  "abc123",
		Steps: []state.StepRecord{
			{Name: "create-environment", Reached: "environment-ready", Duration: 120 * time.Millisecond},
			{Name: "install-dependencies", Reached: "dependencies-installed", Duration: 5 * time.Second},
		},
	}
	if err := record.Store(projectDir); err != nil {
		t.Fatal(err)
	}

	params := &showParams{Scope: cli.Scope{Project: projectDir}}
	params.OutputJSON = true
	if err := runShow(params); err != nil {
		t.Fatalf("runShow: %v", err)
	}
}

func TestShowRaw(t *testing.T) {
	t.Parallel()

	projectDir := t.TempDir()
	record := &state.Record{
		UpdatedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		Final:     "done",
	}
	if err := record.Store(projectDir); err != nil {
		t.Fatal(err)
	}

	params := &showParams{Scope: cli.Scope{Project: projectDir}, Raw: true}
	if err := runShow(params); err != nil {
		t.Fatalf("runShow --raw: %v", err)
	}
}

func TestShowRawMissing(t *testing.T) {
	t.Parallel()

	params := &showParams{Scope: cli.Scope{Project: t.TempDir()}, Raw: true}
	err := runShow(params)
	var toolErr *cli.ToolError
	if !errors.As(err, &toolErr) || toolErr.Category != cli.CategoryNotFound {
		t.Errorf("err = %v, want not_found", err)
	}
}
