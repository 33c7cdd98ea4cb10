// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pybundle-project/pybundle/lib/codec"
)

func TestLoadMissing(t *testing.T) {
	t.Parallel()

	record, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load on empty project: %v", err)
	}
	if record != nil {
		t.Errorf("record = %+v, want nil for a missing file", record)
	}
}

func TestStoreLoadRoundTrip(t *testing.T) {
	t.Parallel()

	projectDir := t.TempDir()
	written := &Record{
		UpdatedAt:     time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC),
		Final:         "done",
		PythonVersion: "3.11.2",
		ManifestHash:  strings.Repeat("ab", 32),
		ArtifactPath:  filepath.Join(projectDir, "dist", "rw2toexr"),
		ArtifactSize:  81235968,
		Steps: []StepRecord{
			{Name: "create-environment", Reached: "environment-ready", Duration: 3 * time.Second},
			{Name: "install-dependencies", Reached: "dependencies-installed", Duration: 42 * time.Second},
		},
	}

	if err := written.Store(projectDir); err != nil {
		t.Fatalf("Store: %v", err)
	}

	loaded, err := Load(projectDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load returned nil after Store")
	}
	if loaded.Version != RecordVersion {
		t.Errorf("Version = %d, want %d", loaded.Version, RecordVersion)
	}
	if loaded.Final != "done" || loaded.PythonVersion != "3.11.2" {
		t.Errorf("loaded = %+v", loaded)
	}
	if !loaded.UpdatedAt.Equal(written.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", loaded.UpdatedAt, written.UpdatedAt)
	}
	if len(loaded.Steps) != 2 || loaded.Steps[1].Duration != 42*time.Second {
		t.Errorf("Steps = %+v", loaded.Steps)
	}
}

func TestStoreOverwritesAtomically(t *testing.T) {
	t.Parallel()

	projectDir := t.TempDir()
	first := &Record{Final: "environment-ready"}
	if err := first.Store(projectDir); err != nil {
		t.Fatalf("Store: %v", err)
	}
	second := &Record{Final: "done"}
	if err := second.Store(projectDir); err != nil {
		t.Fatalf("second Store: %v", err)
	}

	loaded, err := Load(projectDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Final != "done" {
		t.Errorf("Final = %q, want the second write", loaded.Final)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Join(projectDir, ".pybundle"))
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", entry.Name())
		}
	}
}

func TestLoadRejectsNewerVersion(t *testing.T) {
	t.Parallel()

	projectDir := t.TempDir()

	// Hand-encode a record claiming a future schema version; Store
	// would stamp the current one.
	data, err := codec.Marshal(Record{Version: RecordVersion + 1, Final: "done"})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(Path(projectDir)), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(Path(projectDir), data, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(projectDir); err == nil || !strings.Contains(err.Error(), "newer") {
		t.Fatalf("Load = %v, want newer-version error", err)
	}
}

func TestRawBytes(t *testing.T) {
	t.Parallel()

	projectDir := t.TempDir()
	raw, err := RawBytes(projectDir)
	if err != nil || raw != nil {
		t.Fatalf("RawBytes on empty project = (%v, %v), want (nil, nil)", raw, err)
	}

	record := &Record{Final: "done"}
	if err := record.Store(projectDir); err != nil {
		t.Fatal(err)
	}
	raw, err = RawBytes(projectDir)
	if err != nil {
		t.Fatalf("RawBytes: %v", err)
	}
	if len(raw) == 0 {
		t.Error("RawBytes returned empty data after Store")
	}
}

func TestHashFile(t *testing.T) {
	t.Parallel()

	directory := t.TempDir()
	path := filepath.Join(directory, "artifact")
	if err := os.WriteFile(path, []byte("executable bytes"), 0o755); err != nil {
		t.Fatal(err)
	}

	first, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if len(first) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(first))
	}

	second, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("same content hashed differently")
	}

	if err := os.WriteFile(path, []byte("different bytes"), 0o755); err != nil {
		t.Fatal(err)
	}
	changed, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if changed == first {
		t.Error("different content hashed identically")
	}
}

func TestHashFileMissing(t *testing.T) {
	t.Parallel()

	if _, err := HashFile(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
