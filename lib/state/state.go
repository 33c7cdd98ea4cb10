// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

// Package state persists the build-state record: what the last
// bootstrap run saw (manifest hash, entry-point hash), what it
// produced (artifact path, hash, size), and how each step went.
//
// The record is advisory. The bootstrap sequence never needs it to be
// correct — every step re-verifies filesystem state — but it lets
// "pybundle build" skip the installer when the manifest is unchanged
// and lets "pybundle status" explain what happened last time.
//
// Records are CBOR (deterministic encoding, lib/codec) at
// .pybundle/state.cbor under the project directory, written
// atomically via rename so an interrupted run never leaves a torn
// record behind.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pybundle-project/pybundle/lib/codec"
)

// RecordVersion is the current state record schema version. Decoders
// reject records from a newer pybundle rather than misreading them.
const RecordVersion = 1

// stateDir is the project-relative directory holding pybundle's own
// files.
const stateDir = ".pybundle"

// stateFile is the record filename inside stateDir.
const stateFile = "state.cbor"

// StepRecord is the persisted outcome of one pipeline step.
type StepRecord struct {
	// Name is the step name.
	Name string `cbor:"name" json:"name"`

	// Reached is the pipeline state after the step.
	Reached string `cbor:"reached" json:"reached"`

	// Duration is the step's wall-clock duration.
	Duration time.Duration `cbor:"duration" json:"duration"`

	// Failed is true when this step halted the run.
	Failed bool `cbor:"failed" json:"failed"`
}

// Record is the persisted build state of one project.
type Record struct {
	// Version is the record schema version.
	Version int `cbor:"version" json:"version"`

	// UpdatedAt is when the record was written.
	UpdatedAt time.Time `cbor:"updated_at" json:"updated_at"`

	// Final is the pipeline state the last run ended in.
	Final string `cbor:"final" json:"final"`

	// PythonVersion is the environment's interpreter version, from
	// pyvenv.cfg.
	PythonVersion string `cbor:"python_version,omitempty" json:"python_version,omitempty"`

	// ManifestHash is the hex BLAKE3 hash of the manifest's
	// canonical form at install time.
	ManifestHash string `cbor:"manifest_hash,omitempty" json:"manifest_hash,omitempty"`

	// EntryHash is the hex BLAKE3 content hash of the entry-point
	// script at packaging time.
	EntryHash string `cbor:"entry_hash,omitempty" json:"entry_hash,omitempty"`

	// ArtifactPath is where the last successful packaging run left
	// the executable.
	ArtifactPath string `cbor:"artifact_path,omitempty" json:"artifact_path,omitempty"`

	// ArtifactHash is the hex BLAKE3 content hash of the artifact.
	ArtifactHash string `cbor:"artifact_hash,omitempty" json:"artifact_hash,omitempty"`

	// ArtifactSize is the artifact size in bytes.
	ArtifactSize int64 `cbor:"artifact_size,omitempty" json:"artifact_size,omitempty"`

	// Steps are the executed steps of the last run, in order.
	Steps []StepRecord `cbor:"steps,omitempty" json:"steps,omitempty"`
}

// Path returns the state file location for a project directory.
func Path(projectDir string) string {
	return filepath.Join(projectDir, stateDir, stateFile)
}

// Load reads the project's state record. A missing record is not an
// error: Load returns (nil, nil) so callers treat first runs and
// post-clean runs uniformly.
func Load(projectDir string) (*Record, error) {
	data, err := os.ReadFile(Path(projectDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state record: %w", err)
	}

	var record Record
	if err := codec.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decoding state record %s: %w", Path(projectDir), err)
	}
	if record.Version > RecordVersion {
		return nil, fmt.Errorf("state record %s has version %d, newer than this pybundle understands (%d)",
			Path(projectDir), record.Version, RecordVersion)
	}
	return &record, nil
}

// Store writes the record atomically: encode, write to a temp file in
// the same directory, rename into place. A crash mid-write leaves
// either the old record or the new one, never a torn file.
func (r *Record) Store(projectDir string) error {
	r.Version = RecordVersion

	data, err := codec.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding state record: %w", err)
	}

	directory := filepath.Join(projectDir, stateDir)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	temp, err := os.CreateTemp(directory, stateFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tempName := temp.Name()

	if _, err := temp.Write(data); err != nil {
		temp.Close()
		os.Remove(tempName)
		return fmt.Errorf("writing state record: %w", err)
	}
	if err := temp.Close(); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("closing state record: %w", err)
	}
	if err := os.Rename(tempName, Path(projectDir)); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("replacing state record: %w", err)
	}
	return nil
}

// RawBytes returns the encoded record file as stored on disk, for
// "pybundle state show --raw". Missing records return (nil, nil).
func RawBytes(projectDir string) ([]byte, error) {
	data, err := os.ReadFile(Path(projectDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state record: %w", err)
	}
	return data, nil
}
