// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// fileDomainKey is the BLAKE3 keyed-hash key for file-content
// digests (entry points, artifacts). A different domain key than
// manifest hashing, so the two hash families can never collide.
var fileDomainKey = [32]byte{
	'p', 'y', 'b', 'u', 'n', 'd', 'l', 'e', '.', 'f', 'i', 'l', 'e', '.', 'v', '1',
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashFile computes the hex-encoded keyed BLAKE3 digest of a file's
// contents, streaming so artifacts of any size hash in constant
// memory.
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	defer file.Close()

	hasher, err := blake3.NewKeyed(fileDomainKey[:])
	if err != nil {
		panic("state: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
