// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest of a manifest's canonical
// serialization.
type Hash [32]byte

// manifestDomainKey is the BLAKE3 keyed-hash key for manifest
// digests. Domain separation keeps manifest hashes from ever
// colliding with file-content hashes (lib/state uses a different
// key). The byte values are the ASCII domain name, zero-padded to
// 32 bytes; readable ASCII makes the key inspectable in hex dumps
// without weakening BLAKE3 keyed mode.
var manifestDomainKey = [32]byte{
	'p', 'y', 'b', 'u', 'n', 'd', 'l', 'e', '.', 'm', 'a', 'n', 'i', 'f', 'e', 's',
	't', '.', 'v', '1', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Hash computes the keyed BLAKE3 digest of the manifest's canonical
// serialization. Manifests that are PEP 503 equivalent hash
// identically regardless of comments, ordering, or name spelling.
func (m *Manifest) Hash() Hash {
	hasher, err := blake3.NewKeyed(manifestDomainKey[:])
	if err != nil {
		panic("manifest: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(m.Canonical()))

	var digest Hash
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// FormatHash returns the hex encoding of a manifest hash, the
// canonical form used in state records and CLI output.
func FormatHash(hash Hash) string {
	return hex.EncodeToString(hash[:])
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing manifest hash: %w", err)
	}
	if len(decoded) != len(hash) {
		return hash, fmt.Errorf("manifest hash is %d bytes, want %d", len(decoded), len(hash))
	}
	copy(hash[:], decoded)
	return hash, nil
}
