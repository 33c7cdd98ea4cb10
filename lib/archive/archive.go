// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive turns a packaged artifact into a distributable
// blob: compressed (zstd or lz4), optionally encrypted
// (XChaCha20-Poly1305 with a key derived from a 32-byte key file),
// with the original content hash embedded so extraction can verify
// integrity end to end.
//
// Blob layout:
//
//	magic "pyba" (4) | format version (1) | compression tag (1) |
//	encrypted flag (1) | original size, big endian (8) |
//	original BLAKE3 hash (32) | payload
//
// For encrypted blobs the payload is nonce (24) + ciphertext + tag,
// and the 47-byte header is the AEAD's additional authenticated
// data, so tampering with any header field fails authentication.
package archive

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// FormatVersion is the blob format version byte.
const FormatVersion byte = 0x01

// magic identifies pybundle archive blobs.
var magic = [4]byte{'p', 'y', 'b', 'a'}

// headerSize is magic + version + tag + encrypted flag + size +
// original hash.
const headerSize = 4 + 1 + 1 + 1 + 8 + 32

// keySize is the size of the archive encryption key and of key files.
const keySize = 32

// hkdfInfoArchive is the HKDF info string deriving the blob
// encryption key from the key file material. Changing it invalidates
// all existing encrypted archives.
var hkdfInfoArchive = []byte("pybundle.archive.v1")

// contentDomainKey is the BLAKE3 keyed-hash key for the embedded
// content hash. Its own domain, so archive hashes never collide with
// the manifest or state-file hash families.
var contentDomainKey = [32]byte{
	'p', 'y', 'b', 'a', '.', 'c', 'o', 'n', 't', 'e', 'n', 't', '.', 'v', '1', 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// contentHash computes the keyed BLAKE3 digest embedded in archive
// headers.
func contentHash(data []byte) [32]byte {
	hasher, err := blake3.NewKeyed(contentDomainKey[:])
	if err != nil {
		panic("archive: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// Info describes a written archive.
type Info struct {
	// Path is the archive file location.
	Path string `json:"path"`

	// OriginalSize is the artifact's uncompressed size in bytes.
	OriginalSize int64 `json:"original_size"`

	// ArchiveSize is the blob size in bytes, header included.
	ArchiveSize int64 `json:"archive_size"`

	// OriginalHash is the hex BLAKE3 content hash of the artifact.
	OriginalHash string `json:"original_hash"`

	// Compression is the codec used.
	Compression CompressionTag `json:"compression"`

	// Encrypted is true when the payload is sealed.
	Encrypted bool `json:"encrypted"`
}

// Options controls archive creation.
type Options struct {
	// Compression selects the codec. The zero value is zstd —
	// bundled executables are binary but still compress usefully.
	Compression CompressionTag

	// Key enables encryption when non-nil. Must be exactly 32 bytes
	// of key material (see ReadKeyFile); the blob key is derived
	// from it via HKDF-SHA256.
	Key []byte
}

// ReadKeyFile reads a 64-character hex key file into 32 bytes of key
// material.
func ReadKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	text := string(data)
	for len(text) > 0 && (text[len(text)-1] == '\n' || text[len(text)-1] == '\r') {
		text = text[:len(text)-1]
	}
	key, err := hex.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("key file %s: not hex: %w", path, err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("key file %s: %d bytes of key material, want %d", path, len(key), keySize)
	}
	return key, nil
}

// Create reads the artifact at sourcePath and writes the archive
// blob to destinationPath.
func Create(destinationPath, sourcePath string, options Options) (Info, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return Info{}, fmt.Errorf("reading artifact: %w", err)
	}

	originalHash := contentHash(data)

	payload, tag, err := Compress(data, options.Compression)
	if err != nil {
		return Info{}, err
	}

	encrypted := options.Key != nil
	header := make([]byte, headerSize)
	copy(header[0:4], magic[:])
	header[4] = FormatVersion
	header[5] = byte(tag)
	if encrypted {
		header[6] = 1
	}
	binary.BigEndian.PutUint64(header[7:15], uint64(len(data)))
	copy(header[15:], originalHash[:])

	if encrypted {
		payload, err = seal(payload, options.Key, header)
		if err != nil {
			return Info{}, err
		}
	}

	blob := append(header, payload...)
	if err := os.WriteFile(destinationPath, blob, 0o644); err != nil {
		return Info{}, fmt.Errorf("writing archive: %w", err)
	}

	return Info{
		Path:         destinationPath,
		OriginalSize: int64(len(data)),
		ArchiveSize:  int64(len(blob)),
		OriginalHash: hex.EncodeToString(originalHash[:]),
		Compression:  tag,
		Encrypted:    encrypted,
	}, nil
}

// Extract reads an archive blob and writes the original artifact to
// destinationPath, verifying the embedded content hash. key must be
// present when the blob is encrypted.
func Extract(destinationPath, archivePath string, key []byte) error {
	blob, err := os.ReadFile(archivePath)
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}
	if len(blob) < headerSize {
		return fmt.Errorf("archive %s: %d bytes, smaller than the %d-byte header", archivePath, len(blob), headerSize)
	}

	header := blob[:headerSize]
	if [4]byte(header[0:4]) != magic {
		return fmt.Errorf("archive %s: bad magic", archivePath)
	}
	if header[4] != FormatVersion {
		return fmt.Errorf("archive %s: format version %d not supported (expected %d)", archivePath, header[4], FormatVersion)
	}
	tag := CompressionTag(header[5])
	encrypted := header[6] == 1
	originalSize := binary.BigEndian.Uint64(header[7:15])
	wantHash := hex.EncodeToString(header[15:headerSize])

	payload := blob[headerSize:]
	if encrypted {
		if key == nil {
			return fmt.Errorf("archive %s is encrypted; a key file is required", archivePath)
		}
		payload, err = open(payload, key, header)
		if err != nil {
			return err
		}
	}

	data, err := Decompress(payload, tag, int(originalSize))
	if err != nil {
		return err
	}

	gotHash := contentHash(data)
	if hex.EncodeToString(gotHash[:]) != wantHash {
		return fmt.Errorf("archive %s: extracted content hash does not match embedded %s", archivePath, wantHash)
	}

	if err := os.WriteFile(destinationPath, data, 0o755); err != nil {
		return fmt.Errorf("writing extracted artifact: %w", err)
	}
	return nil
}

// EmbeddedHash returns the original-content hash recorded in an
// archive header without decoding the payload.
func EmbeddedHash(archivePath string) (string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("reading archive: %w", err)
	}
	defer file.Close()

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(file, header); err != nil {
		return "", fmt.Errorf("archive %s: truncated header: %w", archivePath, err)
	}
	if [4]byte(header[0:4]) != magic {
		return "", fmt.Errorf("archive %s: bad magic", archivePath)
	}
	return hex.EncodeToString(header[15:headerSize]), nil
}

// seal encrypts payload with XChaCha20-Poly1305. The key file
// material never encrypts directly: the blob key is derived via
// HKDF-SHA256 with a fixed info string, so the same key file can
// later serve other derivation paths without nonce-reuse concerns.
func seal(payload, keyMaterial, aad []byte) ([]byte, error) {
	blobKey, err := deriveKey(keyMaterial)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(blobKey)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	output := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(payload)+aead.Overhead())
	copy(output, nonce[:])
	return aead.Seal(output, nonce[:], payload, aad), nil
}

// open reverses seal.
func open(payload, keyMaterial, aad []byte) ([]byte, error) {
	if len(payload) < chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("encrypted payload is %d bytes, smaller than nonce + tag", len(payload))
	}

	blobKey, err := deriveKey(keyMaterial)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(blobKey)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	nonce := payload[:chacha20poly1305.NonceSizeX]
	ciphertext := payload[chacha20poly1305.NonceSizeX:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("AEAD decryption failed (wrong key or tampered archive): %w", err)
	}
	return plaintext, nil
}

// deriveKey derives the 32-byte blob encryption key from key file
// material via HKDF-SHA256.
func deriveKey(keyMaterial []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, keyMaterial, nil, hkdfInfoArchive)
	derived := make([]byte, keySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		return nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	return derived, nil
}
