// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the codec applied to an archive payload.
type CompressionTag byte

const (
	// CompressionZstd is the default codec: best ratio on bundled
	// executables at acceptable speed.
	CompressionZstd CompressionTag = 0

	// CompressionLZ4 trades ratio for speed.
	CompressionLZ4 CompressionTag = 1

	// CompressionNone stores the payload as-is. Also what the
	// other codecs fall back to when compression does not shrink
	// the data.
	CompressionNone CompressionTag = 2
)

func (t CompressionTag) String() string {
	switch t {
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	case CompressionNone:
		return "none"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// MarshalJSON renders the tag as its codec name.
func (t CompressionTag) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// ParseCompressionTag maps a codec name from the command line or a
// recipe file to its tag.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "zstd", "":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	case "none":
		return CompressionNone, nil
	default:
		return 0, fmt.Errorf("unknown compression codec %q (want zstd, lz4, or none)", name)
	}
}

// errIncompressible reports that a codec could not shrink the input.
var errIncompressible = errors.New("data is incompressible")

// Shared zstd state. The encoder and decoder are safe for concurrent
// use through EncodeAll/DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("creating zstd encoder: %v", err))
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("creating zstd decoder: %v", err))
	}
}

// Compress encodes data with the requested codec. When the codec
// cannot shrink the input the payload is stored raw and the returned
// tag is CompressionNone, so callers must persist the returned tag
// rather than the requested one.
func Compress(data []byte, tag CompressionTag) ([]byte, CompressionTag, error) {
	switch tag {
	case CompressionZstd:
		payload, err := compressZstd(data)
		if errors.Is(err, errIncompressible) {
			return data, CompressionNone, nil
		}
		if err != nil {
			return nil, 0, err
		}
		return payload, CompressionZstd, nil
	case CompressionLZ4:
		payload, err := compressLZ4(data)
		if errors.Is(err, errIncompressible) {
			return data, CompressionNone, nil
		}
		if err != nil {
			return nil, 0, err
		}
		return payload, CompressionLZ4, nil
	case CompressionNone:
		return data, CompressionNone, nil
	default:
		return nil, 0, fmt.Errorf("unknown compression tag %d", byte(tag))
	}
}

// Decompress decodes a payload produced by Compress. originalSize is
// the uncompressed size from the archive header, needed to size the
// lz4 output buffer and to sanity-check the result.
func Decompress(payload []byte, tag CompressionTag, originalSize int) ([]byte, error) {
	switch tag {
	case CompressionZstd:
		data, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, originalSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompression failed: %w", err)
		}
		if len(data) != originalSize {
			return nil, fmt.Errorf("zstd decompression produced %d bytes, header says %d", len(data), originalSize)
		}
		return data, nil
	case CompressionLZ4:
		data := make([]byte, originalSize)
		n, err := lz4.UncompressBlock(payload, data)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompression failed: %w", err)
		}
		if n != originalSize {
			return nil, fmt.Errorf("lz4 decompression produced %d bytes, header says %d", n, originalSize)
		}
		return data, nil
	case CompressionNone:
		if len(payload) != originalSize {
			return nil, fmt.Errorf("stored payload is %d bytes, header says %d", len(payload), originalSize)
		}
		return payload, nil
	default:
		return nil, fmt.Errorf("unknown compression tag %d", byte(tag))
	}
}

func compressZstd(data []byte) ([]byte, error) {
	payload := zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)))
	if len(payload) >= len(data) {
		return nil, errIncompressible
	}
	return payload, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	payload := make([]byte, lz4.CompressBlockBound(len(data)))
	var compressor lz4.Compressor
	n, err := compressor.CompressBlock(data, payload)
	if err != nil {
		return nil, fmt.Errorf("lz4 compression failed: %w", err)
	}
	if n == 0 || n >= len(data) {
		return nil, errIncompressible
	}
	return payload[:n], nil
}
