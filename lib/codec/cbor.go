// Copyright 2026 The Pybundle Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides pybundle's standard CBOR configuration.
// Build-state records are encoded with Core Deterministic Encoding so
// that identical logical state always produces identical bytes —
// which is what makes state files diffable and content-hashable.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items.
var encMode cbor.EncMode

// decMode is the CBOR decoder configured to accept standard CBOR.
// Unknown fields are ignored for forward compatibility with newer
// state files.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// State records only ever use string map keys. Any-typed
		// decode targets get map[string]any instead of the CBOR
		// default map[any]any, which encoding/json cannot handle.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) for
// data. Used by "pybundle state show --raw".
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
