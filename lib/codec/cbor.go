// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2). The same
// packet payload always encodes to the same bytes on every node, which
// keeps reduction filters comparing payloads byte-for-byte honest.
var encMode cbor.EncMode

// decMode accepts standard CBOR and ignores unknown fields, so a newer
// front end can add fields to a protocol message without breaking
// older back-end agents.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Payloads decoded into any (plugins peeking at a packet
		// before choosing a type) must come out as map[string]any,
		// not map[interface{}]interface{}.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// The largest core message is PluginNameInfo carrying the
		// full process table; a million-process job fits.
		MaxArrayElements: maxItemLength,
		MaxMapPairs:      maxItemLength,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// maxItemLength bounds arrays and maps in decoded data.
const maxItemLength = 16 * 1024 * 1024

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder is a CBOR stream encoder. Type alias so consumers import
// only lib/codec, not fxamacker/cbor directly.
type Encoder = cbor.Encoder

// Decoder is a CBOR stream decoder.
type Decoder = cbor.Decoder

// RawMessage is a raw encoded CBOR value. Packet payloads travel as
// RawMessage through internal overlay nodes so forwarding never pays
// for a decode/re-encode cycle.
type RawMessage = cbor.RawMessage

// NewEncoder returns a CBOR encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
