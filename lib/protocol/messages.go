// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/lanl/gladius-sub000/lib/proctab"
)

// ErrHandshakeFailed reports a ping/pong exchange that did not follow
// the protocol: a wrong tag, or a reply other than the negated magic.
var ErrHandshakeFailed = errors.New("handshake failed")

// Ping is the InitHandshake payload.
type Ping struct {
	Magic int64 `cbor:"magic"`
}

// NewMagic returns a random non-zero magic value whose negation is
// representable.
func NewMagic() (int64, error) {
	var buffer [8]byte
	for {
		if _, err := rand.Read(buffer[:]); err != nil {
			return 0, fmt.Errorf("generating handshake magic: %w", err)
		}
		magic := int64(binary.LittleEndian.Uint64(buffer[:]) >> 2)
		if magic != 0 {
			return magic, nil
		}
	}
}

// Pong returns the correct reply to a ping.
func Pong(ping Ping) Ping {
	return Ping{Magic: -ping.Magic}
}

// CheckPong verifies a reply to magic received with tag. Anything but
// tag InitHandshake and value -magic wraps ErrHandshakeFailed.
func CheckPong(magic int64, tag Tag, reply Ping) error {
	if tag != InitHandshake {
		return fmt.Errorf("%w: expected tag %s, got %s", ErrHandshakeFailed, InitHandshake, tag)
	}
	if reply.Magic != -magic {
		return fmt.Errorf("%w: expected value %d, got %d", ErrHandshakeFailed, -magic, reply.Magic)
	}
	return nil
}

// PluginName is the PluginNameInfo payload: which pack to load, where
// the front end found it, and the job the plugin operates on.
type PluginName struct {
	// Name is the pack directory name, looked up on each back end's own
	// plugin search path.
	Name string `cbor:"name"`

	// Path is the directory the front end loaded the pack from. Back
	// ends log it when their own search finds something else.
	Path string `cbor:"path"`

	// BackEndDigest is the BLAKE3 digest (hex) of the back-end object
	// in the front end's copy of the pack, empty when unknown.
	BackEndDigest string `cbor:"back_end_digest,omitempty"`

	// ProcessTable is the whole job; each back end keeps the subset for
	// its host.
	ProcessTable *proctab.Table `cbor:"process_table,omitempty"`

	// ApplicationArgs are the arguments handed to both plugin halves.
	ApplicationArgs []string `cbor:"application_args,omitempty"`
}

// BackEndReady is the BackEndPluginsReady payload.
type BackEndReady struct {
	Ready bool   `cbor:"ready"`
	Host  string `cbor:"host"`
	Error string `cbor:"error,omitempty"`
}
