// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"fmt"

	"github.com/lanl/gladius-sub000/lib/codec"
	"github.com/lanl/gladius-sub000/lib/protocol"
	"github.com/lanl/gladius-sub000/lib/topology"
)

// Rank identifies an overlay node. It is the topology rank.
type Rank = topology.Rank

// StreamID identifies a stream within one network. IDs are assigned by
// the root, starting at 1.
type StreamID uint32

// Packet is one tagged message on a stream. The payload is opaque CBOR
// to every node but the endpoints; internal nodes forward it without
// decoding.
type Packet struct {
	Stream  StreamID         `cbor:"stream"`
	Tag     protocol.Tag     `cbor:"tag"`
	Source  Rank             `cbor:"source"`
	Payload codec.RawMessage `cbor:"payload,omitempty"`
}

// NewPacket encodes value as the payload of a packet. A nil value
// produces an empty payload.
func NewPacket(stream StreamID, tag protocol.Tag, source Rank, value any) (Packet, error) {
	packet := Packet{Stream: stream, Tag: tag, Source: source}
	if value == nil {
		return packet, nil
	}
	payload, err := codec.Marshal(value)
	if err != nil {
		return Packet{}, fmt.Errorf("encoding %s payload: %w", tag, err)
	}
	packet.Payload = payload
	return packet, nil
}

// Unpack decodes the payload into v.
func (p *Packet) Unpack(v any) error {
	if len(p.Payload) == 0 {
		return fmt.Errorf("%s packet from rank %d has no payload", p.Tag, p.Source)
	}
	if err := codec.Unmarshal(p.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload from rank %d: %w", p.Tag, p.Source, err)
	}
	return nil
}
