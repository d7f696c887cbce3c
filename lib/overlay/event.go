// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import "fmt"

// EventKind classifies membership events.
type EventKind uint8

const (
	// EventBackEndAdded reports a back end that completed its join.
	EventBackEndAdded EventKind = iota + 1

	// EventNodeLost reports a link that broke. LostBackEnds lists the
	// back ends that were reachable only through it.
	EventNodeLost

	// EventNodeReady reports an internal communication node that is
	// listening for its children.
	EventNodeReady
)

func (k EventKind) String() string {
	switch k {
	case EventBackEndAdded:
		return "back-end-added"
	case EventNodeLost:
		return "node-lost"
	case EventNodeReady:
		return "node-ready"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event is a membership change, produced by the node that saw it and
// relayed to the root.
type Event struct {
	Kind         EventKind `cbor:"kind"`
	Rank         Rank      `cbor:"rank"`
	Host         string    `cbor:"host"`
	Parent       Rank      `cbor:"parent"`
	Port         int       `cbor:"port,omitempty"`
	LostBackEnds []Rank    `cbor:"lost_back_ends,omitempty"`
}

// EventCallback observes events at the root. Callbacks run on the
// goroutine reading the link the event arrived on; they must not block
// for long and must do their own locking.
type EventCallback func(Event)
