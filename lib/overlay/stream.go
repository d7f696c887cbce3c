// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lanl/gladius-sub000/lib/protocol"
)

// ErrStreamCreate is returned when a stream cannot be created.
var ErrStreamCreate = errors.New("stream creation failed")

// ErrStreamClosed is returned by Send on a closed stream.
var ErrStreamClosed = errors.New("stream closed")

// Stream is an ordered, tagged channel between the front end and a set
// of back ends. On the front end Send goes down the tree to every
// endpoint and Recv returns upstream packets after the stream's filter
// ran at every node. On a back end Send goes up to the front end and
// Recv returns what the front end sent.
//
// Send buffers; Flush pushes buffered packets onto the wire. Sends and
// receives from a single goroutine are delivered in order.
type Stream struct {
	id        StreamID
	endpoints []Rank
	filter    string
	source    Rank

	queue *packetQueue

	// transmit buffers packets toward the other end; flush pushes
	// them out.
	transmit func(packets []Packet) error
	flush    func() error

	closeOnce sync.Once
	closed    chan struct{}
	onClose   func()
}

// ID returns the stream's network-unique ID.
func (s *Stream) ID() StreamID { return s.id }

// Endpoints returns the back-end ranks the stream reaches. Nil means
// every back end.
func (s *Stream) Endpoints() []Rank {
	if s.endpoints == nil {
		return nil
	}
	endpoints := make([]Rank, len(s.endpoints))
	copy(endpoints, s.endpoints)
	return endpoints
}

// Filter returns the name of the upstream filter.
func (s *Stream) Filter() string { return s.filter }

// Send encodes value and queues it with tag.
func (s *Stream) Send(tag protocol.Tag, value any) error {
	select {
	case <-s.closed:
		return fmt.Errorf("sending %s on stream %d: %w", tag, s.id, ErrStreamClosed)
	default:
	}
	packet, err := NewPacket(s.id, tag, s.source, value)
	if err != nil {
		return err
	}
	return s.transmit([]Packet{packet})
}

// Flush writes every packet queued by Send.
func (s *Stream) Flush() error {
	return s.flush()
}

// Recv blocks until a packet arrives, ctx ends, or the stream or
// network closes (ErrNetworkClosed).
func (s *Stream) Recv(ctx context.Context) (*Packet, error) {
	packet, err := s.queue.pop(ctx)
	if err != nil {
		return nil, err
	}
	return &packet, nil
}

// Close retires the stream. On the front end the close propagates to
// every node that routes it. Idempotent.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.queue.close()
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}

// deliver queues packets arriving for the local consumer.
func (s *Stream) deliver(packets []Packet) {
	s.queue.push(packets...)
}
