// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"context"
	"sync"
)

// packetQueue is an unbounded FIFO between a link reader and a stream
// consumer. Link readers must never block on a slow plugin, or one
// stalled stream would stall every stream on the link.
type packetQueue struct {
	mu      sync.Mutex
	packets []Packet
	closed  bool
	ready   chan struct{}
	done    chan struct{}
}

func newPacketQueue() *packetQueue {
	return &packetQueue{ready: make(chan struct{}, 1), done: make(chan struct{})}
}

func (q *packetQueue) push(packets ...Packet) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.packets = append(q.packets, packets...)
	q.mu.Unlock()
	q.signal()
}

func (q *packetQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// tryPop returns the next packet without blocking. closed is true once
// the queue is closed and drained.
func (q *packetQueue) tryPop() (packet Packet, ok bool, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.packets) > 0 {
		packet = q.packets[0]
		q.packets[0] = Packet{}
		q.packets = q.packets[1:]
		return packet, true, false
	}
	return Packet{}, false, q.closed
}

// pop blocks for the next packet, until ctx ends, or until the queue
// is closed and drained.
func (q *packetQueue) pop(ctx context.Context) (Packet, error) {
	for {
		packet, ok, closed := q.tryPop()
		if ok {
			return packet, nil
		}
		if closed {
			return Packet{}, ErrNetworkClosed
		}
		select {
		case <-q.ready:
		case <-q.done:
		case <-ctx.Done():
			return Packet{}, ctx.Err()
		}
	}
}

func (q *packetQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
}
