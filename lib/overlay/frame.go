// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"bufio"
	"cmp"
	"fmt"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/lanl/gladius-sub000/lib/codec"
	"github.com/lanl/gladius-sub000/lib/topology"
)

// frameKind discriminates link frames. The numbering is part of the
// link protocol between nodes of the same build.
type frameKind uint8

const (
	// frameHello is the first frame a child sends on a new link.
	frameHello frameKind = iota + 1
	// frameWelcome is the parent's answer to hello.
	frameWelcome
	// frameEvent carries a membership event toward the root.
	frameEvent
	// frameOpen announces a stream to a child.
	frameOpen
	// frameData carries packets in either direction.
	frameData
	// frameClose retires a stream.
	frameClose
	// frameShutdown tells a child the network is being torn down.
	frameShutdown
)

// frame is the unit exchanged on a link. Exactly one of the pointer
// fields is set, matching Kind.
type frame struct {
	Kind    frameKind   `cbor:"kind"`
	Hello   *hello      `cbor:"hello,omitempty"`
	Welcome *welcome    `cbor:"welcome,omitempty"`
	Event   *Event      `cbor:"event,omitempty"`
	Stream  *streamSpec `cbor:"stream,omitempty"`
	Packets []Packet    `cbor:"packets,omitempty"`
}

// hello introduces a child to its parent.
type hello struct {
	Rank Rank          `cbor:"rank"`
	Host string        `cbor:"host"`
	Role topology.Role `cbor:"role"`

	// Port is the child's own listen port; zero for back ends.
	Port int `cbor:"port,omitempty"`
}

// welcome accepts or refuses a child. Rank is the parent's rank, which
// lets a back end detect hand-off info pointing at the wrong node.
type welcome struct {
	Rank  Rank   `cbor:"rank"`
	Error string `cbor:"error,omitempty"`

	// Subtree lists every node below an internal child, so it can vet
	// the children that connect to it. Empty for back ends.
	Subtree []placement `cbor:"subtree,omitempty"`
}

// placement is where one node sits in the topology.
type placement struct {
	Rank   Rank          `cbor:"rank"`
	Parent Rank          `cbor:"parent"`
	Role   topology.Role `cbor:"role"`
}

// below returns the placements whose ancestry passes through rank.
// Parents have lower ranks than their children.
func below(layout []placement, rank Rank) []placement {
	sorted := slices.Clone(layout)
	slices.SortFunc(sorted, func(a, b placement) int { return cmp.Compare(a.Rank, b.Rank) })
	inside := map[Rank]bool{rank: true}
	var subtree []placement
	for _, node := range sorted {
		if inside[node.Parent] {
			inside[node.Rank] = true
			subtree = append(subtree, node)
		}
	}
	return subtree
}

// streamSpec describes a stream to the nodes that route it. A nil
// Endpoints list means every back end.
type streamSpec struct {
	ID        StreamID `cbor:"id"`
	Endpoints []Rank   `cbor:"endpoints,omitempty"`
	UpFilter  string   `cbor:"up_filter"`
}

// broadcast reports whether the stream reaches every back end.
func (s *streamSpec) broadcast() bool { return s.Endpoints == nil }

// handshakeTimeout bounds the hello/welcome exchange on a new link.
const handshakeTimeout = 30 * time.Second

// link is one framed TCP connection between a parent and a child.
// Writes are buffered; flush pushes them out. A link is safe for one
// reader and any number of concurrent writers.
type link struct {
	conn net.Conn

	writeMu sync.Mutex
	writer  *bufio.Writer
	encoder *codec.Encoder

	decoder *codec.Decoder
}

func newLink(conn net.Conn) *link {
	writer := bufio.NewWriterSize(conn, 64*1024)
	return &link{
		conn:    conn,
		writer:  writer,
		encoder: codec.NewEncoder(writer),
		decoder: codec.NewDecoder(bufio.NewReaderSize(conn, 64*1024)),
	}
}

// send buffers a frame.
func (l *link) send(f frame) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.encoder.Encode(f); err != nil {
		return fmt.Errorf("writing frame to %s: %w", l.conn.RemoteAddr(), err)
	}
	return nil
}

// flush writes out buffered frames.
func (l *link) flush() error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("flushing link to %s: %w", l.conn.RemoteAddr(), err)
	}
	return nil
}

// sendNow buffers a frame and flushes it.
func (l *link) sendNow(f frame) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.encoder.Encode(f); err != nil {
		return fmt.Errorf("writing frame to %s: %w", l.conn.RemoteAddr(), err)
	}
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("flushing link to %s: %w", l.conn.RemoteAddr(), err)
	}
	return nil
}

// receive blocks for the next frame. Only the link's reader goroutine
// calls it.
func (l *link) receive() (frame, error) {
	var f frame
	if err := l.decoder.Decode(&f); err != nil {
		return frame{}, err
	}
	return f, nil
}

// receiveWithin reads one frame with a deadline, for handshakes.
func (l *link) receiveWithin(timeout time.Duration) (frame, error) {
	l.conn.SetReadDeadline(time.Now().Add(timeout))
	defer l.conn.SetReadDeadline(time.Time{})
	return l.receive()
}

func (l *link) close() error {
	return l.conn.Close()
}
