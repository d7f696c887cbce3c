// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
)

// ConnHandler serves one accepted overlay link. It owns conn and must
// close it before returning.
type ConnHandler func(ctx context.Context, conn net.Conn)

// Listener accepts links from child overlay nodes. The root and every
// internal communication node own one.
type Listener interface {
	// Serve accepts connections and runs handler for each one on its
	// own goroutine. Blocks until ctx is cancelled or Close is called,
	// then waits for running handlers. Returns nil on clean shutdown.
	Serve(ctx context.Context, handler ConnHandler) error

	// Address returns the listen address in "host:port" form.
	Address() string

	// Port returns the numeric listen port, published to children
	// through the topology and the hand-off file.
	Port() int

	// Close stops accepting connections.
	Close() error
}

// Dialer opens the link from a child node (internal node or back-end
// agent) to its parent.
type Dialer interface {
	DialContext(ctx context.Context, address string) (net.Conn, error)
}
