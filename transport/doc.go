// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries overlay links between nodes on different
// hosts.
//
// A [Listener] runs on every node that has children (the root and the
// internal communication nodes) and hands each accepted link to a
// [ConnHandler]. A [Dialer] opens the link from a child to its parent.
// Framing and routing live in lib/overlay; this package only moves
// bytes. [TCPListener] and [TCPDialer] are the implementations.
package transport
