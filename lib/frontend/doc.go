// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Package frontend drives a tool session from the front end.
//
// A [Controller] moves through a fixed sequence of [State] values:
// it generates and validates the topology, builds the overlay network
// and its broadcast protocol stream, writes hand-off files for back
// ends launched separately, and waits until every back end joined.
// It then pings every back end with a random magic value (each must
// answer with the negation), announces the plugin pack, waits for
// every back end to report its half loaded, and finally runs the
// front-end half with exclusive use of the stream and network.
//
// Every exit path sends protocol.Shutdown and closes the plugin handle,
// the stream, and the network. Timeouts are the caller's: Run honors
// its context, and Config.ConnectTimeout bounds only the wait for back
// ends.
package frontend
