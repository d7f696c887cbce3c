// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Package topology generates the overlay tree for a session.
//
// [Generate] turns a process landscape into a [Topology]: a root on the
// front end's host, leaves on the hosts that will run back-end agents,
// and (for the [Tree] style) internal communication nodes in between.
// Ranks count up from 0 at the root in breadth-first, landscape order.
//
// The textual form ([Topology.String], [Parse]) is what operators pass
// with --topology-file and what the front end logs at startup.
package topology
