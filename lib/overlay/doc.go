// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Package overlay implements the tree-shaped network between a tool's
// front end and its back ends.
//
// The front end owns the root through [Build]. Internal communication
// nodes ([CommNode]) are started by a [NodeLauncher] and attach to
// their parents; back ends attach with [Join]. Every link is a TCP
// connection carrying CBOR frames (see lib/codec). Membership changes
// travel toward the root as [Event] values; [Network] counts back-end
// joins so the front end can poll for a fully connected tree.
//
// A [Stream] is an ordered, tagged channel between the front end and a
// set of back ends. Downstream packets are forwarded only to children
// whose subtree holds an endpoint. Upstream packets pass through the
// stream's [Filter] at every node with children: "passthrough"
// forwards immediately, "waitforall" batches one wave from each child.
// Payloads stay opaque CBOR between endpoints.
//
// There is no global state: filter registries ([FilterSet]) and the
// connection counter belong to the values that use them.
package overlay
