// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Package proctab holds the two descriptions of a target parallel job.
//
// A [Table] lists every target process (host, executable, PID, rank).
// The front end obtains it from a [Source] after launch or attach and
// ships it to the back ends, each of which keeps the [Table.Subset] for
// its own host. A [Landscape] is the host → process-count summary of
// the same job, consumed by topology generation to size the overlay.
package proctab
