// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Gladius is the front-end command of the tool infrastructure.
//
// "gladius run" attaches a plugin pack to a job: it builds the overlay
// network over the job's hosts, waits for one back-end agent
// (gladius-be) per host, and runs the pack's front-end half. The other
// subcommands inspect what a run would use: "topology" prints the tree
// for a process table, "packs" lists the plugin packs on the search
// path, and "version" prints build information.
package main
