// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Package backend is the agent that runs on each host of the job.
//
// An [Agent] resolves its place in the overlay (a hand-off file written
// by the front end, or connection info given directly), joins at its
// leaf, and answers the front end's handshake. It then loads the
// back-end half of the pack the front end names from its own plugin
// search path, reports the outcome, and runs the plugin over the
// process-table entries for its host.
//
// An agent serves one target; a hand-off file with more than one
// record is refused.
package backend
