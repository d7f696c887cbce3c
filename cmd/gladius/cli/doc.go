// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework shared by the Gladius
// binaries.
//
// A [Command] has a name, an optional [pflag.FlagSet] factory, nested
// [Command.Subcommands], and a Run function that receives the caller's
// context. [Command.Execute] parses flags, routes to subcommands, and
// prints help with examples. Unknown subcommands and flags get a
// suggestion when one is within a small edit distance.
//
// [NewLogger] builds the slog logger binaries write to stderr.
package cli
