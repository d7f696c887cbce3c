// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Gladius packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls. Overlay
// tests run real loopback TCP links, so every wait on a channel fed by
// a transport goroutine goes through one of these.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation, such as session keys that must not collide between
// parallel tests sharing a hand-off directory.
//
// [WriteFile] creates a file with its parent directories, for plugin
// packs and config files laid out under t.TempDir().
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no Gladius-internal dependencies.
package testutil
