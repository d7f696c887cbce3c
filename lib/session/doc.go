// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Package session supplies the per-session values the core needs from
// its environment: the session key that names hand-off files, and the
// installation prefix plugin packs are searched under.
package session
