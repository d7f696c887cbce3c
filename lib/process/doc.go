// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for Gladius
// binaries: reporting a fatal error to stderr, with its operator hint,
// when the structured logger may not be initialized, and exiting.
package process
