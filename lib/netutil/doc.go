// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds small helpers shared by code that owns network
// connections.
package netutil
