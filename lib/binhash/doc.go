// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash identifies plugin shared objects by content. The
// front end hashes the back-end half it names to the back ends, and
// each back end hashes the file it found, so a pack installed from a
// different build shows up in the logs.
package binhash
