// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for Gladius
// binaries.
//
// Configuration is loaded from a single file named by either the
// GLADIUS_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no file discovery. Binaries run on
// [Default] when neither is given.
//
// The file may contain environment-specific sections (development,
// production) that override base values when [Config].Environment
// matches. Production defaults run internal overlay nodes on their own
// hosts through the exec launcher.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${GLADIUS_PREFIX}, and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
//
// This package depends on no other Gladius packages.
package config
