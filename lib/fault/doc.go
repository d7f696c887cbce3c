// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Package fault defines the error taxonomy shared by the front-end
// controller, the back-end agent, and the libraries they drive.
//
// Every failure the core reports is session-fatal: nothing retries,
// nothing partially recovers. What varies is who has to act. A
// [Configuration] or [PluginDiscovery] failure is almost always an
// operator or deployment mistake, so those errors carry a [Error.Hint]
// with the change to make ("add the directory to GLADIUS_PLUGIN_PATH").
// Binaries print [Format] output to stderr and exit non-zero.
//
// Packages define their own sentinel errors (overlay.ErrFilterLoad,
// pluginmgr.ErrPluginABIMismatch, ...) and wrap them in an [*Error] with
// the right kind, so callers can test either the specific sentinel with
// errors.Is or the broad class with [IsKind].
package fault
