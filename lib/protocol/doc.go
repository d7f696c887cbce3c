// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the session protocol the front-end
// controller and back-end agents speak over the broadcast stream
// before any plugin traffic flows.
//
// The exchange is strictly ordered on one in-order stream:
//
//	front end                          back ends
//	InitHandshake  Ping{M}       →
//	               ←       Ping{-M}    InitHandshake (one per back end)
//	PluginNameInfo PluginName    →
//	               ←   BackEndReady    BackEndPluginsReady (one per back end)
//	FirstPluginTag+k ...  plugin traffic ...
//	Shutdown                     →
//
// Tags below [FirstPluginTag] are reserved. Plugins number their own
// tags with [PluginTag] (or an [Allocator] range), so two plugins built
// against the same core never collide with the core block.
package protocol
