// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Package pluginabi defines the contract between the Gladius core and
// plugin packs.
//
// A pack is a directory holding two Go plugins built with
// -buildmode=plugin: PluginFrontEnd.so and PluginBackEnd.so, plus any
// number of Filter*.so objects. Each half exports
//
//	var GladiusPluginV2 = func() *pluginabi.Info { ... }
//
// The core checks [Info].ABI against [ABIVersion] before it calls
// Construct, then runs [Plugin].PluginMain with [Args]. Filter objects
// export GladiusFilterV2 returning a [FilterInfo].
package pluginabi
