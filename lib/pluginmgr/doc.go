// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Package pluginmgr locates, validates, and loads plugin packs.
//
// Packs are directories found on a search path: ${installPrefix}/lib,
// then each entry of GLADIUS_PLUGIN_PATH. The first directory holding a
// pack of the requested name wins. A pack is usable only when both
// required objects exist; [Manager.CheckPack] reports every missing one
// without opening anything.
//
// [Manager.LoadPack] opens one half through an [Opener], resolves the
// GladiusPluginV2 entry symbol, and refuses objects built for another
// ABI before any plugin code beyond the entry function runs.
package pluginmgr
