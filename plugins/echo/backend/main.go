// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Command backend is built with -buildmode=plugin into the echo pack's
// PluginBackEnd.so.
package main

import "github.com/lanl/gladius-sub000/plugins/echo"

// GladiusPluginV2 is the entry symbol the plugin manager resolves.
var GladiusPluginV2 = echo.BackEndInfo

func main() {}
