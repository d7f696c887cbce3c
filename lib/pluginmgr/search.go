// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package pluginmgr

import (
	"path/filepath"
	"strings"
)

// PathVariable names the environment variable holding extra plugin
// directories, colon separated.
const PathVariable = "GLADIUS_PLUGIN_PATH"

// SearchPath returns the directories packs are looked up in:
// installPrefix/lib first, then each non-empty entry of pluginPath in
// order.
func SearchPath(installPrefix, pluginPath string) []string {
	var dirs []string
	if installPrefix != "" {
		dirs = append(dirs, filepath.Join(installPrefix, "lib"))
	}
	for _, entry := range strings.Split(pluginPath, ":") {
		if entry = strings.TrimSpace(entry); entry != "" {
			dirs = append(dirs, entry)
		}
	}
	return dirs
}
