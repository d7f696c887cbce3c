// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package pluginmgr

import "plugin"

// Object is an opened shared object.
type Object interface {
	Lookup(symbol string) (any, error)
}

// Opener opens shared objects. Production code uses GoPluginOpener;
// tests substitute an opener that serves in-memory symbols.
type Opener interface {
	Open(path string) (Object, error)
}

// GoPluginOpener opens objects built with -buildmode=plugin. Go never
// unloads a plugin, so an object stays mapped for the life of the
// process once opened.
type GoPluginOpener struct{}

// Open loads the plugin at path.
func (GoPluginOpener) Open(path string) (Object, error) {
	opened, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	return goPlugin{opened}, nil
}

type goPlugin struct{ plugin *plugin.Plugin }

func (p goPlugin) Lookup(symbol string) (any, error) {
	return p.plugin.Lookup(symbol)
}
