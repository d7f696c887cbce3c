// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Package pluginmgrtest serves plugin packs from memory so front-end
// and back-end tests can load plugins without building shared objects.
package pluginmgrtest

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/lanl/gladius-sub000/lib/pluginabi"
	"github.com/lanl/gladius-sub000/lib/pluginmgr"
	"github.com/lanl/gladius-sub000/lib/testutil"
)

// Opener is a pluginmgr.Opener over in-memory symbol tables. Safe for
// concurrent use.
type Opener struct {
	mu      sync.Mutex
	objects map[string]map[string]any
	opened  []string
}

// NewOpener returns an Opener with no objects.
func NewOpener() *Opener {
	return &Opener{objects: make(map[string]map[string]any)}
}

// Add makes path open to an object exporting symbols.
func (o *Opener) Add(path string, symbols map[string]any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[path] = symbols
}

// Open implements pluginmgr.Opener.
func (o *Opener) Open(path string) (pluginmgr.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, path)
	symbols, ok := o.objects[path]
	if !ok {
		return nil, fmt.Errorf("%s: not a plugin object", path)
	}
	return object(symbols), nil
}

// Opened returns every path passed to Open, in order.
func (o *Opener) Opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.opened...)
}

type object map[string]any

func (o object) Lookup(symbol string) (any, error) {
	value, ok := o[symbol]
	if !ok {
		return nil, errors.New("symbol " + symbol + " not found")
	}
	return value, nil
}

// Entry returns an entry function for a plugin half implementing the
// current ABI.
func Entry(name string, plugin pluginabi.Plugin) func() *pluginabi.Info {
	return func() *pluginabi.Info {
		return &pluginabi.Info{
			ABI:       pluginabi.ABIVersion,
			Name:      name,
			Version:   "test",
			Construct: func() (pluginabi.Plugin, error) { return plugin, nil },
		}
	}
}

// Pack lays out pack name under dir and registers both halves with
// opener. The object files hold distinct bytes so their digests
// differ. It returns the pack directory.
func Pack(t *testing.T, opener *Opener, dir, name string, frontEnd, backEnd pluginabi.Plugin) string {
	t.Helper()
	path := filepath.Join(dir, name)
	frontEndPath := testutil.WriteFile(t, filepath.Join(path, pluginmgr.FrontEndObject), []byte(name+" front end"))
	backEndPath := testutil.WriteFile(t, filepath.Join(path, pluginmgr.BackEndObject), []byte(name+" back end"))
	opener.Add(frontEndPath, map[string]any{pluginabi.EntrySymbol: Entry(name, frontEnd)})
	opener.Add(backEndPath, map[string]any{pluginabi.EntrySymbol: Entry(name, backEnd)})
	return path
}
