// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package pluginmgr

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lanl/gladius-sub000/lib/binhash"
	"github.com/lanl/gladius-sub000/lib/pluginabi"
)

// Required object names inside a pack directory.
const (
	FrontEndObject = "PluginFrontEnd.so"
	BackEndObject  = "PluginBackEnd.so"
)

// RequiredObjects maps each role to its object name.
var RequiredObjects = map[pluginabi.Role]string{
	pluginabi.FrontEnd: FrontEndObject,
	pluginabi.BackEnd:  BackEndObject,
}

var (
	// ErrPackNotFound is returned when no search directory holds the
	// named pack.
	ErrPackNotFound = errors.New("plugin pack not found")

	// ErrIncompletePack matches every *IncompletePackError.
	ErrIncompletePack = errors.New("plugin pack is incomplete")
)

// IncompletePackError lists the required objects a pack lacks.
type IncompletePackError struct {
	Path    string
	Missing []string
}

func (e *IncompletePackError) Error() string {
	return fmt.Sprintf("plugin pack %s is missing %s", e.Path, strings.Join(e.Missing, ", "))
}

// Is makes errors.Is(err, ErrIncompletePack) true.
func (e *IncompletePackError) Is(target error) bool { return target == ErrIncompletePack }

// Pack is a located plugin pack. Loaded fills in as halves are loaded;
// Close releases them.
type Pack struct {
	Name     string
	Path     string
	Required map[pluginabi.Role]string
	Loaded   map[pluginabi.Role]*Handle

	manager *Manager
}

// Load opens one half of the pack.
func (p *Pack) Load(role pluginabi.Role) (*Handle, error) {
	if handle, ok := p.Loaded[role]; ok {
		return handle, nil
	}
	handle, err := p.manager.LoadPack(role, p.Path)
	if err != nil {
		return nil, err
	}
	p.Loaded[role] = handle
	return handle, nil
}

// Digest hashes one half without opening it.
func (p *Pack) Digest(role pluginabi.Role) (binhash.Digest, error) {
	return binhash.HashFile(p.Required[role])
}

// FilterObjects returns the pack's filter objects, sorted.
func (p *Pack) FilterObjects() ([]string, error) {
	return filterObjects(p.Path)
}

// Close closes every loaded half.
func (p *Pack) Close() error {
	var errs []error
	for _, handle := range p.Loaded {
		errs = append(errs, handle.Close())
	}
	return errors.Join(errs...)
}

func filterObjects(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "Filter*.so"))
	if err != nil {
		return nil, err
	}
	var objects []string
	for _, match := range matches {
		if info, err := os.Stat(match); err == nil && info.Mode().IsRegular() {
			objects = append(objects, match)
		}
	}
	sort.Strings(objects)
	return objects, nil
}

// Listing is one pack found on the search path.
type Listing struct {
	Name string
	Path string

	// Err is nil for a complete pack.
	Err error

	// Shadowed is true when an earlier directory has a pack with the
	// same name, so this one is never loaded.
	Shadowed bool
}
