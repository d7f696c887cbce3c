// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package pluginmgr

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lanl/gladius-sub000/lib/binhash"
	"github.com/lanl/gladius-sub000/lib/fault"
	"github.com/lanl/gladius-sub000/lib/overlay"
	"github.com/lanl/gladius-sub000/lib/pluginabi"
)

var (
	// ErrPluginLoad is returned when an object cannot be opened.
	ErrPluginLoad = errors.New("plugin object could not be opened")

	// ErrPluginEntryPointNotFound is returned when an object lacks the
	// entry symbol or exports it with the wrong type.
	ErrPluginEntryPointNotFound = errors.New("plugin entry point not found")

	// ErrPluginABIMismatch is returned when an object was built against
	// a different plugin ABI.
	ErrPluginABIMismatch = errors.New("plugin ABI mismatch")
)

// Options configures a Manager.
type Options struct {
	// InstallPrefix is searched first, as InstallPrefix/lib.
	InstallPrefix string

	// PluginPath is the colon-separated list searched after the prefix,
	// normally the value of GLADIUS_PLUGIN_PATH.
	PluginPath string

	// Opener defaults to GoPluginOpener.
	Opener Opener

	Logger *slog.Logger
}

// Manager finds, validates, and loads plugin packs.
type Manager struct {
	searchPath []string
	opener     Opener
	logger     *slog.Logger
}

// New returns a Manager over the search path options describe.
func New(options Options) *Manager {
	if options.Opener == nil {
		options.Opener = GoPluginOpener{}
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Manager{
		searchPath: SearchPath(options.InstallPrefix, options.PluginPath),
		opener:     options.Opener,
		logger:     options.Logger.With("component", "pluginmgr"),
	}
}

// NewFromEnvironment returns a Manager searching installPrefix/lib and
// then GLADIUS_PLUGIN_PATH.
func NewFromEnvironment(installPrefix string, logger *slog.Logger) *Manager {
	return New(Options{InstallPrefix: installPrefix, PluginPath: os.Getenv(PathVariable), Logger: logger})
}

// SearchPath returns a copy of the directories searched, in order.
func (m *Manager) SearchPath() []string {
	dirs := make([]string, len(m.searchPath))
	copy(dirs, m.searchPath)
	return dirs
}

// PackAvailable returns the directory of the first pack called name on
// the search path. Later directories are not consulted once one
// matches, even if the match turns out to be incomplete.
func (m *Manager) PackAvailable(name string) (string, bool) {
	if name == "" || strings.ContainsRune(name, filepath.Separator) {
		return "", false
	}
	for _, dir := range m.searchPath {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// Find locates the pack called name and checks it is complete.
func (m *Manager) Find(name string) (*Pack, error) {
	const op = "find plugin pack"
	path, ok := m.PackAvailable(name)
	if !ok {
		return nil, fault.Newf(fault.PluginDiscovery, op, "%w: %q", ErrPackNotFound, name).
			WithHint("searched %s; add the pack's parent directory to %s", strings.Join(m.searchPath, ":"), PathVariable)
	}
	if err := m.CheckPack(path); err != nil {
		return nil, err
	}
	pack := &Pack{
		Name:     name,
		Path:     path,
		Required: make(map[pluginabi.Role]string, len(RequiredObjects)),
		Loaded:   make(map[pluginabi.Role]*Handle),
		manager:  m,
	}
	for role, object := range RequiredObjects {
		pack.Required[role] = filepath.Join(path, object)
	}
	return pack, nil
}

// CheckPack verifies every required object of the pack at path is a
// regular file. Each missing object is logged and listed in the
// returned *IncompletePackError. Nothing is opened.
func (m *Manager) CheckPack(path string) error {
	var missing []string
	for _, object := range []string{FrontEndObject, BackEndObject} {
		objectPath := filepath.Join(path, object)
		info, err := os.Stat(objectPath)
		if err == nil && info.Mode().IsRegular() {
			continue
		}
		reason := "not a regular file"
		if err != nil {
			reason = err.Error()
		}
		m.logger.Error("plugin pack object missing", "pack", path, "object", object, "reason", reason)
		missing = append(missing, object)
	}
	if len(missing) > 0 {
		return fault.New(fault.PluginDiscovery, "check plugin pack", &IncompletePackError{Path: path, Missing: missing}).
			WithHint("a pack needs both %s and %s", FrontEndObject, BackEndObject)
	}
	return nil
}

// PackLooksGood reports whether CheckPack passes.
func (m *Manager) PackLooksGood(path string) bool {
	return m.CheckPack(path) == nil
}

// LoadPack opens the role half of the pack at path, resolves its entry
// symbol, and checks its ABI. Construct is not called here; see
// Handle.Instance.
func (m *Manager) LoadPack(role pluginabi.Role, path string) (*Handle, error) {
	const op = "load plugin"
	objectName, ok := RequiredObjects[role]
	if !ok {
		return nil, fault.Newf(fault.PluginDiscovery, op, "unknown plugin role %s", role)
	}
	objectPath := filepath.Join(path, objectName)

	digest, err := binhash.HashFile(objectPath)
	if err != nil {
		return nil, fault.Newf(fault.PluginDiscovery, op, "%w: %w", ErrPluginLoad, err)
	}
	object, err := m.opener.Open(objectPath)
	if err != nil {
		return nil, fault.Newf(fault.PluginDiscovery, op, "%w: %s: %w", ErrPluginLoad, objectPath, err)
	}

	info, err := entryPoint(object, objectPath)
	if err != nil {
		return nil, err
	}
	if info.ABI != pluginabi.ABIVersion {
		return nil, fault.Newf(fault.PluginABI, op, "%w: %s (%s) implements ABI %d, core implements %d",
			ErrPluginABIMismatch, info.Name, objectPath, info.ABI, pluginabi.ABIVersion).
			WithHint("rebuild plugin %s against this Gladius release", info.Name)
	}
	if info.Construct == nil {
		return nil, fault.Newf(fault.PluginABI, op, "%w: %s has no constructor", ErrPluginEntryPointNotFound, objectPath)
	}

	m.logger.Info("plugin loaded", "role", role, "plugin", info.Name, "version", info.Version,
		"path", objectPath, "digest", digest.String())
	return &Handle{Role: role, Path: objectPath, Directory: path, Info: info, Digest: digest}, nil
}

func entryPoint(object Object, objectPath string) (*pluginabi.Info, error) {
	const op = "load plugin"
	symbol, err := object.Lookup(pluginabi.EntrySymbol)
	if err != nil {
		return nil, fault.Newf(fault.PluginABI, op, "%w: %s in %s: %w", ErrPluginEntryPointNotFound, pluginabi.EntrySymbol, objectPath, err).
			WithHint("the plugin must export %s", pluginabi.EntrySymbol)
	}
	var entry func() *pluginabi.Info
	switch typed := symbol.(type) {
	case func() *pluginabi.Info:
		entry = typed
	case *func() *pluginabi.Info:
		entry = *typed
	default:
		return nil, fault.Newf(fault.PluginABI, op, "%w: %s in %s has type %T, want func() *pluginabi.Info",
			ErrPluginEntryPointNotFound, pluginabi.EntrySymbol, objectPath, symbol)
	}
	info := entry()
	if info == nil {
		return nil, fault.Newf(fault.PluginABI, op, "%w: %s in %s returned nil", ErrPluginEntryPointNotFound, pluginabi.EntrySymbol, objectPath)
	}
	return info, nil
}

// LoadFilters opens every Filter*.so in the pack at path and registers
// its filters in set. It returns the names registered.
func (m *Manager) LoadFilters(path string, set *overlay.FilterSet) ([]string, error) {
	objects, err := filterObjects(path)
	if err != nil {
		return nil, fault.New(fault.PluginDiscovery, "load filters", err)
	}
	return m.LoadFilterObjects(objects, set)
}

// LoadFilterObjects opens the given filter objects and registers their
// filters in set.
func (m *Manager) LoadFilterObjects(objects []string, set *overlay.FilterSet) ([]string, error) {
	const op = "load filters"
	var names []string
	for _, objectPath := range objects {
		object, err := m.opener.Open(objectPath)
		if err != nil {
			return names, fault.Newf(fault.PluginDiscovery, op, "%w: %s: %w", ErrPluginLoad, objectPath, err)
		}
		symbol, err := object.Lookup(pluginabi.FilterSymbol)
		if err != nil {
			return names, fault.Newf(fault.PluginABI, op, "%w: %s in %s: %w", ErrPluginEntryPointNotFound, pluginabi.FilterSymbol, objectPath, err)
		}
		var entry func() *pluginabi.FilterInfo
		switch typed := symbol.(type) {
		case func() *pluginabi.FilterInfo:
			entry = typed
		case *func() *pluginabi.FilterInfo:
			entry = *typed
		default:
			return names, fault.Newf(fault.PluginABI, op, "%w: %s in %s has type %T", ErrPluginEntryPointNotFound, pluginabi.FilterSymbol, objectPath, symbol)
		}
		info := entry()
		if info == nil || info.ABI != pluginabi.ABIVersion {
			abi := 0
			if info != nil {
				abi = info.ABI
			}
			return names, fault.Newf(fault.PluginABI, op, "%w: %s implements ABI %d, core implements %d",
				ErrPluginABIMismatch, objectPath, abi, pluginabi.ABIVersion).
				WithHint("rebuild %s against this Gladius release", filepath.Base(objectPath))
		}
		for _, filter := range info.Filters {
			if err := set.Register(filter); err != nil {
				return names, fault.New(fault.PluginABI, op, fmt.Errorf("%s: %w", objectPath, err))
			}
			names = append(names, filter.Name)
			m.logger.Info("filter registered", "filter", filter.Name, "object", objectPath)
		}
	}
	return names, nil
}

// List returns every pack directory on the search path, in search
// order, with its completeness.
func (m *Manager) List() []Listing {
	seen := make(map[string]bool)
	var listings []Listing
	for _, dir := range m.searchPath {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		var names []string
		for _, entry := range entries {
			if entry.IsDir() {
				names = append(names, entry.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			path := filepath.Join(dir, name)
			listing := Listing{Name: name, Path: path, Shadowed: seen[name]}
			if !listing.Shadowed {
				listing.Err = m.CheckPack(path)
			}
			seen[name] = true
			listings = append(listings, listing)
		}
	}
	return listings
}
