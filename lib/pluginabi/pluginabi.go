// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package pluginabi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lanl/gladius-sub000/lib/overlay"
	"github.com/lanl/gladius-sub000/lib/proctab"
)

// ABIVersion is the plugin ABI this core implements. A plugin built
// against another version is refused before any of its code runs.
const ABIVersion = 2

// Exported symbol names a pack's shared objects must define. Their
// version suffix is ABIVersion.
const (
	// EntrySymbol resolves to a func() *Info in both plugin halves.
	EntrySymbol = "GladiusPluginV2"

	// FilterSymbol resolves to a func() *FilterInfo in a filter object.
	FilterSymbol = "GladiusFilterV2"
)

// Role says which half of a pack an object is.
type Role int

const (
	FrontEnd Role = iota + 1
	BackEnd
)

func (r Role) String() string {
	switch r {
	case FrontEnd:
		return "front-end"
	case BackEnd:
		return "back-end"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Plugin is the capability both halves of a pack implement. PluginMain
// owns the protocol stream and the network until it returns; returning
// ends the session. A well-behaved receive loop returns when it sees
// protocol.Shutdown.
type Plugin interface {
	PluginMain(ctx context.Context, args Args) error
}

// Args is everything a plugin half gets from the core.
type Args struct {
	// HomeDirectory is the pack directory the half was loaded from.
	HomeDirectory string

	// ApplicationArgs are the tool arguments given on the front end.
	ApplicationArgs []string

	// ProcessTable is the whole job on the front end and the local
	// host's subset on a back end.
	ProcessTable *proctab.Table

	// ProtocolStream is the broadcast stream the handshake ran on. Tags
	// from protocol.FirstPluginTag are the plugin's.
	ProtocolStream *overlay.Stream

	// Network is set for the front-end half.
	Network *overlay.Network

	// BackEnd is set for the back-end half.
	BackEnd *overlay.BackEnd

	Logger *slog.Logger
}

// Info describes a plugin half. The entry symbol returns it.
type Info struct {
	// ABI must equal ABIVersion.
	ABI int

	Name    string
	Version string

	// Construct creates the plugin. The core calls it at most once per
	// loaded object, and only after the ABI check passed.
	Construct func() (Plugin, error)
}

// FilterInfo lists the overlay filters a filter object provides.
type FilterInfo struct {
	ABI     int
	Filters []*overlay.Filter
}

// Singleton wraps construct so every call returns the first result.
func Singleton(construct func() (Plugin, error)) func() (Plugin, error) {
	var (
		once     sync.Once
		instance Plugin
		err      error
	)
	return func() (Plugin, error) {
		once.Do(func() { instance, err = construct() })
		return instance, err
	}
}

// PluginFunc adapts a function to Plugin.
type PluginFunc func(ctx context.Context, args Args) error

// PluginMain calls f.
func (f PluginFunc) PluginMain(ctx context.Context, args Args) error { return f(ctx, args) }
