// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package pluginmgr

import (
	"errors"
	"io"
	"sync"

	"github.com/lanl/gladius-sub000/lib/binhash"
	"github.com/lanl/gladius-sub000/lib/fault"
	"github.com/lanl/gladius-sub000/lib/pluginabi"
)

// ErrHandleClosed is returned by Instance after Close.
var ErrHandleClosed = errors.New("plugin handle closed")

// Handle is a loaded, ABI-checked plugin half. Instance constructs the
// plugin on first use; Close releases it.
type Handle struct {
	Role      pluginabi.Role
	Path      string
	Directory string
	Info      *pluginabi.Info
	Digest    binhash.Digest

	mu       sync.Mutex
	built    bool
	instance pluginabi.Plugin
	err      error
	closed   bool
}

// Instance returns the plugin, constructing it on the first call.
func (h *Handle) Instance() (pluginabi.Plugin, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHandleClosed
	}
	if !h.built {
		h.built = true
		h.instance, h.err = h.Info.Construct()
		if h.err == nil && h.instance == nil {
			h.err = errors.New("constructor returned no plugin")
		}
		if h.err != nil {
			h.err = fault.New(fault.PluginRuntime, "construct plugin "+h.Info.Name, h.err)
		}
	}
	return h.instance, h.err
}

// Close releases the instance, closing it when it implements
// io.Closer. Idempotent.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if closer, ok := h.instance.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return fault.New(fault.PluginRuntime, "close plugin "+h.Info.Name, err)
		}
	}
	h.instance = nil
	return nil
}
