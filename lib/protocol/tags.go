// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"
	"sync"
)

// Tag labels a packet on an overlay stream. The core reserves a small
// block of tags for the session protocol; everything from
// FirstPluginTag up belongs to plugins.
type Tag int32

// firstCoreTag leaves room below the core block for tags the overlay
// itself might need.
const firstCoreTag Tag = 100

const (
	// InitHandshake carries the ping (front end → back ends) and the
	// negated pong (back ends → front end).
	InitHandshake Tag = firstCoreTag + iota

	// PluginNameInfo carries the PluginNameInfo message announcing
	// which plugin pack the back ends must load.
	PluginNameInfo

	// BackEndPluginsReady carries each back end's BackEndReady report
	// after it loaded (or failed to load) its plugin half.
	BackEndPluginsReady

	// Shutdown asks every receive loop on the stream to finish.
	Shutdown

	// FirstPluginTag is the first tag a plugin may use. Plugins number
	// their tags FirstPluginTag + k.
	FirstPluginTag
)

func (t Tag) String() string {
	switch t {
	case InitHandshake:
		return "InitHandshake"
	case PluginNameInfo:
		return "PluginNameInfo"
	case BackEndPluginsReady:
		return "BackEndPluginsReady"
	case Shutdown:
		return "Shutdown"
	}
	if t >= FirstPluginTag {
		return fmt.Sprintf("PluginTag(%d)", t-FirstPluginTag)
	}
	return fmt.Sprintf("Tag(%d)", int32(t))
}

// IsCore reports whether t is in the reserved core block.
func (t Tag) IsCore() bool {
	return t >= firstCoreTag && t < FirstPluginTag
}

// PluginTag returns the k-th plugin tag. Every plugin computes its tags
// from the same FirstPluginTag base.
func PluginTag(k int) Tag {
	if k < 0 {
		panic(fmt.Sprintf("protocol.PluginTag: negative offset %d", k))
	}
	return FirstPluginTag + Tag(k)
}

// Range is a half-open block of tags [First, First+Count).
type Range struct {
	First Tag
	Count int
}

// Tag returns the k-th tag of the range.
func (r Range) Tag(k int) Tag {
	if k < 0 || k >= r.Count {
		panic(fmt.Sprintf("protocol.Range.Tag: offset %d outside range of %d", k, r.Count))
	}
	return r.First + Tag(k)
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t Tag) bool {
	return t >= r.First && t < r.First+Tag(r.Count)
}

// Overlaps reports whether two ranges share a tag.
func (r Range) Overlaps(other Range) bool {
	if r.Count == 0 || other.Count == 0 {
		return false
	}
	return r.First < other.First+Tag(other.Count) && other.First < r.First+Tag(r.Count)
}

// Allocator hands out disjoint tag ranges above FirstPluginTag, for
// sessions that run more than one plugin over the same stream. Safe
// for concurrent use.
type Allocator struct {
	mu   sync.Mutex
	next Tag
	by   map[string]Range
}

// NewAllocator returns an allocator whose first range starts at
// FirstPluginTag.
func NewAllocator() *Allocator {
	return &Allocator{next: FirstPluginTag, by: make(map[string]Range)}
}

// Reserve returns a block of count tags for the named plugin. Asking
// again for the same name returns the same block, and fails if the
// count differs.
func (a *Allocator) Reserve(name string, count int) (Range, error) {
	if count <= 0 {
		return Range{}, fmt.Errorf("plugin %q: tag count must be positive, got %d", name, count)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.by[name]; ok {
		if existing.Count != count {
			return Range{}, fmt.Errorf("plugin %q already holds %d tags, asked for %d", name, existing.Count, count)
		}
		return existing, nil
	}
	reserved := Range{First: a.next, Count: count}
	a.next += Tag(count)
	a.by[name] = reserved
	return reserved, nil
}
