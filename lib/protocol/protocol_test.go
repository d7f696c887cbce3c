// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"testing"
)

func TestCoreTagsPrecedePluginTags(t *testing.T) {
	core := []Tag{InitHandshake, PluginNameInfo, BackEndPluginsReady, Shutdown}
	seen := make(map[Tag]bool)
	for _, tag := range core {
		if !tag.IsCore() {
			t.Errorf("%s is not reported as a core tag", tag)
		}
		if tag >= FirstPluginTag {
			t.Errorf("%s (%d) is not below FirstPluginTag (%d)", tag, tag, FirstPluginTag)
		}
		if seen[tag] {
			t.Errorf("core tag %d assigned twice", tag)
		}
		seen[tag] = true
	}
	if PluginTag(0) != FirstPluginTag {
		t.Errorf("PluginTag(0) = %d, want FirstPluginTag", PluginTag(0))
	}
	if PluginTag(3).IsCore() {
		t.Error("plugin tag reported as core")
	}
	if got := PluginTag(2).String(); got != "PluginTag(2)" {
		t.Errorf("PluginTag(2).String() = %q", got)
	}
}

func TestAllocatorRangesNeverOverlap(t *testing.T) {
	allocator := NewAllocator()
	sizes := map[string]int{"memstat": 3, "attach": 5, "broadcast": 1, "trace": 8}
	var ranges []Range
	for _, name := range []string{"memstat", "attach", "broadcast", "trace"} {
		reserved, err := allocator.Reserve(name, sizes[name])
		if err != nil {
			t.Fatalf("Reserve(%s): %v", name, err)
		}
		if reserved.First < FirstPluginTag {
			t.Errorf("%s range starts at %d, below FirstPluginTag", name, reserved.First)
		}
		ranges = append(ranges, reserved)
	}
	for i := range ranges {
		for j := range ranges {
			if i != j && ranges[i].Overlaps(ranges[j]) {
				t.Errorf("ranges %v and %v overlap", ranges[i], ranges[j])
			}
		}
	}

	again, err := allocator.Reserve("attach", 5)
	if err != nil {
		t.Fatalf("repeat Reserve: %v", err)
	}
	if again != ranges[1] {
		t.Errorf("repeat Reserve = %v, want %v", again, ranges[1])
	}
	if _, err := allocator.Reserve("attach", 6); err == nil {
		t.Error("Reserve with a different count succeeded")
	}
	if _, err := allocator.Reserve("empty", 0); err == nil {
		t.Error("Reserve of zero tags succeeded")
	}
}

func TestRange(t *testing.T) {
	reserved := Range{First: FirstPluginTag + 10, Count: 3}
	if !reserved.Contains(reserved.Tag(2)) {
		t.Error("range does not contain its last tag")
	}
	if reserved.Contains(FirstPluginTag + 13) {
		t.Error("range contains the tag past its end")
	}
	if (Range{First: 5, Count: 2}).Overlaps(Range{First: 7, Count: 2}) {
		t.Error("adjacent ranges reported as overlapping")
	}
}

func TestHandshakeSymmetry(t *testing.T) {
	magic, err := NewMagic()
	if err != nil {
		t.Fatalf("NewMagic: %v", err)
	}
	if magic == 0 {
		t.Fatal("magic is zero, so +M and -M are indistinguishable")
	}

	if err := CheckPong(magic, InitHandshake, Pong(Ping{Magic: magic})); err != nil {
		t.Errorf("correct pong rejected: %v", err)
	}

	bad := []struct {
		name  string
		tag   Tag
		reply Ping
	}{
		{"echoed magic", InitHandshake, Ping{Magic: magic}},
		{"wrong tag", PluginNameInfo, Ping{Magic: -magic}},
		{"off by one", InitHandshake, Ping{Magic: -magic + 1}},
		{"zero", InitHandshake, Ping{}},
	}
	for _, test := range bad {
		t.Run(test.name, func(t *testing.T) {
			if err := CheckPong(magic, test.tag, test.reply); !errors.Is(err, ErrHandshakeFailed) {
				t.Errorf("CheckPong = %v, want ErrHandshakeFailed", err)
			}
		})
	}
}
