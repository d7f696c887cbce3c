// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"errors"
	"slices"
	"testing"

	"github.com/lanl/gladius-sub000/lib/protocol"
)

func wave(source Rank, count int) []Packet {
	packets := make([]Packet, count)
	for index := range packets {
		packets[index] = Packet{Stream: 1, Tag: protocol.FirstPluginTag, Source: source}
	}
	return packets
}

func sources(packets []Packet) []Rank {
	var ranks []Rank
	for _, packet := range packets {
		ranks = append(ranks, packet.Source)
	}
	return ranks
}

func TestPassThroughForwardsImmediately(t *testing.T) {
	filter, err := NewFilterSet().Lookup(FilterPassThrough)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	state := filter.New([]Rank{1, 2})
	if got := state.Push(1, wave(1, 2)); len(got) != 2 {
		t.Fatalf("Push returned %d packets, want 2", len(got))
	}
	if got := state.Drop(2); got != nil {
		t.Fatalf("Drop returned %v, want nil", got)
	}
}

func TestWaitForAllHoldsUntilEveryChildSent(t *testing.T) {
	filter, err := NewFilterSet().Lookup(FilterWaitForAll)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	state := filter.New([]Rank{1, 2, 3})

	if got := state.Push(2, wave(2, 1)); len(got) != 0 {
		t.Fatalf("released %v after one of three children", sources(got))
	}
	if got := state.Push(2, wave(2, 1)); len(got) != 0 {
		t.Fatalf("released %v after a second wave from the same child", sources(got))
	}
	if got := state.Push(1, wave(1, 1)); len(got) != 0 {
		t.Fatalf("released %v after two of three children", sources(got))
	}

	got := state.Push(3, wave(3, 2))
	if want := []Rank{1, 2, 3, 3}; !slices.Equal(sources(got), want) {
		t.Fatalf("released %v, want %v", sources(got), want)
	}

	// Child 2's second wave is still queued.
	if got := state.Push(1, wave(1, 1)); len(got) != 0 {
		t.Fatalf("released %v without a wave from child 3", sources(got))
	}
	if got := state.Drop(3); !slices.Equal(sources(got), []Rank{1, 2}) {
		t.Fatalf("Drop released %v, want [1 2]", sources(got))
	}
}

func TestWaitForAllDropForwardsDepartedChildsWaves(t *testing.T) {
	filter, _ := NewFilterSet().Lookup(FilterWaitForAll)
	state := filter.New([]Rank{1, 2, 3})

	// Child 1 reports twice and leaves while 3 has yet to send.
	state.Push(1, wave(1, 1))
	state.Push(1, wave(1, 2))
	if got := state.Push(2, wave(2, 1)); len(got) != 0 {
		t.Fatalf("released %v before child 3 sent", sources(got))
	}
	if got := state.Drop(1); !slices.Equal(sources(got), []Rank{1, 1, 1}) {
		t.Fatalf("Drop released %v, want child 1's three queued packets", sources(got))
	}
	if got := state.Push(3, wave(3, 1)); !slices.Equal(sources(got), []Rank{2, 3}) {
		t.Fatalf("released %v, want [2 3]", sources(got))
	}
}

func TestWaitForAllDropReleasesBlockedWaves(t *testing.T) {
	filter, _ := NewFilterSet().Lookup(FilterWaitForAll)
	state := filter.New([]Rank{1, 2})

	state.Push(1, wave(1, 1))
	state.Push(1, wave(1, 1))
	if got := state.Push(2, wave(2, 1)); !slices.Equal(sources(got), []Rank{1, 2}) {
		t.Fatalf("released %v, want [1 2]", sources(got))
	}
	// Child 1's second wave waits on child 2, which then leaves with
	// nothing queued.
	if got := state.Drop(2); !slices.Equal(sources(got), []Rank{1}) {
		t.Fatalf("Drop(2) released %v, want [1]", sources(got))
	}
	if got := state.Drop(1); len(got) != 0 {
		t.Fatalf("Drop(1) released %v from a drained queue", sources(got))
	}
}

func TestWaitForAllCountsLateChildren(t *testing.T) {
	filter, _ := NewFilterSet().Lookup(FilterWaitForAll)
	state := filter.New(nil)

	// Traffic from a child the state has never heard of is not held.
	if got := state.Push(9, wave(9, 1)); len(got) != 1 {
		t.Fatalf("unknown child: released %d packets, want 1", len(got))
	}

	state.Add(1)
	state.Add(2)
	state.Add(2)
	if got := state.Push(1, wave(1, 1)); len(got) != 0 {
		t.Fatalf("released %v before child 2 sent", sources(got))
	}
	if got := state.Push(2, wave(2, 1)); !slices.Equal(sources(got), []Rank{1, 2}) {
		t.Fatalf("released %v, want [1 2]", sources(got))
	}
}

func TestFilterSetRegistration(t *testing.T) {
	set := NewFilterSet()
	if want := []string{FilterPassThrough, FilterWaitForAll}; !slices.Equal(set.Names(), want) {
		t.Fatalf("Names = %v, want %v", set.Names(), want)
	}

	if _, err := set.Lookup("sum"); !errors.Is(err, ErrFilterLoad) {
		t.Fatalf("Lookup(sum) error = %v, want ErrFilterLoad", err)
	}

	sum := &Filter{Name: "sum", New: newPassThrough}
	if err := set.Register(sum); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := set.Register(sum); err == nil {
		t.Fatal("registering the same name twice succeeded")
	}
	if err := set.Register(&Filter{Name: "broken"}); err == nil {
		t.Fatal("registering a filter without a constructor succeeded")
	}
	if got, err := set.Lookup("sum"); err != nil || got != sum {
		t.Fatalf("Lookup(sum) = %v, %v", got, err)
	}
}
