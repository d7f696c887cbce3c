// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrFilterLoad is returned when a named filter is not registered.
var ErrFilterLoad = errors.New("filter not found")

// Core filter names.
const (
	// FilterPassThrough forwards every upstream packet as soon as it
	// arrives.
	FilterPassThrough = "passthrough"

	// FilterWaitForAll holds upstream packets until every participating
	// child has sent a wave, then forwards the waves together.
	FilterWaitForAll = "waitforall"
)

// FilterState is the per-node, per-stream instance of a filter. A
// router calls it under its own lock, so implementations need no
// synchronization.
type FilterState interface {
	// Push accepts one wave of packets from child and returns whatever
	// is now ready to go upstream, as a single wave.
	Push(child Rank, wave []Packet) []Packet

	// Add counts a child that connected after the stream opened.
	Add(child Rank)

	// Drop removes a child that left the network and returns anything
	// its departure released.
	Drop(child Rank) []Packet
}

// Filter is a named upstream reduction. New creates the state for one
// stream at one node, given the children that carry traffic for it.
type Filter struct {
	Name string
	New  func(participants []Rank) FilterState
}

// FilterSet is a registry of filters by name. Every node of a network
// must hold the filters its streams name. Safe for concurrent use.
type FilterSet struct {
	mu      sync.RWMutex
	filters map[string]*Filter
}

// NewFilterSet returns a set holding the core filters.
func NewFilterSet() *FilterSet {
	set := &FilterSet{filters: make(map[string]*Filter)}
	set.filters[FilterPassThrough] = &Filter{Name: FilterPassThrough, New: newPassThrough}
	set.filters[FilterWaitForAll] = &Filter{Name: FilterWaitForAll, New: newWaitForAll}
	return set
}

// Register adds a filter. It fails when the name is taken.
func (s *FilterSet) Register(filter *Filter) error {
	if filter == nil || filter.Name == "" || filter.New == nil {
		return fmt.Errorf("filter must have a name and a constructor")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.filters[filter.Name]; exists {
		return fmt.Errorf("filter %q already registered", filter.Name)
	}
	s.filters[filter.Name] = filter
	return nil
}

// Lookup returns the filter registered under name.
func (s *FilterSet) Lookup(name string) (*Filter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	filter, ok := s.filters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFilterLoad, name)
	}
	return filter, nil
}

// Names returns the registered filter names, sorted.
func (s *FilterSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.filters))
	for name := range s.filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type passThrough struct{}

func newPassThrough([]Rank) FilterState { return passThrough{} }

func (passThrough) Push(_ Rank, wave []Packet) []Packet { return wave }

func (passThrough) Add(Rank) {}

func (passThrough) Drop(Rank) []Packet { return nil }

// waitForAll queues waves per child and releases one wave from each
// child once all of them have one queued.
type waitForAll struct {
	order  []Rank
	queues map[Rank][][]Packet
}

func newWaitForAll(participants []Rank) FilterState {
	state := &waitForAll{queues: make(map[Rank][][]Packet, len(participants))}
	for _, child := range participants {
		state.order = append(state.order, child)
		state.queues[child] = nil
	}
	return state
}

func (w *waitForAll) Push(child Rank, wave []Packet) []Packet {
	if _, participating := w.queues[child]; !participating {
		return wave
	}
	w.queues[child] = append(w.queues[child], wave)
	return w.release()
}

func (w *waitForAll) Add(child Rank) {
	if _, participating := w.queues[child]; participating {
		return
	}
	w.order = append(w.order, child)
	w.queues[child] = nil
}

// Drop forwards the departed child's queued waves at once, followed by
// whatever the remaining children now complete.
func (w *waitForAll) Drop(child Rank) []Packet {
	pending, participating := w.queues[child]
	if !participating {
		return nil
	}
	delete(w.queues, child)
	for index, rank := range w.order {
		if rank == child {
			w.order = append(w.order[:index], w.order[index+1:]...)
			break
		}
	}
	var released []Packet
	for _, queued := range pending {
		released = append(released, queued...)
	}
	return append(released, w.release()...)
}

func (w *waitForAll) release() []Packet {
	if len(w.order) == 0 {
		return nil
	}
	var released []Packet
	for {
		for _, child := range w.order {
			if len(w.queues[child]) == 0 {
				return released
			}
		}
		for _, child := range w.order {
			released = append(released, w.queues[child][0]...)
			w.queues[child] = w.queues[child][1:]
		}
	}
}
