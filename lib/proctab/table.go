// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package proctab

import (
	"fmt"

	"github.com/lanl/gladius-sub000/lib/codec"
)

// Entry describes one target process.
type Entry struct {
	HostName       string `json:"host" yaml:"host"`
	ExecutableName string `json:"executable" yaml:"executable"`
	PID            int    `json:"pid" yaml:"pid"`
	Rank           int    `json:"rank" yaml:"rank"`
}

// Table is the ordered set of target processes. The number of entries
// is fixed when the table is allocated and ranks are unique across the
// table. A Table owns its entries: Clone and Subset produce deep copies
// whose lifetime is independent of the source.
type Table struct {
	entries []Entry
	filled  []bool
	ranks   map[int]int
}

// NewTable allocates a table with exactly n unfilled entries.
func NewTable(n int) *Table {
	if n < 0 {
		n = 0
	}
	return &Table{
		entries: make([]Entry, n),
		filled:  make([]bool, n),
		ranks:   make(map[int]int, n),
	}
}

// TableFromEntries builds a table holding a copy of entries. It fails
// when two entries share a rank.
func TableFromEntries(entries []Entry) (*Table, error) {
	table := NewTable(len(entries))
	for index, entry := range entries {
		if err := table.Set(index, entry); err != nil {
			return nil, err
		}
	}
	return table, nil
}

// Set stores entry at index. It fails when index is out of range or
// another slot already holds entry.Rank. Replacing a slot with an entry
// of a different rank frees the old rank.
func (t *Table) Set(index int, entry Entry) error {
	if index < 0 || index >= len(t.entries) {
		return fmt.Errorf("process table index %d out of range [0,%d)", index, len(t.entries))
	}
	if entry.Rank < 0 {
		return fmt.Errorf("process table entry %d: negative rank %d", index, entry.Rank)
	}
	if holder, taken := t.ranks[entry.Rank]; taken && holder != index {
		return fmt.Errorf("process table entry %d: rank %d already held by entry %d", index, entry.Rank, holder)
	}
	if t.filled[index] {
		delete(t.ranks, t.entries[index].Rank)
	}
	t.entries[index] = entry
	t.filled[index] = true
	t.ranks[entry.Rank] = index
	return nil
}

// Len returns the fixed number of entries.
func (t *Table) Len() int { return len(t.entries) }

// At returns the entry at index.
func (t *Table) At(index int) Entry { return t.entries[index] }

// Entries returns a copy of every entry in table order.
func (t *Table) Entries() []Entry {
	entries := make([]Entry, len(t.entries))
	copy(entries, t.entries)
	return entries
}

// ByRank returns the entry holding rank.
func (t *Table) ByRank(rank int) (Entry, bool) {
	index, ok := t.ranks[rank]
	if !ok {
		return Entry{}, false
	}
	return t.entries[index], true
}

// Complete reports whether every slot has been set.
func (t *Table) Complete() bool {
	return len(t.ranks) == len(t.entries)
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	clone := NewTable(len(t.entries))
	copy(clone.entries, t.entries)
	copy(clone.filled, t.filled)
	for rank, index := range t.ranks {
		clone.ranks[rank] = index
	}
	return clone
}

// Subset returns a new table holding copies of the entries that run on
// host, in table order. This is the slice of the job a back-end agent
// on host is responsible for.
func (t *Table) Subset(host string) *Table {
	var selected []Entry
	for index, entry := range t.entries {
		if t.filled[index] && entry.HostName == host {
			selected = append(selected, entry)
		}
	}
	subset := NewTable(len(selected))
	for index, entry := range selected {
		subset.entries[index] = entry
		subset.filled[index] = true
		subset.ranks[entry.Rank] = index
	}
	return subset
}

// Landscape summarizes the table as host process counts, hosts in
// order of first appearance.
func (t *Table) Landscape() *Landscape {
	var order []string
	counts := make(map[string]int)
	for index, entry := range t.entries {
		if !t.filled[index] {
			continue
		}
		if _, seen := counts[entry.HostName]; !seen {
			order = append(order, entry.HostName)
		}
		counts[entry.HostName]++
	}
	landscape := NewLandscape()
	for _, host := range order {
		landscape.Insert(host, counts[host])
	}
	return landscape
}

// MarshalCBOR encodes the table as its entry list.
//
// The table travels inside PluginNameInfo to every back end, which
// keeps its own host's subset.
func (t *Table) MarshalCBOR() ([]byte, error) {
	return codec.Marshal(t.Entries())
}

// UnmarshalCBOR decodes an entry list, enforcing rank uniqueness.
func (t *Table) UnmarshalCBOR(data []byte) error {
	var entries []Entry
	if err := codec.Unmarshal(data, &entries); err != nil {
		return err
	}
	decoded, err := TableFromEntries(entries)
	if err != nil {
		return err
	}
	*t = *decoded
	return nil
}
