// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package proctab

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/lanl/gladius-sub000/lib/codec"
)

func TestLandscapeRejectsDuplicateHost(t *testing.T) {
	landscape := NewLandscape()
	if !landscape.Insert("nodeA", 2) {
		t.Fatal("first insert of nodeA rejected")
	}
	if !landscape.Insert("nodeB", 3) {
		t.Fatal("first insert of nodeB rejected")
	}
	if landscape.Insert("nodeA", 7) {
		t.Fatal("duplicate insert of nodeA accepted")
	}

	if got := landscape.Processes("nodeA"); got != 2 {
		t.Errorf("nodeA count = %d after duplicate insert, want 2", got)
	}
	if got := landscape.NumProcesses(); got != 5 {
		t.Errorf("NumProcesses = %d, want 5", got)
	}
	if got := landscape.NumHosts(); got != 2 {
		t.Errorf("NumHosts = %d, want 2", got)
	}
}

func TestLandscapeTotalCountsAcceptedInsertsOnly(t *testing.T) {
	inserts := []struct {
		host  string
		count int
	}{
		{"n1", 4}, {"n2", 1}, {"n1", 9}, {"n3", 0}, {"", 3}, {"n3", 2}, {"n2", 5},
	}
	landscape := NewLandscape()
	want := 0
	for _, insert := range inserts {
		if landscape.Insert(insert.host, insert.count) {
			want += insert.count
		}
		if landscape.NumProcesses() != want {
			t.Fatalf("after Insert(%q, %d): NumProcesses = %d, want %d",
				insert.host, insert.count, landscape.NumProcesses(), want)
		}
	}
	if want != 7 {
		t.Fatalf("test table drifted: accepted total = %d, want 7", want)
	}
	if got := landscape.Hosts(); !reflect.DeepEqual(got, []string{"n1", "n2", "n3"}) {
		t.Errorf("Hosts = %v, want insertion order [n1 n2 n3]", got)
	}
}

func TestTableRankUniqueness(t *testing.T) {
	table := NewTable(2)
	if err := table.Set(0, Entry{HostName: "nodeA", ExecutableName: "app", PID: 10, Rank: 0}); err != nil {
		t.Fatalf("Set(0): %v", err)
	}
	if err := table.Set(1, Entry{HostName: "nodeB", ExecutableName: "app", PID: 11, Rank: 0}); err == nil {
		t.Fatal("Set accepted a duplicate rank")
	}
	if err := table.Set(2, Entry{Rank: 2}); err == nil {
		t.Fatal("Set accepted an out-of-range index")
	}
	if table.Complete() {
		t.Error("table with an unfilled slot reports Complete")
	}
	if err := table.Set(1, Entry{HostName: "nodeB", ExecutableName: "app", PID: 11, Rank: 1}); err != nil {
		t.Fatalf("Set(1): %v", err)
	}
	if !table.Complete() {
		t.Error("filled table does not report Complete")
	}

	// Replacing slot 0 with a new rank frees rank 0.
	if err := table.Set(0, Entry{HostName: "nodeA", Rank: 5}); err != nil {
		t.Fatalf("replace slot 0: %v", err)
	}
	if _, ok := table.ByRank(0); ok {
		t.Error("rank 0 still resolvable after its slot was replaced")
	}
}

func TestTableCloneIsDeep(t *testing.T) {
	table, err := TableFromEntries([]Entry{
		{HostName: "nodeA", ExecutableName: "app", PID: 1, Rank: 0},
	})
	if err != nil {
		t.Fatalf("TableFromEntries: %v", err)
	}
	clone := table.Clone()
	if err := table.Set(0, Entry{HostName: "nodeZ", Rank: 0}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if clone.At(0).HostName != "nodeA" {
		t.Errorf("clone changed with source: %+v", clone.At(0))
	}
}

func TestTableSubsetAndLandscape(t *testing.T) {
	table, err := TableFromEntries([]Entry{
		{HostName: "nodeB", ExecutableName: "app", PID: 20, Rank: 2},
		{HostName: "nodeA", ExecutableName: "app", PID: 10, Rank: 0},
		{HostName: "nodeB", ExecutableName: "app", PID: 21, Rank: 3},
		{HostName: "nodeA", ExecutableName: "app", PID: 11, Rank: 1},
		{HostName: "nodeB", ExecutableName: "app", PID: 22, Rank: 4},
	})
	if err != nil {
		t.Fatalf("TableFromEntries: %v", err)
	}

	subset := table.Subset("nodeB")
	if subset.Len() != 3 {
		t.Fatalf("Subset(nodeB).Len = %d, want 3", subset.Len())
	}
	for index, wantRank := range []int{2, 3, 4} {
		if got := subset.At(index).Rank; got != wantRank {
			t.Errorf("subset[%d].Rank = %d, want %d", index, got, wantRank)
		}
	}

	landscape := table.Landscape()
	if got := landscape.Hosts(); !reflect.DeepEqual(got, []string{"nodeB", "nodeA"}) {
		t.Errorf("Landscape hosts = %v, want first-seen order [nodeB nodeA]", got)
	}
	if landscape.Processes("nodeA") != 2 || landscape.Processes("nodeB") != 3 {
		t.Errorf("Landscape counts = A:%d B:%d, want A:2 B:3",
			landscape.Processes("nodeA"), landscape.Processes("nodeB"))
	}
}

func TestTableCBOREnforcesRanks(t *testing.T) {
	data, err := codec.Marshal([]Entry{{HostName: "a", Rank: 1}, {HostName: "b", Rank: 1}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var table Table
	if err := codec.Unmarshal(data, &table); err == nil {
		t.Fatal("decoding a table with duplicate ranks succeeded")
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	content := `processes:
  - {host: nodeA, executable: /usr/bin/app, pid: 4121, rank: 0}
  - {host: nodeB, executable: /usr/bin/app, pid: 977, rank: 1}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	table, err := FileSource{Path: path}.ProcessTable(context.Background(), nil)
	if err != nil {
		t.Fatalf("ProcessTable: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("Len = %d, want 2", table.Len())
	}
	entry, ok := table.ByRank(1)
	if !ok || entry.HostName != "nodeB" || entry.PID != 977 {
		t.Errorf("rank 1 = %+v, %v", entry, ok)
	}
}

func TestFileSourceRejectsMissingHost(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	if err := os.WriteFile(path, []byte("processes:\n  - {pid: 1, rank: 0}\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := (FileSource{Path: path}).ProcessTable(context.Background(), nil); err == nil {
		t.Fatal("entry without host accepted")
	}
}
