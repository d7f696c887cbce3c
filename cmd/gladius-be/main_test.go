// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/lanl/gladius-sub000/lib/fault"
	"github.com/lanl/gladius-sub000/lib/leafinfo"
)

func TestParseFlagsSources(t *testing.T) {
	if f, err := parseFlags([]string{"--session-key", "gladius-x", "--uid", "3"}); err != nil || f.uid != 3 {
		t.Errorf("hand-off flags: %+v, %v", f, err)
	}
	if _, err := parseFlags([]string{"--parent", "fe:7100", "--rank", "2"}); err != nil {
		t.Errorf("explicit flags: %v", err)
	}

	rejected := [][]string{
		nil,
		{"--session-key", "gladius-x"},
		{"--parent", "fe:7100"},
		{"--session-key", "gladius-x", "--uid", "1", "--parent", "fe:7100", "--rank", "1"},
	}
	for _, args := range rejected {
		if _, err := parseFlags(args); !fault.IsKind(err, fault.Configuration) {
			t.Errorf("parseFlags(%q) = %v, want a configuration error", args, err)
		}
	}
	if f, err := parseFlags([]string{"--version"}); err != nil || !f.showVersion {
		t.Errorf("--version alone: %+v, %v", f, err)
	}
}

func TestLeafInfoFromFlags(t *testing.T) {
	f := &flags{parent: "fe-host:7100", parentRank: 4, rank: 9, host: "nodeB"}
	info, err := f.leafInfo()
	if err != nil {
		t.Fatalf("leafInfo: %v", err)
	}
	want := leafinfo.Info{HostName: "nodeB", ParentHostName: "fe-host", Rank: 9, ParentPort: 7100, ParentRank: 4}
	if *info != want {
		t.Errorf("leafInfo = %+v, want %+v", *info, want)
	}

	for _, parent := range []string{"fe-host", "fe-host:0", "fe-host:http"} {
		f.parent = parent
		if _, err := f.leafInfo(); err == nil {
			t.Errorf("leafInfo accepted --parent %q", parent)
		}
	}
}
