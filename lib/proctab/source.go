// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package proctab

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Source produces the process table of the target job. The real
// implementation is the resource manager's attach service, which is
// outside the control plane; the front end only depends on this
// interface.
type Source interface {
	ProcessTable(ctx context.Context, launcherArgs []string) (*Table, error)
}

// FileSource reads a process table from a YAML file of the form
//
//	processes:
//	  - {host: nodeA, executable: /usr/bin/app, pid: 4121, rank: 0}
//	  - {host: nodeB, executable: /usr/bin/app, pid: 977, rank: 1}
//
// It stands in for an attach service when the job layout is already
// known, and is what the gladius CLI uses with --process-table.
type FileSource struct {
	Path string
}

type processTableFile struct {
	Processes []Entry `yaml:"processes"`
}

// ProcessTable reads and validates the file. launcherArgs is ignored.
func (s FileSource) ProcessTable(_ context.Context, _ []string) (*Table, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("reading process table: %w", err)
	}
	var file processTableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing process table %s: %w", s.Path, err)
	}
	for index, entry := range file.Processes {
		if entry.HostName == "" {
			return nil, fmt.Errorf("process table %s: entry %d has no host", s.Path, index)
		}
	}
	table, err := TableFromEntries(file.Processes)
	if err != nil {
		return nil, fmt.Errorf("process table %s: %w", s.Path, err)
	}
	return table, nil
}

// StaticSource returns a fixed table. Tests and embedding programs
// that already hold a table use it to satisfy Source.
type StaticSource struct {
	Table *Table
}

// ProcessTable returns a deep copy of the static table.
func (s StaticSource) ProcessTable(context.Context, []string) (*Table, error) {
	if s.Table == nil {
		return nil, fmt.Errorf("static process table is nil")
	}
	return s.Table.Clone(), nil
}
