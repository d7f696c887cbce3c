// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lanl/gladius-sub000/lib/config"
	"github.com/lanl/gladius-sub000/lib/fault"
	"github.com/lanl/gladius-sub000/lib/pluginmgr"
	"github.com/lanl/gladius-sub000/lib/testutil"
	"github.com/lanl/gladius-sub000/lib/topology"
)

func TestLoadConfigDefaultsAndOverrides(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")
	flags := commonFlags{logLevel: "debug"}
	cfg, err := flags.loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Network.Launcher != "local" {
		t.Errorf("config = %+v", cfg)
	}

	flags.logLevel = "chatty"
	if _, err := flags.loadConfig(); !fault.IsKind(err, fault.Configuration) {
		t.Errorf("bad --log-level: %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := testutil.WriteFile(t, filepath.Join(t.TempDir(), "gladius.yaml"), []byte(
		"network:\n  topology: tree\n  fanout: 4\n"))
	flags := commonFlags{configPath: path}
	cfg, err := flags.loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	options, err := (&topologyFlags{rootHost: "fe"}).options(cfg)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if options.Style != topology.Tree || options.Fanout != 4 || options.RootHost != "fe" {
		t.Errorf("options = %+v", options)
	}

	options, err = (&topologyFlags{rootHost: "fe", style: "flat", fanout: 8}).options(cfg)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if options.Style != topology.Flat || options.Fanout != 8 {
		t.Errorf("flags did not override the file: %+v", options)
	}
	if _, err := (&topologyFlags{rootHost: "fe", style: "ring"}).options(cfg); err == nil {
		t.Error("unknown style accepted")
	}
}

func TestReadProcessTableRequiresFlag(t *testing.T) {
	if _, err := (&topologyFlags{}).readProcessTable(t.Context()); !fault.IsKind(err, fault.Configuration) {
		t.Fatalf("readProcessTable = %v, want a configuration error", err)
	}
}

func TestReadTopologyFile(t *testing.T) {
	path := testutil.WriteFile(t, filepath.Join(t.TempDir(), "tree.top"), []byte("fe:0 => nodeA:1 nodeB:2 ;\n"))
	topo, err := (&topologyFlags{topologyFile: path}).readTopologyFile()
	if err != nil {
		t.Fatalf("readTopologyFile: %v", err)
	}
	if len(topo.Leaves()) != 2 {
		t.Errorf("leaves = %v", topo.Leaves())
	}
	if topo, err := (&topologyFlags{}).readTopologyFile(); topo != nil || err != nil {
		t.Errorf("no file: %v, %v", topo, err)
	}
}

func TestPrintPacks(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "echo", pluginmgr.FrontEndObject), []byte("fe"))
	testutil.WriteFile(t, filepath.Join(dir, "echo", pluginmgr.BackEndObject), []byte("be"))
	testutil.WriteFile(t, filepath.Join(dir, "broken", pluginmgr.FrontEndObject), []byte("fe"))
	manager := pluginmgr.New(pluginmgr.Options{PluginPath: dir, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	var output bytes.Buffer
	if err := printPacks(&output, manager, nil); err != nil {
		t.Fatalf("printPacks: %v", err)
	}
	text := output.String()
	if !strings.Contains(text, "search path: "+dir) {
		t.Errorf("output lacks the search path:\n%s", text)
	}
	for _, line := range []string{"echo", "broken"} {
		if !strings.Contains(text, line) {
			t.Errorf("output lacks %s:\n%s", line, text)
		}
	}
	if !strings.Contains(text, "incomplete") {
		t.Errorf("broken pack not marked incomplete:\n%s", text)
	}

	output.Reset()
	if err := printPacks(&output, manager, []string{"echo"}); err != nil {
		t.Fatalf("printPacks: %v", err)
	}
	if strings.Contains(output.String(), "broken") {
		t.Errorf("filtered listing shows other packs:\n%s", output.String())
	}
}

func TestRootCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, sub := range rootCommand().Subcommands {
		names[sub.Name] = true
	}
	for _, want := range []string{"run", "topology", "packs", "version"} {
		if !names[want] {
			t.Errorf("gladius has no %q subcommand", want)
		}
	}
}
