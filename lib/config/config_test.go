// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gladius.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Network.Topology != "flat" || cfg.Network.Launcher != "local" {
		t.Errorf("expected flat topology with local launcher, got %s/%s", cfg.Network.Topology, cfg.Network.Launcher)
	}
	if cfg.Network.UpstreamFilter != "waitforall" {
		t.Errorf("expected upstream_filter=waitforall, got %s", cfg.Network.UpstreamFilter)
	}
	if !cfg.Session.WriteHandOff {
		t.Error("expected write_handoff=true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad_RequiresGladiusConfig(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when GLADIUS_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "GLADIUS_CONFIG environment variable not set") {
		t.Errorf("unexpected error message %q", err.Error())
	}
}

func TestLoad_WithGladiusConfig(t *testing.T) {
	path := writeConfig(t, `
environment: development
network:
  topology: tree
  fanout: 8
  connect_timeout: 90s
log:
  level: debug
`)
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Network.Topology != "tree" || cfg.Network.Fanout != 8 {
		t.Errorf("expected tree/8, got %s/%d", cfg.Network.Topology, cfg.Network.Fanout)
	}
	timeout, err := cfg.ConnectTimeout()
	if err != nil || timeout != 90*time.Second {
		t.Errorf("ConnectTimeout = %v, %v; want 90s", timeout, err)
	}
	// Unset fields keep their defaults.
	if cfg.Network.PollInterval != "100ms" {
		t.Errorf("expected default poll_interval, got %s", cfg.Network.PollInterval)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Log.Level)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	path := writeConfig(t, "network: [unclosed\n")
	_, err := LoadFile(path)
	if err == nil || !strings.Contains(err.Error(), path) {
		t.Fatalf("expected parse error naming %s, got %v", path, err)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: development
network:
  connect_timeout: 1m
development:
  network:
    connect_timeout: 10s
  session:
    write_handoff: false
production:
  network:
    connect_timeout: 30m
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Network.ConnectTimeout != "10s" {
		t.Errorf("development override not applied: connect_timeout=%s", cfg.Network.ConnectTimeout)
	}
	if cfg.Session.WriteHandOff {
		t.Error("development override of write_handoff not applied")
	}
}

func TestProductionDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "environment: production\n"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Network.Launcher != "exec" {
		t.Errorf("expected production launcher=exec, got %s", cfg.Network.Launcher)
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	t.Setenv("GLADIUS_NETWORK_TOPOLOGY", "tree")
	cfg, err := LoadFile(writeConfig(t, "network:\n  topology: flat\n"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Network.Topology != "flat" {
		t.Errorf("environment variable overrode config: topology=%s", cfg.Network.Topology)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	cfg, err := LoadFile(writeConfig(t, `
install_prefix: ${HOME}/gladius
session:
  handoff_dir: ${GLADIUS_PREFIX}/run
network:
  commnode_binary: ${GLADIUS_SITE_BIN:-/opt/gladius/bin}/gladius-commnode
`))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.InstallPrefix != "/home/tester/gladius" {
		t.Errorf("install_prefix = %s", cfg.InstallPrefix)
	}
	if cfg.Session.HandOffDir != "/home/tester/gladius/run" {
		t.Errorf("handoff_dir = %s", cfg.Session.HandOffDir)
	}
	if cfg.Network.CommNodeBinary != "/opt/gladius/bin/gladius-commnode" {
		t.Errorf("commnode_binary = %s", cfg.Network.CommNodeBinary)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"bad environment", func(c *Config) { c.Environment = "staging" }, "invalid environment"},
		{"bad topology", func(c *Config) { c.Network.Topology = "ring" }, "network.topology"},
		{"small fanout", func(c *Config) { c.Network.Topology = "tree"; c.Network.Fanout = 1 }, "network.fanout"},
		{"threads", func(c *Config) { c.Network.ThreadsPerLeaf = 2 }, "threads_per_leaf"},
		{"launcher", func(c *Config) { c.Network.Launcher = "pbs" }, "network.launcher"},
		{"timeout", func(c *Config) { c.Network.ConnectTimeout = "soon" }, "network.connect_timeout"},
		{"negative poll", func(c *Config) { c.Network.PollInterval = "-1s" }, "network.poll_interval"},
		{"level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.modify(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, test.wantErr)
			}
		})
	}
}

func TestBinaryPath(t *testing.T) {
	prefix := t.TempDir()
	binDir := filepath.Join(prefix, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	binary := filepath.Join(binDir, "gladius-be")
	if err := os.WriteFile(binary, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := Default()
	cfg.InstallPrefix = prefix
	got, err := cfg.BinaryPath("gladius-be")
	if err != nil || got != binary {
		t.Errorf("BinaryPath = %q, %v; want %q", got, err, binary)
	}
	if _, err := cfg.BinaryPath("gladius-no-such-binary"); err == nil {
		t.Error("BinaryPath found a binary that does not exist")
	}
}
