// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for a workstation, with every overlay node on one
	// machine.
	Development Environment = "development"
	// Production is for cluster sessions.
	Production Environment = "production"
)

// EnvironmentVariable names the variable Load reads the config path from.
const EnvironmentVariable = "GLADIUS_CONFIG"

// Config is the master configuration for Gladius binaries.
type Config struct {
	// Environment identifies the deployment type (development, production).
	Environment Environment `yaml:"environment"`

	// InstallPrefix is the Gladius installation root. Plugin packs are
	// searched in InstallPrefix/lib first. Empty means derive it from
	// the running executable (see lib/session).
	InstallPrefix string `yaml:"install_prefix"`

	// Network configures overlay construction and back-end waiting.
	Network NetworkConfig `yaml:"network"`

	// Session configures the connection hand-off.
	Session SessionConfig `yaml:"session"`

	// Log configures the structured logger.
	Log LogConfig `yaml:"log"`

	// Per-environment overrides, applied after the base config is loaded.
	DevelopmentOverrides *Overrides `yaml:"development,omitempty"`
	ProductionOverrides  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains fields that can be overridden per environment.
type Overrides struct {
	Network *NetworkConfig `yaml:"network,omitempty"`
	Session *SessionConfig `yaml:"session,omitempty"`
	Log     *LogConfig     `yaml:"log,omitempty"`
}

// NetworkConfig configures the overlay.
type NetworkConfig struct {
	// ListenAddress is where the root accepts links.
	// Default: ":0"
	ListenAddress string `yaml:"listen_address"`

	// Topology is "flat" or "tree".
	// Default: flat
	Topology string `yaml:"topology"`

	// Fanout bounds the children per node for tree topologies.
	// Default: 32
	Fanout int `yaml:"fanout"`

	// ThreadsPerLeaf is the number of tool threads per leaf. Only 1 is
	// supported.
	ThreadsPerLeaf int `yaml:"threads_per_leaf"`

	// Launcher is "local" (internal nodes run in the front end) or
	// "exec" (internal nodes run gladius-commnode via LaunchCommand).
	// Default: local (development), exec (production)
	Launcher string `yaml:"launcher"`

	// LaunchCommand prefixes the gladius-commnode command line for the
	// exec launcher. {host} and {rank} are substituted.
	// Default: ["ssh", "-oBatchMode=yes", "{host}"]
	LaunchCommand []string `yaml:"launch_command"`

	// CommNodeBinary is the path of gladius-commnode on remote hosts.
	// Default: gladius-commnode
	CommNodeBinary string `yaml:"commnode_binary"`

	// ConnectTimeout bounds the wait for back ends to join.
	// Default: 5m
	ConnectTimeout string `yaml:"connect_timeout"`

	// PollInterval is how often the front end checks the connection
	// count.
	// Default: 100ms
	PollInterval string `yaml:"poll_interval"`

	// UpstreamFilter is the filter of the front end's protocol stream.
	// Default: waitforall
	UpstreamFilter string `yaml:"upstream_filter"`
}

// SessionConfig configures the connection hand-off.
type SessionConfig struct {
	// HandOffDir is where hand-off files are written. Empty means
	// ${TMPDIR:-/tmp}.
	HandOffDir string `yaml:"handoff_dir"`

	// WriteHandOff makes the front end write one hand-off file per leaf.
	// Default: true
	WriteHandOff bool `yaml:"write_handoff"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	// Default: info
	Level string `yaml:"level"`

	// Format is auto (text on a terminal, JSON otherwise), text, or json.
	// Default: auto
	Format string `yaml:"format"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Environment: Development,
		Network: NetworkConfig{
			ListenAddress:  ":0",
			Topology:       "flat",
			Fanout:         32,
			ThreadsPerLeaf: 1,
			Launcher:       "local",
			LaunchCommand:  []string{"ssh", "-oBatchMode=yes", "{host}"},
			CommNodeBinary: "gladius-commnode",
			ConnectTimeout: "5m",
			PollInterval:   "100ms",
			UpstreamFilter: "waitforall",
		},
		Session: SessionConfig{
			WriteHandOff: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads configuration from the file named by GLADIUS_CONFIG.
// There is no discovery: if the variable is not set, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your gladius.yaml config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. Environment
// variables never override values; only ${HOME}-style references in
// path fields are expanded.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.DevelopmentOverrides
	case Production:
		overrides = c.ProductionOverrides
		// Production defaults: internal nodes run on their hosts.
		if overrides == nil {
			overrides = &Overrides{Network: &NetworkConfig{Launcher: "exec"}}
		}
	}
	if overrides == nil {
		return
	}

	if network := overrides.Network; network != nil {
		if network.ListenAddress != "" {
			c.Network.ListenAddress = network.ListenAddress
		}
		if network.Topology != "" {
			c.Network.Topology = network.Topology
		}
		if network.Fanout != 0 {
			c.Network.Fanout = network.Fanout
		}
		if network.ThreadsPerLeaf != 0 {
			c.Network.ThreadsPerLeaf = network.ThreadsPerLeaf
		}
		if network.Launcher != "" {
			c.Network.Launcher = network.Launcher
		}
		if len(network.LaunchCommand) > 0 {
			c.Network.LaunchCommand = network.LaunchCommand
		}
		if network.CommNodeBinary != "" {
			c.Network.CommNodeBinary = network.CommNodeBinary
		}
		if network.ConnectTimeout != "" {
			c.Network.ConnectTimeout = network.ConnectTimeout
		}
		if network.PollInterval != "" {
			c.Network.PollInterval = network.PollInterval
		}
		if network.UpstreamFilter != "" {
			c.Network.UpstreamFilter = network.UpstreamFilter
		}
	}

	if session := overrides.Session; session != nil {
		if session.HandOffDir != "" {
			c.Session.HandOffDir = session.HandOffDir
		}
		// WriteHandOff is a bool, so it is always applied from overrides.
		c.Session.WriteHandOff = session.WriteHandOff
	}

	if log := overrides.Log; log != nil {
		if log.Level != "" {
			c.Log.Level = log.Level
		}
		if log.Format != "" {
			c.Log.Format = log.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"GLADIUS_PREFIX": c.InstallPrefix,
		"HOME":           os.Getenv("HOME"),
	}
	c.InstallPrefix = expandVars(c.InstallPrefix, vars)
	vars["GLADIUS_PREFIX"] = c.InstallPrefix

	c.Session.HandOffDir = expandVars(c.Session.HandOffDir, vars)
	c.Network.CommNodeBinary = expandVars(c.Network.CommNodeBinary, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if !slices.Contains([]string{"flat", "tree"}, c.Network.Topology) {
		errs = append(errs, fmt.Errorf("network.topology must be flat or tree, got %q", c.Network.Topology))
	}
	if c.Network.Topology == "tree" && c.Network.Fanout < 2 {
		errs = append(errs, fmt.Errorf("network.fanout must be at least 2, got %d", c.Network.Fanout))
	}
	if c.Network.ThreadsPerLeaf != 1 {
		errs = append(errs, fmt.Errorf("network.threads_per_leaf: only 1 is supported, got %d", c.Network.ThreadsPerLeaf))
	}
	if !slices.Contains([]string{"local", "exec"}, c.Network.Launcher) {
		errs = append(errs, fmt.Errorf("network.launcher must be local or exec, got %q", c.Network.Launcher))
	}
	if c.Network.Launcher == "exec" && c.Network.CommNodeBinary == "" {
		errs = append(errs, fmt.Errorf("network.commnode_binary is required for the exec launcher"))
	}
	if _, err := c.ConnectTimeout(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.PollInterval(); err != nil {
		errs = append(errs, err)
	}
	if c.Network.UpstreamFilter == "" {
		errs = append(errs, fmt.Errorf("network.upstream_filter is required"))
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level))
	}
	if !slices.Contains([]string{"auto", "text", "json"}, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of auto, text, json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// ConnectTimeout returns network.connect_timeout as a duration.
func (c *Config) ConnectTimeout() (time.Duration, error) {
	return parsePositiveDuration("network.connect_timeout", c.Network.ConnectTimeout)
}

// PollInterval returns network.poll_interval as a duration.
func (c *Config) PollInterval() (time.Duration, error) {
	return parsePositiveDuration("network.poll_interval", c.Network.PollInterval)
}

func parsePositiveDuration(field, value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return duration, nil
}

// BinaryPath returns the full path to a Gladius binary. It looks in
// InstallPrefix/bin first, then falls back to exec.LookPath.
func (c *Config) BinaryPath(name string) (string, error) {
	if c.InstallPrefix != "" {
		binPath := filepath.Join(c.InstallPrefix, "bin", name)
		if _, err := os.Stat(binPath); err == nil {
			return binPath, nil
		}
	}
	path, err := exec.LookPath(name)
	if err != nil {
		if c.InstallPrefix != "" {
			return "", fmt.Errorf("%s not found in %s or PATH", name, filepath.Join(c.InstallPrefix, "bin"))
		}
		return "", fmt.Errorf("%s not found in PATH", name)
	}
	return path, nil
}
