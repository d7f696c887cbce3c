// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Gladius-be is the back-end agent. One runs on every host of the job;
// it joins the overlay the front end built and runs the back-end half
// of the plugin pack the front end names.
//
// Connection info comes either from the hand-off file the front end
// wrote:
//
//	gladius-be --session-key gladius-5f9c... --uid 3
//
// or from flags, when the launcher already knows the parent:
//
//	gladius-be --parent fe-host:7100 --parent-rank 0 --rank 3
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/lanl/gladius-sub000/cmd/gladius/cli"
	"github.com/lanl/gladius-sub000/lib/backend"
	"github.com/lanl/gladius-sub000/lib/config"
	"github.com/lanl/gladius-sub000/lib/fault"
	"github.com/lanl/gladius-sub000/lib/leafinfo"
	"github.com/lanl/gladius-sub000/lib/pluginmgr"
	"github.com/lanl/gladius-sub000/lib/process"
	"github.com/lanl/gladius-sub000/lib/session"
	"github.com/lanl/gladius-sub000/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

type flags struct {
	configPath string
	logLevel   string

	sessionKey string
	uid        int
	handOffDir string

	parent     string
	parentRank int
	rank       int
	host       string

	showVersion bool
}

func parseFlags(args []string) (*flags, error) {
	var f flags
	flagSet := pflag.NewFlagSet("gladius-be", pflag.ContinueOnError)
	flagSet.StringVar(&f.configPath, "config", "", "config file (default: $"+config.EnvironmentVariable+", then built-in defaults)")
	flagSet.StringVar(&f.logLevel, "log-level", "", "log level (overrides log.level)")
	flagSet.StringVar(&f.sessionKey, "session-key", "", "session key of the front end's hand-off files")
	flagSet.IntVar(&f.uid, "uid", -1, "this agent's hand-off id (its leaf rank)")
	flagSet.StringVar(&f.handOffDir, "handoff-dir", "", "directory holding hand-off files (overrides session.handoff_dir)")
	flagSet.StringVar(&f.parent, "parent", "", "parent node address host:port, instead of a hand-off file")
	flagSet.IntVar(&f.parentRank, "parent-rank", 0, "rank of the parent node")
	flagSet.IntVar(&f.rank, "rank", -1, "this back end's leaf rank")
	flagSet.StringVar(&f.host, "host", "", "this host's name in the topology (default: the hostname)")
	flagSet.BoolVar(&f.showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return nil, fault.New(fault.Configuration, "parse flags", err)
	}
	if f.showVersion {
		return &f, nil
	}
	if (f.sessionKey == "") == (f.parent == "") {
		return nil, fault.Newf(fault.Configuration, "parse flags", "give either --session-key and --uid or --parent, --parent-rank, and --rank")
	}
	if f.sessionKey != "" && f.uid < 0 {
		return nil, fault.Newf(fault.Configuration, "parse flags", "--session-key needs --uid")
	}
	if f.parent != "" && f.rank < 0 {
		return nil, fault.Newf(fault.Configuration, "parse flags", "--parent needs --rank")
	}
	return &f, nil
}

// leafInfo builds connection info from the explicit flags.
func (f *flags) leafInfo() (*leafinfo.Info, error) {
	host, portText, err := net.SplitHostPort(f.parent)
	if err != nil {
		return nil, fault.New(fault.Configuration, "parse --parent", err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port <= 0 || port > 65535 {
		return nil, fault.Newf(fault.Configuration, "parse --parent", "invalid port %q", portText)
	}
	self := f.host
	if self == "" {
		if self, err = os.Hostname(); err != nil {
			return nil, fault.New(fault.Configuration, "determine host name", err).WithHint("pass --host")
		}
	}
	return &leafinfo.Info{
		HostName:       self,
		ParentHostName: host,
		Rank:           int32(f.rank),
		ParentPort:     int32(port),
		ParentRank:     int32(f.parentRank),
	}, nil
}

func run() error {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}
	if f.showVersion {
		fmt.Println(version.Full())
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	logger, err := cli.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fault.New(fault.Configuration, "configure logging", err)
	}
	logger = logger.With("command", "gladius-be")

	prefix, err := session.InstallPrefix(cfg.InstallPrefix)
	if err != nil {
		return err
	}
	agentConfig := backend.Config{
		Plugins: pluginmgr.NewFromEnvironment(prefix, logger),
		Logger:  logger,
	}
	if f.sessionKey != "" {
		agentConfig.SessionKey = f.sessionKey
		agentConfig.UID = f.uid
		agentConfig.HandOffDir = cfg.Session.HandOffDir
		if f.handOffDir != "" {
			agentConfig.HandOffDir = f.handOffDir
		}
	} else {
		info, err := f.leafInfo()
		if err != nil {
			return err
		}
		agentConfig.LeafInfo = info
	}

	agent, err := backend.New(agentConfig)
	if err != nil {
		return err
	}
	return agent.Run(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case path != "":
		cfg, err = config.LoadFile(path)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, fault.New(fault.Configuration, "load config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fault.New(fault.Configuration, "load config", err)
	}
	return cfg, nil
}
