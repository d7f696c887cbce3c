// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/lanl/gladius-sub000/cmd/gladius/cli"
	"github.com/lanl/gladius-sub000/lib/config"
	"github.com/lanl/gladius-sub000/lib/fault"
	"github.com/lanl/gladius-sub000/lib/frontend"
	"github.com/lanl/gladius-sub000/lib/overlay"
	"github.com/lanl/gladius-sub000/lib/pluginmgr"
	"github.com/lanl/gladius-sub000/lib/session"
)

type runFlags struct {
	common   commonFlags
	topology topologyFlags

	plugin         string
	sessionKey     string
	connectTimeout time.Duration
	metricsListen  string
}

func runCommand() *cli.Command {
	var flags runFlags
	return &cli.Command{
		Name:    "run",
		Summary: "Run a plugin pack against a job",
		Description: "Build the overlay network over the job's hosts, wait for a gladius-be\n" +
			"agent on every host, and run the plugin pack. Arguments after '--' are\n" +
			"passed to both halves of the plugin.",
		Usage: "gladius run --process-table FILE --plugin NAME [flags] [-- plugin-args...]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flags.common.register(flagSet)
			flags.topology.register(flagSet)
			flagSet.StringVar(&flags.plugin, "plugin", "", "plugin pack to run (required)")
			flagSet.StringVar(&flags.sessionKey, "session-key", "", "key naming the hand-off files (default: a new random key)")
			flagSet.DurationVar(&flags.connectTimeout, "connect-timeout", 0, "how long to wait for back ends (overrides network.connect_timeout)")
			flagSet.StringVar(&flags.metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Echo a message from every host of a job",
				Command:     "gladius run --process-table job.yaml --plugin echo -- hello",
			},
		},
		Run: func(ctx context.Context, args []string) error {
			return runSession(ctx, &flags, args)
		},
	}
}

func runSession(ctx context.Context, flags *runFlags, applicationArgs []string) error {
	if flags.plugin == "" {
		return fault.Newf(fault.Configuration, "run", "--plugin is required")
	}
	cfg, err := flags.common.loadConfig()
	if err != nil {
		return err
	}
	logger, err := cli.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fault.New(fault.Configuration, "run", err)
	}
	logger = logger.With("command", "run")

	table, err := flags.topology.readProcessTable(ctx)
	if err != nil {
		return err
	}
	fixed, err := flags.topology.readTopologyFile()
	if err != nil {
		return err
	}
	topologyOptions, err := flags.topology.options(cfg)
	if err != nil {
		return err
	}

	prefix, err := session.InstallPrefix(cfg.InstallPrefix)
	if err != nil {
		return err
	}
	connectTimeout, _ := cfg.ConnectTimeout()
	if flags.connectTimeout > 0 {
		connectTimeout = flags.connectTimeout
	}
	pollInterval, _ := cfg.PollInterval()

	sessionKey := ""
	if cfg.Session.WriteHandOff {
		sessionKey = flags.sessionKey
		if sessionKey == "" {
			sessionKey = session.NewKey()
		}
		logger.Info("session started", "session_key", sessionKey,
			"agent_command", fmt.Sprintf("gladius-be --session-key %s --uid <leaf rank>", sessionKey))
	}

	registry := prometheus.NewRegistry()
	if flags.metricsListen != "" {
		stop, err := serveMetrics(flags.metricsListen, registry, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	launcher, err := newLauncher(cfg, registry, logger)
	if err != nil {
		return err
	}
	controller, err := frontend.New(frontend.Config{
		ProcessTable:    table,
		Topology:        fixed,
		TopologyOptions: topologyOptions,
		Network: overlay.Options{
			ListenAddress:  cfg.Network.ListenAddress,
			Launcher:       launcher,
			ThreadsPerLeaf: overlay.ThreadsPerLeaf(cfg.Network.ThreadsPerLeaf),
			Metrics:        registry,
			Logger:         logger,
		},
		UpstreamFilter:  cfg.Network.UpstreamFilter,
		PluginName:      flags.plugin,
		Plugins:         pluginmgr.NewFromEnvironment(prefix, logger),
		ApplicationArgs: applicationArgs,
		SessionKey:      sessionKey,
		HandOffDir:      cfg.Session.HandOffDir,
		ConnectTimeout:  connectTimeout,
		PollInterval:    pollInterval,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	return controller.Run(ctx)
}

// newLauncher returns the launcher network.launcher selects.
func newLauncher(cfg *config.Config, registry prometheus.Registerer, logger *slog.Logger) (overlay.NodeLauncher, error) {
	switch cfg.Network.Launcher {
	case "exec":
		return &overlay.ExecLauncher{
			Template:  cfg.Network.LaunchCommand,
			Binary:    cfg.Network.CommNodeBinary,
			ExtraArgs: []string{"--log-level", cfg.Log.Level},
			Logger:    logger,
		}, nil
	case "local":
		return &overlay.LocalLauncher{Metrics: registry, Logger: logger}, nil
	default:
		return nil, fault.Newf(fault.Configuration, "choose launcher", "unknown launcher %q", cfg.Network.Launcher)
	}
}
