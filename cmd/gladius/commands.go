// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/lanl/gladius-sub000/cmd/gladius/cli"
	"github.com/lanl/gladius-sub000/lib/config"
	"github.com/lanl/gladius-sub000/lib/fault"
	"github.com/lanl/gladius-sub000/lib/proctab"
	"github.com/lanl/gladius-sub000/lib/topology"
	"github.com/lanl/gladius-sub000/lib/version"
)

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:        "gladius",
		Description: "Gladius attaches tool plugins to a running parallel job through a tree overlay network.",
		Subcommands: []*cli.Command{
			runCommand(),
			topologyCommand(),
			packsCommand(),
			versionCommand(),
		},
	}
}

// commonFlags are shared by every subcommand that reads the config.
type commonFlags struct {
	configPath string
	logLevel   string
}

func (f *commonFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "config file (default: $"+config.EnvironmentVariable+", then built-in defaults)")
	flagSet.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides log.level)")
}

// loadConfig reads the config named by --config or GLADIUS_CONFIG, or
// the defaults when neither is given, applies --log-level, and
// validates the result.
func (f *commonFlags) loadConfig() (*config.Config, error) {
	const op = "load config"
	var cfg *config.Config
	var err error
	switch {
	case f.configPath != "":
		cfg, err = config.LoadFile(f.configPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, fault.New(fault.Configuration, op, err)
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fault.New(fault.Configuration, op, err)
	}
	return cfg, nil
}

// topologyFlags choose or describe the overlay tree.
type topologyFlags struct {
	processTable string
	topologyFile string
	style        string
	fanout       int
	rootHost     string
}

func (f *topologyFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.processTable, "process-table", "", "YAML process table of the target job (required)")
	flagSet.StringVar(&f.topologyFile, "topology-file", "", "use this topology instead of generating one")
	flagSet.StringVar(&f.style, "style", "", "topology style: flat or tree (overrides network.topology)")
	flagSet.IntVar(&f.fanout, "fanout", 0, "children per node for tree topologies (overrides network.fanout)")
	flagSet.StringVar(&f.rootHost, "root-host", "", "host the front end's root node runs on (default: this host)")
}

func (f *topologyFlags) readProcessTable(ctx context.Context) (*proctab.Table, error) {
	if f.processTable == "" {
		return nil, fault.Newf(fault.Configuration, "read process table", "--process-table is required")
	}
	table, err := proctab.FileSource{Path: f.processTable}.ProcessTable(ctx, nil)
	if err != nil {
		return nil, fault.New(fault.Configuration, "read process table", err)
	}
	return table, nil
}

// options merges flags over the network config.
func (f *topologyFlags) options(cfg *config.Config) (topology.Options, error) {
	styleName := cfg.Network.Topology
	if f.style != "" {
		styleName = f.style
	}
	style, err := topology.ParseStyle(styleName)
	if err != nil {
		return topology.Options{}, fault.New(fault.Configuration, "choose topology", err)
	}
	fanout := cfg.Network.Fanout
	if f.fanout != 0 {
		fanout = f.fanout
	}
	rootHost := f.rootHost
	if rootHost == "" {
		rootHost, err = os.Hostname()
		if err != nil {
			return topology.Options{}, fault.New(fault.Configuration, "choose topology", err).
				WithHint("pass --root-host")
		}
	}
	return topology.Options{Style: style, RootHost: rootHost, Fanout: fanout}, nil
}

// readTopologyFile parses --topology-file, or returns nil when unset.
func (f *topologyFlags) readTopologyFile() (*topology.Topology, error) {
	if f.topologyFile == "" {
		return nil, nil
	}
	file, err := os.Open(f.topologyFile)
	if err != nil {
		return nil, fault.New(fault.Topology, "read topology file", err)
	}
	defer file.Close()
	topo, err := topology.Parse(file)
	if err != nil {
		return nil, fault.New(fault.Topology, "read topology file", fmt.Errorf("%s: %w", f.topologyFile, err))
	}
	return topo, nil
}

func topologyCommand() *cli.Command {
	var common commonFlags
	var flags topologyFlags
	return &cli.Command{
		Name:    "topology",
		Summary: "Print the overlay tree a run would build",
		Description: "Print the overlay tree for a job in the textual topology format.\n" +
			"The output can be edited and passed back with 'gladius run --topology-file'.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("topology", pflag.ContinueOnError)
			common.register(flagSet)
			flags.register(flagSet)
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Tree with at most 16 children per node", Command: "gladius topology --process-table job.yaml --style tree --fanout 16"},
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected arguments: %s", strings.Join(args, " "))
			}
			cfg, err := common.loadConfig()
			if err != nil {
				return err
			}
			topo, err := flags.readTopologyFile()
			if err != nil {
				return err
			}
			if topo == nil {
				table, err := flags.readProcessTable(ctx)
				if err != nil {
					return err
				}
				options, err := flags.options(cfg)
				if err != nil {
					return err
				}
				topo, err = topology.Generate(table.Landscape(), options)
				if err != nil {
					return fault.New(fault.Topology, "generate topology", err)
				}
			}
			if err := topo.Validate(); err != nil {
				return fault.New(fault.Topology, "generate topology", err)
			}
			fmt.Fprint(os.Stdout, topo.String())
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(context.Context, []string) error {
			fmt.Println(version.Full())
			return nil
		},
	}
}
