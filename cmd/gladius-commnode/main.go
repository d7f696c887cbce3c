// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Gladius-commnode is an internal overlay node of a tree topology. The
// front end's exec launcher starts one per internal rank:
//
//	gladius-commnode --rank 3 --host nodeC --parent fe-host:7100 --parent-rank 0 \
//	    --filter-object /opt/gladius/lib/gladius-mypack/filters/max.so
//
// The node attaches to its parent, accepts its children, and exits
// when the front end shuts the overlay down.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/lanl/gladius-sub000/cmd/gladius/cli"
	"github.com/lanl/gladius-sub000/lib/fault"
	"github.com/lanl/gladius-sub000/lib/overlay"
	"github.com/lanl/gladius-sub000/lib/pluginmgr"
	"github.com/lanl/gladius-sub000/lib/process"
	"github.com/lanl/gladius-sub000/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

type flags struct {
	rank          int
	host          string
	parent        string
	parentRank    int
	listen        string
	filterObjects []string
	logLevel      string
	logFormat     string
	showVersion   bool
}

func parseFlags(args []string) (*flags, error) {
	var f flags
	flagSet := pflag.NewFlagSet("gladius-commnode", pflag.ContinueOnError)
	flagSet.IntVar(&f.rank, "rank", -1, "this node's rank")
	flagSet.StringVar(&f.host, "host", "", "this node's host name (default: the hostname)")
	flagSet.StringVar(&f.parent, "parent", "", "parent node address host:port")
	flagSet.IntVar(&f.parentRank, "parent-rank", 0, "rank of the parent node")
	flagSet.StringVar(&f.listen, "listen", ":0", "address to accept children on")
	flagSet.StringArrayVar(&f.filterObjects, "filter-object", nil, "filter plugin object to load (repeatable)")
	flagSet.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.StringVar(&f.logFormat, "log-format", "auto", "log format: auto, text, json")
	flagSet.BoolVar(&f.showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return nil, fault.New(fault.Configuration, "parse flags", err)
	}
	if f.showVersion {
		return &f, nil
	}
	if f.rank <= 0 {
		return nil, fault.Newf(fault.Configuration, "parse flags", "--rank must be a positive internal rank")
	}
	if f.parent == "" {
		return nil, fault.Newf(fault.Configuration, "parse flags", "--parent is required")
	}
	if f.host == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fault.New(fault.Configuration, "determine host name", err).WithHint("pass --host")
		}
		f.host = host
	}
	return &f, nil
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

	logger, err := cli.NewLogger(f.logLevel, f.logFormat)
	if err != nil {
		return fault.New(fault.Configuration, "configure logging", err)
	}
	logger = logger.With("command", "gladius-commnode")

	filters := overlay.NewFilterSet()
	if len(f.filterObjects) > 0 {
		manager := pluginmgr.New(pluginmgr.Options{Logger: logger})
		names, err := manager.LoadFilterObjects(f.filterObjects, filters)
		if err != nil {
			return err
		}
		logger.Debug("loaded filters", "filters", names)
	}

	return overlay.RunCommNode(ctx, overlay.CommNodeOptions{
		Rank:          overlay.Rank(f.rank),
		Host:          f.host,
		ListenAddress: f.listen,
		ParentAddress: f.parent,
		ParentRank:    overlay.Rank(f.parentRank),
		Filters:       filters,
		Logger:        logger,
	})
}
