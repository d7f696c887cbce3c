// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/lanl/gladius-sub000/cmd/gladius/cli"
	"github.com/lanl/gladius-sub000/lib/pluginmgr"
	"github.com/lanl/gladius-sub000/lib/session"
)

func packsCommand() *cli.Command {
	var common commonFlags
	return &cli.Command{
		Name:    "packs",
		Summary: "List plugin packs on the search path",
		Description: "List every plugin pack directory on the search path (${prefix}/lib, then\n" +
			"$" + pluginmgr.PathVariable + ") with whether it is complete. A pack hidden by an\n" +
			"earlier directory with the same name is marked shadowed.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("packs", pflag.ContinueOnError)
			common.register(flagSet)
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			cfg, err := common.loadConfig()
			if err != nil {
				return err
			}
			prefix, err := session.InstallPrefix(cfg.InstallPrefix)
			if err != nil {
				return err
			}
			// Missing objects are reported in the table, not the log.
			quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
			manager := pluginmgr.NewFromEnvironment(prefix, quiet)
			return printPacks(os.Stdout, manager, args)
		},
	}
}

// printPacks writes one row per pack, limited to names when any are
// given.
func printPacks(w io.Writer, manager *pluginmgr.Manager, names []string) error {
	fmt.Fprintf(w, "search path: %s\n\n", strings.Join(manager.SearchPath(), ":"))
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tPATH")
	for _, listing := range manager.List() {
		if len(names) > 0 && !slices.Contains(names, listing.Name) {
			continue
		}
		status := "ok"
		switch {
		case listing.Shadowed:
			status = "shadowed"
		case listing.Err != nil:
			status = "incomplete"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", listing.Name, status, listing.Path)
	}
	return tw.Flush()
}
