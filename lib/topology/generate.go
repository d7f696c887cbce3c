// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"fmt"

	"github.com/lanl/gladius-sub000/lib/proctab"
)

// Style selects the tree shape Generate produces.
type Style string

const (
	// Flat is one root plus one leaf per occupied host, depth 1.
	Flat Style = "flat"

	// Tree inserts internal communication nodes so that no node has
	// more than Fanout children.
	Tree Style = "tree"
)

// DefaultFanout is the Tree fanout when Options.Fanout is zero.
const DefaultFanout = 32

// Options controls Generate.
type Options struct {
	Style Style

	// RootHost is the host of the front end, where the root runs.
	RootHost string

	// Fanout bounds the children per node for Style Tree.
	Fanout int
}

// ParseStyle converts a configuration string to a Style.
func ParseStyle(value string) (Style, error) {
	switch Style(value) {
	case Flat, Tree:
		return Style(value), nil
	case "":
		return Flat, nil
	default:
		return "", fmt.Errorf("unknown topology style %q (want %q or %q)", value, Flat, Tree)
	}
}

// Generate turns a landscape into an overlay tree. Ranks are assigned
// breadth-first from the root, and within a level in landscape host
// order, so the same landscape always yields the same ranks.
//
// An empty landscape yields a root-only topology. That is returned
// without error; callers must run Validate before building a network.
func Generate(landscape *proctab.Landscape, options Options) (*Topology, error) {
	if options.RootHost == "" {
		return nil, fmt.Errorf("topology: root host is required")
	}
	hosts := landscape.Hosts()

	switch options.Style {
	case Flat, "":
		return generateFlat(options.RootHost, hosts)
	case Tree:
		fanout := options.Fanout
		if fanout == 0 {
			fanout = DefaultFanout
		}
		if fanout < 2 {
			return nil, fmt.Errorf("topology: fanout %d is below 2", fanout)
		}
		return generateTree(options.RootHost, hosts, fanout)
	default:
		return nil, fmt.Errorf("topology: unknown style %q", options.Style)
	}
}

func generateFlat(rootHost string, hosts []string) (*Topology, error) {
	nodes := make([]Node, 0, len(hosts)+1)
	nodes = append(nodes, Node{Rank: 0, Host: rootHost, Parent: NoParent, Role: RoleRoot})
	for _, host := range hosts {
		nodes = append(nodes, Node{Rank: Rank(len(nodes)), Host: host, Parent: 0, Role: RoleLeaf})
	}
	return New(nodes)
}

// sketch is a node before ranks are known.
type sketch struct {
	host     string
	role     Role
	children []*sketch
}

func generateTree(rootHost string, hosts []string, fanout int) (*Topology, error) {
	level := make([]*sketch, len(hosts))
	for index, host := range hosts {
		level[index] = &sketch{host: host, role: RoleLeaf}
	}
	// Collapse levels bottom-up until the root can adopt what is left.
	for len(level) > fanout {
		var parents []*sketch
		for start := 0; start < len(level); start += fanout {
			end := min(start+fanout, len(level))
			group := level[start:end]
			parents = append(parents, &sketch{
				host:     group[0].host,
				role:     RoleInternal,
				children: group,
			})
		}
		level = parents
	}
	root := &sketch{host: rootHost, role: RoleRoot, children: level}

	nodes := []Node{{Rank: 0, Host: rootHost, Parent: NoParent, Role: RoleRoot}}
	type queued struct {
		node *sketch
		rank Rank
	}
	queue := []queued{{node: root, rank: 0}}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range current.node.children {
			rank := Rank(len(nodes))
			nodes = append(nodes, Node{Rank: rank, Host: child.host, Parent: current.rank, Role: child.role})
			queue = append(queue, queued{node: child, rank: rank})
		}
	}
	return New(nodes)
}
