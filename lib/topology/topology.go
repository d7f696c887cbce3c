// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Rank identifies a node in the overlay. Ranks are assigned in creation
// order starting at 0; the root is always rank 0.
type Rank int32

// NoParent is the Parent value of the root node.
const NoParent Rank = -1

// Role is a node's position in the tree.
type Role int

const (
	// RoleRoot is the front end's own overlay node.
	RoleRoot Role = iota
	// RoleInternal is a communication node that only forwards and
	// reduces traffic.
	RoleInternal
	// RoleLeaf is the attach point of a back-end agent.
	RoleLeaf
)

func (r Role) String() string {
	switch r {
	case RoleRoot:
		return "root"
	case RoleInternal:
		return "internal"
	case RoleLeaf:
		return "leaf"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ErrInvalidTopology is returned by Validate for a tree that cannot be
// used to build a network: most often an empty landscape, which leaves
// a root with nothing to reach.
var ErrInvalidTopology = errors.New("invalid topology")

// Node is one vertex of the overlay tree.
type Node struct {
	Rank   Rank
	Host   string
	Parent Rank
	Role   Role

	// Port is the TCP port the node listens on for its children. Zero
	// until the network has been built; leaves never listen.
	Port int
}

// Topology is an overlay tree. Nodes are stored in rank order, so
// Nodes[r].Rank == r. The shape is immutable; ports are filled in by
// the network while readers may be active, so reads and SetPort are
// safe for concurrent use.
type Topology struct {
	mu       sync.RWMutex
	nodes    []Node
	children map[Rank][]Rank
}

// New builds a topology from nodes listed in rank order and checks the
// structural invariants: ranks 0..n-1, a single root at rank 0, and a
// parent with a smaller rank for every other node.
func New(nodes []Node) (*Topology, error) {
	topology := &Topology{
		nodes:    make([]Node, len(nodes)),
		children: make(map[Rank][]Rank),
	}
	copy(topology.nodes, nodes)
	for index, node := range topology.nodes {
		if node.Rank != Rank(index) {
			return nil, fmt.Errorf("%w: node %d has rank %d", ErrInvalidTopology, index, node.Rank)
		}
		if node.Host == "" {
			return nil, fmt.Errorf("%w: node %d has no host", ErrInvalidTopology, index)
		}
		if index == 0 {
			if node.Parent != NoParent || node.Role != RoleRoot {
				return nil, fmt.Errorf("%w: rank 0 must be the root", ErrInvalidTopology)
			}
			continue
		}
		if node.Role == RoleRoot {
			return nil, fmt.Errorf("%w: second root at rank %d", ErrInvalidTopology, index)
		}
		if node.Parent < 0 || node.Parent >= node.Rank {
			return nil, fmt.Errorf("%w: rank %d has parent %d", ErrInvalidTopology, index, node.Parent)
		}
		if topology.nodes[node.Parent].Role == RoleLeaf {
			return nil, fmt.Errorf("%w: rank %d has leaf %d as parent", ErrInvalidTopology, index, node.Parent)
		}
		topology.children[node.Parent] = append(topology.children[node.Parent], node.Rank)
	}
	if len(topology.nodes) == 0 {
		return nil, fmt.Errorf("%w: no root", ErrInvalidTopology)
	}
	for _, node := range topology.nodes {
		if node.Role == RoleInternal && len(topology.children[node.Rank]) == 0 {
			return nil, fmt.Errorf("%w: internal node %d has no children", ErrInvalidTopology, node.Rank)
		}
	}
	return topology, nil
}

// Validate reports whether the topology can back a session: it must
// have at least one leaf.
func (t *Topology) Validate() error {
	if len(t.Leaves()) == 0 {
		return fmt.Errorf("%w: no leaves (empty process landscape?)", ErrInvalidTopology)
	}
	return nil
}

// Len returns the number of nodes including the root.
func (t *Topology) Len() int { return len(t.nodes) }

// Root returns the root node.
func (t *Topology) Root() Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[0]
}

// Node returns the node with rank.
func (t *Topology) Node(rank Rank) (Node, bool) {
	if rank < 0 || int(rank) >= len(t.nodes) {
		return Node{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[rank], true
}

// Nodes returns a copy of every node in rank order.
func (t *Topology) Nodes() []Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	nodes := make([]Node, len(t.nodes))
	copy(nodes, t.nodes)
	return nodes
}

// Children returns the ranks whose parent is rank, in rank order.
func (t *Topology) Children(rank Rank) []Rank {
	children := t.children[rank]
	result := make([]Rank, len(children))
	copy(result, children)
	return result
}

// Leaves returns the leaf nodes in rank order.
func (t *Topology) Leaves() []Node { return t.withRole(RoleLeaf) }

// Internal returns the internal communication nodes in rank order.
func (t *Topology) Internal() []Node { return t.withRole(RoleInternal) }

func (t *Topology) withRole(role Role) []Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var nodes []Node
	for _, node := range t.nodes {
		if node.Role == role {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// SetPort records the listen port of a root or internal node once the
// network has started it.
func (t *Topology) SetPort(rank Rank, port int) error {
	if rank < 0 || int(rank) >= len(t.nodes) {
		return fmt.Errorf("no node with rank %d", rank)
	}
	if t.nodes[rank].Role == RoleLeaf {
		return fmt.Errorf("rank %d is a leaf and does not listen", rank)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[rank].Port = port
	return nil
}

// LeavesUnder returns the leaf ranks in the subtree rooted at rank.
func (t *Topology) LeavesUnder(rank Rank) []Rank {
	var leaves []Rank
	var walk func(Rank)
	walk = func(current Rank) {
		if t.nodes[current].Role == RoleLeaf {
			leaves = append(leaves, current)
			return
		}
		for _, child := range t.children[current] {
			walk(child)
		}
	}
	if _, ok := t.Node(rank); ok {
		walk(rank)
	}
	return leaves
}

// String renders the textual description, one line per parent:
//
//	fe-host:0 => nodeA:1 nodeB:2 ;
//
// Parse reads the same format back.
func (t *Topology) String() string {
	var builder strings.Builder
	for _, node := range t.nodes {
		children := t.children[node.Rank]
		if len(children) == 0 {
			continue
		}
		fmt.Fprintf(&builder, "%s:%d =>", node.Host, node.Rank)
		for _, child := range children {
			fmt.Fprintf(&builder, " %s:%d", t.nodes[child].Host, child)
		}
		builder.WriteString(" ;\n")
	}
	return builder.String()
}
