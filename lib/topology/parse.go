// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Parse reads the textual description produced by Topology.String.
// Each statement names a parent and its children and ends with ";":
//
//	fe-host:0 => nodeA:1 nodeB:2 ;
//
// Statements may span lines; "#" starts a comment. A node that never
// appears on the left of "=>" is a leaf.
func Parse(r io.Reader) (*Topology, error) {
	var tokens []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line, _, _ := strings.Cut(scanner.Text(), "#")
		line = strings.ReplaceAll(line, ";", " ; ")
		tokens = append(tokens, strings.Fields(line)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading topology: %w", err)
	}

	hosts := make(map[Rank]string)
	parents := make(map[Rank]Rank)
	isParent := make(map[Rank]bool)

	record := func(token string) (Rank, error) {
		separator := strings.LastIndex(token, ":")
		if separator <= 0 || separator == len(token)-1 {
			return 0, fmt.Errorf("topology: %q is not host:rank", token)
		}
		value, err := strconv.ParseInt(token[separator+1:], 10, 32)
		if err != nil || value < 0 {
			return 0, fmt.Errorf("topology: %q has an invalid rank", token)
		}
		rank, host := Rank(value), token[:separator]
		if existing, seen := hosts[rank]; seen && existing != host {
			return 0, fmt.Errorf("topology: rank %d named as both %s and %s", rank, existing, host)
		}
		hosts[rank] = host
		return rank, nil
	}

	for position := 0; position < len(tokens); {
		if position+1 >= len(tokens) || tokens[position+1] != "=>" {
			return nil, fmt.Errorf("topology: expected \"host:rank =>\" at %q", tokens[position])
		}
		parent, err := record(tokens[position])
		if err != nil {
			return nil, err
		}
		isParent[parent] = true
		position += 2
		children := 0
		for ; position < len(tokens) && tokens[position] != ";"; position++ {
			child, err := record(tokens[position])
			if err != nil {
				return nil, err
			}
			if previous, seen := parents[child]; seen {
				return nil, fmt.Errorf("topology: rank %d has two parents (%d and %d)", child, previous, parent)
			}
			parents[child] = parent
			children++
		}
		if position >= len(tokens) {
			return nil, fmt.Errorf("topology: statement for rank %d is missing \";\"", parent)
		}
		if children == 0 {
			return nil, fmt.Errorf("topology: rank %d lists no children", parent)
		}
		position++
	}

	if len(hosts) == 0 {
		return nil, fmt.Errorf("%w: empty description", ErrInvalidTopology)
	}
	ranks := make([]Rank, 0, len(hosts))
	for rank := range hosts {
		ranks = append(ranks, rank)
	}
	sort.Slice(ranks, func(i, j int) bool { return ranks[i] < ranks[j] })

	nodes := make([]Node, 0, len(ranks))
	for _, rank := range ranks {
		node := Node{Rank: rank, Host: hosts[rank], Parent: NoParent}
		parent, hasParent := parents[rank]
		switch {
		case !hasParent:
			node.Role = RoleRoot
		case isParent[rank]:
			node.Role = RoleInternal
			node.Parent = parent
		default:
			node.Role = RoleLeaf
			node.Parent = parent
		}
		nodes = append(nodes, node)
	}
	return New(nodes)
}
