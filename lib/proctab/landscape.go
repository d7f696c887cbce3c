// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package proctab

// Landscape maps host names to the number of target processes running
// on each host. Hosts are unique. Iteration order is insertion order,
// which is the order topology generation assigns ranks in.
//
// A Landscape is built once by whoever learned the job layout and is
// read-only afterwards; it has no removal or update operation.
type Landscape struct {
	hosts  []string
	counts map[string]int
	total  int
}

// NewLandscape returns an empty landscape.
func NewLandscape() *Landscape {
	return &Landscape{counts: make(map[string]int)}
}

// Insert records that host runs count target processes. It returns
// false, leaving the landscape unchanged, when host is already present
// or count is not positive. An existing entry is never overwritten.
func (l *Landscape) Insert(host string, count int) bool {
	if host == "" || count <= 0 {
		return false
	}
	if _, exists := l.counts[host]; exists {
		return false
	}
	l.hosts = append(l.hosts, host)
	l.counts[host] = count
	l.total += count
	return true
}

// NumHosts returns the number of distinct hosts.
func (l *Landscape) NumHosts() int { return len(l.hosts) }

// NumProcesses returns the sum of the counts of every accepted insert.
func (l *Landscape) NumProcesses() int { return l.total }

// Processes returns the process count for host, or 0 when host is
// not in the landscape.
func (l *Landscape) Processes(host string) int { return l.counts[host] }

// Hosts returns the host names in insertion order. The returned slice
// is a copy.
func (l *Landscape) Hosts() []string {
	hosts := make([]string, len(l.hosts))
	copy(hosts, l.hosts)
	return hosts
}

// Each calls fn for every host in insertion order.
func (l *Landscape) Each(fn func(host string, count int)) {
	for _, host := range l.hosts {
		fn(host, l.counts[host])
	}
}
