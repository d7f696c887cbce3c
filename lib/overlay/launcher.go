// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NodeSpec describes an internal node for a launcher to start.
type NodeSpec struct {
	Rank Rank
	Host string

	// ParentHost and ParentPort locate the parent, already resolved to
	// something the node can dial.
	ParentHost string
	ParentPort int
	ParentRank Rank

	// Filters is the front end's filter set. In-process launchers share
	// it; remote launchers cannot.
	Filters *FilterSet
}

// ParentAddress returns the parent's host:port.
func (s NodeSpec) ParentAddress() string { return joinAddress(s.ParentHost, s.ParentPort) }

// LaunchedNode is a running internal node.
type LaunchedNode interface {
	// Done is closed when the node has exited.
	Done() <-chan struct{}

	// Stop ends the node and waits for it to exit.
	Stop() error
}

// NodeLauncher starts internal communication nodes. Launch returns once
// the node is running; the node reports readiness to the root through
// the overlay itself.
type NodeLauncher interface {
	Launch(ctx context.Context, spec NodeSpec) (LaunchedNode, error)
}

// LocalLauncher runs internal nodes in this process, listening on
// ListenHost. Used by tests and single-machine sessions.
type LocalLauncher struct {
	// ListenHost defaults to 127.0.0.1.
	ListenHost string

	Metrics prometheus.Registerer
	Logger  *slog.Logger
}

// Launch starts a CommNode for spec.
func (l *LocalLauncher) Launch(ctx context.Context, spec NodeSpec) (LaunchedNode, error) {
	listenHost := l.ListenHost
	if listenHost == "" {
		listenHost = "127.0.0.1"
	}
	return StartCommNode(ctx, CommNodeOptions{
		Rank:          spec.Rank,
		Host:          spec.Host,
		ListenAddress: joinAddress(listenHost, 0),
		ParentAddress: spec.ParentAddress(),
		ParentRank:    spec.ParentRank,
		Filters:       spec.Filters,
		Metrics:       l.Metrics,
		Logger:        l.Logger,
	})
}

// ExecLauncher runs the gladius-commnode binary on the node's host
// through a command template, typically a remote shell. Template
// arguments may contain {host} and {rank}; the node's own flags are
// appended after Binary.
//
//	&ExecLauncher{Template: []string{"ssh", "-oBatchMode=yes", "{host}"}, Binary: "/opt/gladius/bin/gladius-commnode"}
type ExecLauncher struct {
	Template []string
	Binary   string

	// ExtraArgs are passed to the node after the generated flags, for
	// example --filter-object paths.
	ExtraArgs []string

	// StopTimeout bounds how long Stop waits for a clean exit before
	// killing the process. Defaults to five seconds.
	StopTimeout time.Duration

	Logger *slog.Logger
}

// Command returns the argv used to start spec's node.
func (l *ExecLauncher) Command(spec NodeSpec) []string {
	replacer := strings.NewReplacer("{host}", spec.Host, "{rank}", strconv.Itoa(int(spec.Rank)))
	argv := make([]string, 0, len(l.Template)+8+len(l.ExtraArgs))
	for _, argument := range l.Template {
		argv = append(argv, replacer.Replace(argument))
	}
	binary := l.Binary
	if binary == "" {
		binary = "gladius-commnode"
	}
	argv = append(argv, binary,
		"--rank", strconv.Itoa(int(spec.Rank)),
		"--host", spec.Host,
		"--parent", spec.ParentAddress(),
		"--parent-rank", strconv.Itoa(int(spec.ParentRank)),
	)
	return append(argv, l.ExtraArgs...)
}

// Launch starts the node process.
func (l *ExecLauncher) Launch(ctx context.Context, spec NodeSpec) (LaunchedNode, error) {
	argv := l.Command(spec)
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	command := exec.Command(argv[0], argv[1:]...)
	command.Stdout = os.Stderr
	command.Stderr = os.Stderr
	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", argv[0], err)
	}
	logger.Debug("launched communication node", "rank", spec.Rank, "host", spec.Host, "pid", command.Process.Pid)

	stopTimeout := l.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = 5 * time.Second
	}
	process := &launchedProcess{command: command, stopTimeout: stopTimeout, done: make(chan struct{})}
	go func() {
		process.err = command.Wait()
		close(process.done)
	}()
	return process, nil
}

// launchedProcess is a node started by ExecLauncher.
type launchedProcess struct {
	command     *exec.Cmd
	stopTimeout time.Duration

	err  error
	done chan struct{}

	stopOnce sync.Once
}

func (p *launchedProcess) Done() <-chan struct{} { return p.done }

// Stop waits for the node to exit after the root's shutdown frame and
// kills it when it does not.
func (p *launchedProcess) Stop() error {
	p.stopOnce.Do(func() {
		select {
		case <-p.done:
		case <-time.After(p.stopTimeout):
			p.command.Process.Kill()
			<-p.done
		}
	})
	return nil
}
