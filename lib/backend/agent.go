// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lanl/gladius-sub000/lib/fault"
	"github.com/lanl/gladius-sub000/lib/leafinfo"
	"github.com/lanl/gladius-sub000/lib/overlay"
	"github.com/lanl/gladius-sub000/lib/pluginabi"
	"github.com/lanl/gladius-sub000/lib/pluginmgr"
	"github.com/lanl/gladius-sub000/lib/proctab"
	"github.com/lanl/gladius-sub000/lib/protocol"
	"github.com/lanl/gladius-sub000/lib/session"
	"github.com/lanl/gladius-sub000/transport"
)

// ErrSessionShutdown is returned when the front end ends the session
// before the agent reached its plugin.
var ErrSessionShutdown = errors.New("front end shut the session down")

// Config tells an agent where to find its connection info and its
// plugins. Exactly one of LeafInfo and SessionKey must be set.
type Config struct {
	// LeafInfo is connection info supplied directly, for example from
	// command-line flags.
	LeafInfo *leafinfo.Info

	// SessionKey and UID name the hand-off file the front end wrote,
	// in HandOffDir (default leafinfo.Dir()). UID is the leaf rank.
	SessionKey string
	UID        int
	HandOffDir string

	Plugins *pluginmgr.Manager

	// Dialer defaults to TCP.
	Dialer transport.Dialer

	Metrics prometheus.Registerer

	// OnTransition, when set, is called on the agent's goroutine after
	// every state change.
	OnTransition func(from, to State)

	Logger *slog.Logger
}

// Agent is the back-end half of a session on one host. It joins the
// overlay at its leaf, answers the front end's handshake, loads the
// plugin the front end names, and runs it against the local part of
// the job.
type Agent struct {
	config Config
	logger *slog.Logger

	mu    sync.Mutex
	state State
}

// New checks config and returns an agent in StateInit.
func New(config Config) (*Agent, error) {
	const op = "configure back end"
	if (config.LeafInfo == nil) == (config.SessionKey == "") {
		return nil, fault.Newf(fault.Configuration, op, "need either connection info or a session key, not both or neither")
	}
	if config.SessionKey != "" {
		if err := session.ValidateKey(config.SessionKey); err != nil {
			return nil, err
		}
	}
	if config.Plugins == nil {
		return nil, fault.Newf(fault.Configuration, op, "no plugin manager")
	}
	if config.HandOffDir == "" {
		config.HandOffDir = leafinfo.Dir()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Agent{config: config, logger: config.Logger.With("component", "backend")}, nil
}

// State returns the current state. Safe to call from any goroutine.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) transition(to State) {
	a.mu.Lock()
	from := a.state
	a.state = to
	a.mu.Unlock()
	a.logger.Debug("back end state changed", "from", from, "to", to)
	if a.config.OnTransition != nil {
		a.config.OnTransition(from, to)
	}
}

// Run executes the agent's side of the session and returns when the
// plugin returns or a step fails. The overlay link and the plugin are
// closed before Run returns, and the state is then StateDone.
func (a *Agent) Run(ctx context.Context) error {
	defer a.transition(StateDone)

	info, err := a.resolve()
	if err != nil {
		return err
	}
	a.logger = a.logger.With("rank", info.Rank, "host", info.HostName)
	a.transition(StateConnectionInfoResolved)

	backEnd, err := overlay.Join(ctx, overlay.JoinOptions{
		ParentHost: info.ParentHostName,
		ParentPort: int(info.ParentPort),
		ParentRank: overlay.Rank(info.ParentRank),
		Rank:       overlay.Rank(info.Rank),
		Host:       info.HostName,
		Dialer:     a.config.Dialer,
		Metrics:    a.config.Metrics,
		Logger:     a.config.Logger,
	})
	if err != nil {
		return err
	}
	defer backEnd.Close()
	a.transition(StateNetworkJoined)

	a.transition(StateHandshaking)
	stream, err := a.handshake(ctx, backEnd)
	if err != nil {
		return err
	}
	identity, err := a.receiveIdentity(ctx, stream)
	if err != nil {
		return err
	}

	handle, err := a.loadPlugin(identity)
	if err != nil {
		a.report(stream, info.HostName, err)
		return err
	}
	defer handle.Close()
	plugin, err := handle.Instance()
	if err != nil {
		a.report(stream, info.HostName, err)
		return err
	}
	a.transition(StatePluginLoaded)
	if err := a.report(stream, info.HostName, nil); err != nil {
		return err
	}

	a.transition(StatePluginRunning)
	table := proctab.NewTable(0)
	if identity.ProcessTable != nil {
		table = identity.ProcessTable.Subset(info.HostName)
	}
	a.logger.Info("starting back-end plugin", "plugin", handle.Info.Name, "targets", table.Len())
	err = plugin.PluginMain(ctx, pluginabi.Args{
		HomeDirectory:   handle.Directory,
		ApplicationArgs: identity.ApplicationArgs,
		ProcessTable:    table,
		ProtocolStream:  stream,
		BackEnd:         backEnd,
		Logger:          a.config.Logger.With("plugin", handle.Info.Name, "role", pluginabi.BackEnd.String(), "rank", info.Rank),
	})
	if err != nil {
		return fault.New(fault.PluginRuntime, "run back-end plugin "+handle.Info.Name, err)
	}
	a.logger.Info("back-end plugin finished")
	return nil
}

// resolve returns the connection info: as supplied, or consumed from
// this agent's hand-off file.
func (a *Agent) resolve() (leafinfo.Info, error) {
	if a.config.LeafInfo != nil {
		return *a.config.LeafInfo, nil
	}
	path := leafinfo.Path(a.config.HandOffDir, a.config.SessionKey, a.config.UID)
	info, err := leafinfo.Consume(path)
	if err != nil {
		return leafinfo.Info{}, err
	}
	a.logger.Debug("connection info read", "path", path, "parent", info.ParentHostName, "parent_port", info.ParentPort)
	return info, nil
}

// handshake answers the front end's ping on whatever stream it arrives.
// That stream is the protocol stream for the rest of the session.
func (a *Agent) handshake(ctx context.Context, backEnd *overlay.BackEnd) (*overlay.Stream, error) {
	const op = "answer handshake"
	packet, stream, err := backEnd.Recv(ctx)
	if err != nil {
		return nil, fault.Newf(fault.Handshake, op, "waiting for %s: %w", protocol.InitHandshake, err)
	}
	if packet.Tag != protocol.InitHandshake {
		return nil, fault.Newf(fault.Handshake, op, "%w: first packet has tag %s, expected %s",
			protocol.ErrHandshakeFailed, packet.Tag, protocol.InitHandshake)
	}
	var ping protocol.Ping
	if err := packet.Unpack(&ping); err != nil {
		return nil, fault.Newf(fault.Handshake, op, "%w: %w", protocol.ErrHandshakeFailed, err)
	}
	if err := stream.Send(protocol.InitHandshake, protocol.Pong(ping)); err != nil {
		return nil, fault.New(fault.Handshake, op, err)
	}
	if err := stream.Flush(); err != nil {
		return nil, fault.New(fault.Handshake, op, err)
	}
	return stream, nil
}

func (a *Agent) receiveIdentity(ctx context.Context, stream *overlay.Stream) (protocol.PluginName, error) {
	const op = "receive plugin identity"
	packet, err := stream.Recv(ctx)
	if err != nil {
		return protocol.PluginName{}, fault.Newf(fault.Handshake, op, "waiting for %s: %w", protocol.PluginNameInfo, err)
	}
	switch packet.Tag {
	case protocol.PluginNameInfo:
	case protocol.Shutdown:
		return protocol.PluginName{}, fault.New(fault.Handshake, op, ErrSessionShutdown)
	default:
		return protocol.PluginName{}, fault.Newf(fault.Handshake, op, "%w: got %s, expected %s",
			protocol.ErrHandshakeFailed, packet.Tag, protocol.PluginNameInfo)
	}
	var identity protocol.PluginName
	if err := packet.Unpack(&identity); err != nil {
		return protocol.PluginName{}, fault.Newf(fault.Handshake, op, "%w: %w", protocol.ErrHandshakeFailed, err)
	}
	return identity, nil
}

// loadPlugin loads the back-end half of the named pack from this
// host's search path. A digest differing from the front end's copy is
// worth a warning, not a failure: the pack may have been rebuilt from
// the same source.
func (a *Agent) loadPlugin(identity protocol.PluginName) (*pluginmgr.Handle, error) {
	pack, err := a.config.Plugins.Find(identity.Name)
	if err != nil {
		return nil, err
	}
	if pack.Path != identity.Path {
		a.logger.Debug("plugin pack found at a different path than on the front end", "pack", identity.Name,
			"path", pack.Path, "front_end_path", identity.Path)
	}
	handle, err := pack.Load(pluginabi.BackEnd)
	if err != nil {
		return nil, err
	}
	if identity.BackEndDigest != "" && handle.Digest.String() != identity.BackEndDigest {
		a.logger.Warn("back-end plugin differs from the front end's copy", "pack", identity.Name,
			"digest", handle.Digest.String(), "front_end_digest", identity.BackEndDigest)
	}
	return handle, nil
}

// report sends BackEndReady: ready when loadErr is nil, otherwise the
// failure so the front end can name this host.
func (a *Agent) report(stream *overlay.Stream, host string, loadErr error) error {
	const op = "report plugin ready"
	ready := protocol.BackEndReady{Ready: loadErr == nil, Host: host}
	if loadErr != nil {
		ready.Error = loadErr.Error()
	}
	if err := stream.Send(protocol.BackEndPluginsReady, ready); err != nil {
		return fault.New(fault.Handshake, op, err)
	}
	if err := stream.Flush(); err != nil {
		return fault.New(fault.Handshake, op, fmt.Errorf("flushing: %w", err))
	}
	return nil
}
