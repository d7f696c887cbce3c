// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package frontend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lanl/gladius-sub000/lib/clock"
	"github.com/lanl/gladius-sub000/lib/fault"
	"github.com/lanl/gladius-sub000/lib/leafinfo"
	"github.com/lanl/gladius-sub000/lib/overlay"
	"github.com/lanl/gladius-sub000/lib/pluginabi"
	"github.com/lanl/gladius-sub000/lib/pluginmgr"
	"github.com/lanl/gladius-sub000/lib/proctab"
	"github.com/lanl/gladius-sub000/lib/protocol"
	"github.com/lanl/gladius-sub000/lib/session"
	"github.com/lanl/gladius-sub000/lib/topology"
)

// DefaultPollInterval is how often the controller checks for back ends
// when Config.PollInterval is zero.
const DefaultPollInterval = 100 * time.Millisecond

// Config is everything a session needs. ProcessTable, PluginName, and
// Plugins are required.
type Config struct {
	// ProcessTable is the job the tool attaches to. Its landscape
	// decides the topology.
	ProcessTable *proctab.Table

	// Topology, when set, is used instead of generating one from the
	// process table, for example a tree read from a topology file.
	Topology *topology.Topology

	// TopologyOptions controls generation. RootHost is required unless
	// Topology is set.
	TopologyOptions topology.Options

	// Network is passed to overlay.Build. Filters defaults to the core
	// set; the plugin pack's filter objects are registered into it.
	Network overlay.Options

	// UpstreamFilter names the protocol stream's filter. Defaults to
	// overlay.FilterWaitForAll.
	UpstreamFilter string

	// PluginName is the pack to run.
	PluginName string
	Plugins    *pluginmgr.Manager

	// ApplicationArgs are handed to both plugin halves.
	ApplicationArgs []string

	// SessionKey, when set, makes the controller write one hand-off
	// file per leaf into HandOffDir (default leafinfo.Dir()) so
	// independently launched back ends can find their parents.
	SessionKey string
	HandOffDir string

	// ConnectTimeout bounds the wait for back ends. Zero leaves the
	// wait to the caller's context.
	ConnectTimeout time.Duration
	PollInterval   time.Duration

	// Clock defaults to the real clock.
	Clock clock.Clock

	// OnTransition, when set, is called on the controller's goroutine
	// after every state change. Back ends may be started from it once
	// the state is StateWaitingForBackEnds.
	OnTransition func(from, to State)

	Logger *slog.Logger
}

// Controller runs one front-end session: it builds the overlay, waits
// for the back ends, handshakes, tells them which plugin to load, and
// hands the network to the front-end plugin.
type Controller struct {
	config Config
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	network *overlay.Network
}

// New checks config and returns a controller in StateInit.
func New(config Config) (*Controller, error) {
	const op = "configure front end"
	if config.ProcessTable == nil || config.ProcessTable.Len() == 0 {
		return nil, fault.Newf(fault.Configuration, op, "no process table").
			WithHint("the front end needs the job's process table from the launch service or --process-table")
	}
	if !config.ProcessTable.Complete() {
		return nil, fault.Newf(fault.Configuration, op, "process table has unset entries")
	}
	if config.PluginName == "" {
		return nil, fault.Newf(fault.Configuration, op, "no plugin named")
	}
	if config.Plugins == nil {
		return nil, fault.Newf(fault.Configuration, op, "no plugin manager")
	}
	if config.Topology == nil && config.TopologyOptions.RootHost == "" {
		return nil, fault.Newf(fault.Configuration, op, "no root host for the topology")
	}
	if config.SessionKey != "" {
		if err := session.ValidateKey(config.SessionKey); err != nil {
			return nil, err
		}
	}
	if config.UpstreamFilter == "" {
		config.UpstreamFilter = overlay.FilterWaitForAll
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.HandOffDir == "" {
		config.HandOffDir = leafinfo.Dir()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Controller{
		config: config,
		logger: config.Logger.With("component", "frontend", "plugin", config.PluginName),
	}, nil
}

// State returns the current state. Safe to call from any goroutine.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Network returns the overlay once it is built, nil before that.
func (c *Controller) Network() *overlay.Network {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.network
}

func (c *Controller) transition(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()
	c.logger.Debug("front end state changed", "from", from, "to", to)
	if c.config.OnTransition != nil {
		c.config.OnTransition(from, to)
	}
}

// Run executes the session. It returns when the front-end plugin
// returns or any step fails. Whatever happens, the back ends are told
// to shut down and the plugin, stream, and network are closed before
// Run returns; the state is then StateDone.
func (c *Controller) Run(ctx context.Context) error {
	defer c.transition(StateDone)

	pack, frontEnd, filterObjects, err := c.loadPlugin()
	if err != nil {
		return err
	}
	defer pack.Close()

	topo, err := c.topology()
	if err != nil {
		return err
	}
	c.transition(StateTopologyBuilt)

	network, err := overlay.Build(ctx, topo, c.networkOptions(filterObjects))
	if err != nil {
		return err
	}
	defer network.Close()
	c.mu.Lock()
	c.network = network
	c.mu.Unlock()

	network.RegisterConnectionCallbacks()
	if _, err := network.LoadCoreFilter(c.config.UpstreamFilter); err != nil {
		return err
	}
	stream, err := network.NewBroadcastStream(c.config.UpstreamFilter)
	if err != nil {
		return err
	}
	defer stream.Close()
	defer c.shutdown(stream)

	handOffs, err := c.writeHandOffs(topo)
	defer removeHandOffs(handOffs)
	if err != nil {
		return err
	}
	c.transition(StateNetworkBuilt)

	c.transition(StateWaitingForBackEnds)
	if err := c.waitForBackEnds(ctx, network); err != nil {
		return err
	}
	expected := network.ExpectedBackEndCount()

	c.transition(StateHandshaking)
	if err := c.handshake(ctx, stream, expected); err != nil {
		return err
	}

	c.transition(StatePluginIdentityBroadcast)
	if err := c.broadcastIdentity(stream, pack); err != nil {
		return err
	}
	if err := c.awaitBackEndPlugins(ctx, stream, expected); err != nil {
		return err
	}

	c.transition(StatePluginRunning)
	return c.runPlugin(ctx, frontEnd, stream, network)
}

// loadPlugin finds the pack and loads its front-end half and filter
// objects before anything is launched, so a bad pack fails the session
// cheaply.
func (c *Controller) loadPlugin() (*pluginmgr.Pack, *pluginmgr.Handle, []string, error) {
	pack, err := c.config.Plugins.Find(c.config.PluginName)
	if err != nil {
		return nil, nil, nil, err
	}
	frontEnd, err := pack.Load(pluginabi.FrontEnd)
	if err != nil {
		pack.Close()
		return nil, nil, nil, err
	}
	filterObjects, err := pack.FilterObjects()
	if err != nil {
		pack.Close()
		return nil, nil, nil, fault.New(fault.PluginDiscovery, "list filter objects", err)
	}
	if c.config.Network.Filters == nil {
		c.config.Network.Filters = overlay.NewFilterSet()
	}
	if _, err := c.config.Plugins.LoadFilterObjects(filterObjects, c.config.Network.Filters); err != nil {
		pack.Close()
		return nil, nil, nil, err
	}
	return pack, frontEnd, filterObjects, nil
}

func (c *Controller) topology() (*topology.Topology, error) {
	const op = "generate topology"
	topo := c.config.Topology
	if topo == nil {
		generated, err := topology.Generate(c.config.ProcessTable.Landscape(), c.config.TopologyOptions)
		if err != nil {
			return nil, fault.New(fault.Topology, op, err)
		}
		topo = generated
	}
	if err := topo.Validate(); err != nil {
		return nil, fault.New(fault.Topology, op, err)
	}
	c.logger.Info("topology ready", "nodes", topo.Len(), "leaves", len(topo.Leaves()), "internal", len(topo.Internal()))
	return topo, nil
}

// networkOptions returns the build options. Remote communication nodes
// cannot share the in-process filter set, so an exec launcher is given
// the pack's filter objects to load.
func (c *Controller) networkOptions(filterObjects []string) overlay.Options {
	options := c.config.Network
	if options.Logger == nil {
		options.Logger = c.config.Logger
	}
	if launcher, ok := options.Launcher.(*overlay.ExecLauncher); ok && len(filterObjects) > 0 {
		withFilters := *launcher
		withFilters.ExtraArgs = append([]string(nil), launcher.ExtraArgs...)
		for _, object := range filterObjects {
			withFilters.ExtraArgs = append(withFilters.ExtraArgs, "--filter-object", object)
		}
		options.Launcher = &withFilters
	}
	return options
}

// writeHandOffs writes one file per leaf, named by the leaf's rank. It
// returns the paths written so far even on failure.
func (c *Controller) writeHandOffs(topo *topology.Topology) ([]string, error) {
	if c.config.SessionKey == "" {
		return nil, nil
	}
	var paths []string
	for _, leaf := range topo.Leaves() {
		parent, _ := topo.Node(leaf.Parent)
		path := leafinfo.Path(c.config.HandOffDir, c.config.SessionKey, int(leaf.Rank))
		err := leafinfo.Write(path, []leafinfo.Info{{
			HostName:       leaf.Host,
			ParentHostName: parent.Host,
			Rank:           int32(leaf.Rank),
			ParentPort:     int32(parent.Port),
			ParentRank:     int32(parent.Rank),
		}})
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	c.logger.Info("hand-off files written", "session", c.config.SessionKey, "dir", c.config.HandOffDir, "files", len(paths))
	return paths, nil
}

// removeHandOffs deletes hand-off files no back end consumed.
func removeHandOffs(paths []string) {
	for _, path := range paths {
		os.Remove(path)
	}
}

func (c *Controller) waitForBackEnds(ctx context.Context, network *overlay.Network) error {
	c.logger.Info("waiting for back ends", "expected", network.ExpectedBackEndCount())
	waitCtx := ctx
	if c.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}
	if err := network.WaitConnected(waitCtx, c.config.Clock, c.config.PollInterval); err != nil {
		var classified *fault.Error
		if errors.Is(err, context.DeadlineExceeded) && errors.As(err, &classified) {
			return classified.WithHint("back ends did not all join within %s; check the agents' logs or raise network.connect_timeout", c.config.ConnectTimeout)
		}
		return err
	}
	c.logger.Info("all back ends connected", "back_ends", network.ConnectedBackEndCount())
	return nil
}

// handshake pings every back end with a fresh magic value and requires
// each to answer with its negation.
func (c *Controller) handshake(ctx context.Context, stream *overlay.Stream, expected int) error {
	const op = "handshake with back ends"
	magic, err := protocol.NewMagic()
	if err != nil {
		return fault.New(fault.Handshake, op, err)
	}
	if err := stream.Send(protocol.InitHandshake, protocol.Ping{Magic: magic}); err != nil {
		return fault.New(fault.Handshake, op, err)
	}
	if err := stream.Flush(); err != nil {
		return fault.New(fault.Handshake, op, err)
	}

	replied := make(map[overlay.Rank]bool, expected)
	for len(replied) < expected {
		packet, err := stream.Recv(ctx)
		if err != nil {
			return fault.Newf(fault.Handshake, op, "%d of %d back ends answered: %w", len(replied), expected, err)
		}
		var reply protocol.Ping
		if packet.Tag == protocol.InitHandshake {
			if err := packet.Unpack(&reply); err != nil {
				return fault.Newf(fault.Handshake, op, "%w: %w", protocol.ErrHandshakeFailed, err)
			}
		}
		if err := protocol.CheckPong(magic, packet.Tag, reply); err != nil {
			return fault.Newf(fault.Handshake, op, "back end %d: %w", packet.Source, err)
		}
		if replied[packet.Source] {
			return fault.Newf(fault.Handshake, op, "%w: back end %d answered twice", protocol.ErrHandshakeFailed, packet.Source)
		}
		replied[packet.Source] = true
	}
	c.logger.Info("handshake complete", "back_ends", expected)
	return nil
}

func (c *Controller) broadcastIdentity(stream *overlay.Stream, pack *pluginmgr.Pack) error {
	const op = "announce plugin"
	identity := protocol.PluginName{
		Name:            pack.Name,
		Path:            pack.Path,
		ProcessTable:    c.config.ProcessTable,
		ApplicationArgs: c.config.ApplicationArgs,
	}
	if digest, err := pack.Digest(pluginabi.BackEnd); err != nil {
		c.logger.Warn("cannot hash back-end plugin object", "error", err)
	} else {
		identity.BackEndDigest = digest.String()
	}
	if err := stream.Send(protocol.PluginNameInfo, identity); err != nil {
		return fault.New(fault.Handshake, op, err)
	}
	if err := stream.Flush(); err != nil {
		return fault.New(fault.Handshake, op, err)
	}
	return nil
}

// awaitBackEndPlugins collects one BackEndReady per back end. Every
// failure is reported, not just the first.
func (c *Controller) awaitBackEndPlugins(ctx context.Context, stream *overlay.Stream, expected int) error {
	const op = "wait for back-end plugins"
	var failures []error
	reported := make(map[overlay.Rank]bool, expected)
	for len(reported) < expected {
		packet, err := stream.Recv(ctx)
		if err != nil {
			return fault.Newf(fault.PluginRuntime, op, "%d of %d back ends reported: %w", len(reported), expected, err)
		}
		if packet.Tag != protocol.BackEndPluginsReady {
			return fault.Newf(fault.Handshake, op, "%w: expected %s from back end %d, got %s",
				protocol.ErrHandshakeFailed, protocol.BackEndPluginsReady, packet.Source, packet.Tag)
		}
		var ready protocol.BackEndReady
		if err := packet.Unpack(&ready); err != nil {
			return fault.New(fault.Handshake, op, err)
		}
		reported[packet.Source] = true
		if !ready.Ready {
			c.logger.Error("back end could not load plugin", "back_end", packet.Source, "host", ready.Host, "error", ready.Error)
			failures = append(failures, fmt.Errorf("back end %d on %s: %s", packet.Source, ready.Host, ready.Error))
		}
	}
	if len(failures) > 0 {
		return fault.New(fault.PluginRuntime, op, errors.Join(failures...)).
			WithHint("install plugin pack %s on every back-end host, built from the same source as the front end's", c.config.PluginName)
	}
	c.logger.Info("back-end plugins ready", "back_ends", expected)
	return nil
}

func (c *Controller) runPlugin(ctx context.Context, handle *pluginmgr.Handle, stream *overlay.Stream, network *overlay.Network) error {
	op := "run front-end plugin " + handle.Info.Name
	plugin, err := handle.Instance()
	if err != nil {
		return err
	}
	c.logger.Info("starting front-end plugin", "version", handle.Info.Version, "path", handle.Path)
	err = plugin.PluginMain(ctx, pluginabi.Args{
		HomeDirectory:   handle.Directory,
		ApplicationArgs: c.config.ApplicationArgs,
		ProcessTable:    c.config.ProcessTable,
		ProtocolStream:  stream,
		Network:         network,
		Logger:          c.config.Logger.With("plugin", handle.Info.Name, "role", pluginabi.FrontEnd.String()),
	})
	if err != nil {
		return fault.New(fault.PluginRuntime, op, err)
	}
	c.logger.Info("front-end plugin finished")
	return nil
}

// shutdown tells every receive loop on the stream to finish. Errors are
// logged; the network is closed right after regardless.
func (c *Controller) shutdown(stream *overlay.Stream) {
	if err := stream.Send(protocol.Shutdown, nil); err != nil {
		c.logger.Debug("sending shutdown", "error", err)
		return
	}
	if err := stream.Flush(); err != nil {
		c.logger.Debug("flushing shutdown", "error", err)
	}
}
