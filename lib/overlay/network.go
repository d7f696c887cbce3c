// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/lanl/gladius-sub000/lib/clock"
	"github.com/lanl/gladius-sub000/lib/fault"
	"github.com/lanl/gladius-sub000/lib/topology"
	"github.com/lanl/gladius-sub000/transport"
)

var (
	// ErrTopology is returned when a network cannot be built from a
	// topology.
	ErrTopology = errors.New("overlay network construction failed")

	// ErrNetworkClosed is returned by blocking calls once the network
	// or stream they wait on has been closed.
	ErrNetworkClosed = errors.New("overlay network closed")

	// ErrNetworkJoinFailed is returned when a back end cannot attach
	// to its parent.
	ErrNetworkJoinFailed = errors.New("joining overlay network failed")

	// ErrStaleLeafInfo is returned when the node a back end reached is
	// not the parent its connection info named.
	ErrStaleLeafInfo = errors.New("connection info is stale")
)

// ThreadsPerLeaf is the number of tool threads each leaf of the
// topology hosts. One is the only supported value.
type ThreadsPerLeaf int

// OneThreadPerLeaf is the supported ThreadsPerLeaf.
const OneThreadPerLeaf ThreadsPerLeaf = 1

// Validate rejects unsupported values.
func (t ThreadsPerLeaf) Validate() error {
	if t != OneThreadPerLeaf {
		return fmt.Errorf("%d threads per leaf: only %d is supported", int(t), int(OneThreadPerLeaf))
	}
	return nil
}

// HostResolver maps a topology host name to the address that reaches
// it. Tests use it to point made-up host names at loopback.
type HostResolver func(host string) string

// Options configures Build.
type Options struct {
	// ListenAddress is where the root accepts links. Defaults to ":0".
	ListenAddress string

	// Launcher starts internal communication nodes. Required when the
	// topology has any.
	Launcher NodeLauncher

	// ThreadsPerLeaf defaults to OneThreadPerLeaf.
	ThreadsPerLeaf ThreadsPerLeaf

	// Filters holds the filters streams may name. Defaults to the core
	// filters.
	Filters *FilterSet

	// HostResolver maps topology hosts to dialable addresses for
	// launched nodes. Defaults to the identity.
	HostResolver HostResolver

	// Metrics, when set, receives the root's collectors.
	Metrics prometheus.Registerer

	Logger *slog.Logger
}

// Network is the front end's view of an overlay: the root node, the
// internal nodes it launched, and the back ends that joined. All
// methods are safe for concurrent use.
type Network struct {
	topology *topology.Topology
	threads  ThreadsPerLeaf
	filters  *FilterSet
	logger   *slog.Logger
	metrics  *metrics

	router   *router
	listener *transport.TCPListener
	cancel   context.CancelFunc
	served   chan struct{}
	launched []LaunchedNode

	// mu guards everything below, including the connection counter
	// that transport goroutines update.
	mu         sync.Mutex
	history    []Event
	callbacks  []EventCallback
	tracking   bool
	connected  map[Rank]struct{}
	ports      map[Rank]int
	portsReady chan struct{}
	streams    map[StreamID]*Stream
	nextStream StreamID
	closed     bool

	closeOnce sync.Once
}

// Build starts the root of the overlay described by topo and launches
// its internal nodes. It returns once every internal node listens for
// children; the Port of every non-leaf topology node is then set.
// Back ends join afterwards, on their own schedule.
func Build(ctx context.Context, topo *topology.Topology, options Options) (*Network, error) {
	const op = "build overlay network"
	if topo == nil {
		return nil, fault.Newf(fault.Topology, op, "%w: no topology", ErrTopology)
	}
	if err := topo.Validate(); err != nil {
		return nil, fault.Newf(fault.Topology, op, "%w: %w", ErrTopology, err)
	}
	if options.ThreadsPerLeaf == 0 {
		options.ThreadsPerLeaf = OneThreadPerLeaf
	}
	if err := options.ThreadsPerLeaf.Validate(); err != nil {
		return nil, fault.Newf(fault.Topology, op, "%w: %w", ErrTopology, err)
	}
	if options.ListenAddress == "" {
		options.ListenAddress = ":0"
	}
	if options.Filters == nil {
		options.Filters = NewFilterSet()
	}
	if options.HostResolver == nil {
		options.HostResolver = func(host string) string { return host }
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	internal := topo.Internal()
	if len(internal) > 0 && options.Launcher == nil {
		return nil, fault.Newf(fault.Topology, op, "%w: topology has %d internal nodes and no launcher", ErrTopology, len(internal))
	}

	root := topo.Root()
	logger := options.Logger.With("component", "overlay", "rank", root.Rank)
	nodeMetrics, err := newMetrics(options.Metrics, root.Rank)
	if err != nil {
		return nil, fault.Newf(fault.Topology, op, "%w: registering metrics: %w", ErrTopology, err)
	}

	listener, err := transport.NewTCPListener(options.ListenAddress, logger)
	if err != nil {
		return nil, fault.Newf(fault.Topology, op, "%w: %w", ErrTopology, err)
	}
	if err := topo.SetPort(root.Rank, listener.Port()); err != nil {
		listener.Close()
		return nil, fault.Newf(fault.Topology, op, "%w: %w", ErrTopology, err)
	}

	serveCtx, cancel := context.WithCancel(context.Background())
	network := &Network{
		topology:   topo,
		threads:    options.ThreadsPerLeaf,
		filters:    options.Filters,
		logger:     logger,
		metrics:    nodeMetrics,
		router:     newRouter(root.Rank, options.Filters, logger),
		listener:   listener,
		cancel:     cancel,
		served:     make(chan struct{}),
		connected:  make(map[Rank]struct{}),
		ports:      make(map[Rank]int),
		portsReady: make(chan struct{}),
		streams:    make(map[StreamID]*Stream),
		nextStream: 1,
	}
	network.router.accept = network.acceptChild
	network.router.subtree = network.subtreeOf
	network.router.event = network.handleEvent
	network.router.up = network.deliver

	go func() {
		defer close(network.served)
		if err := listener.Serve(serveCtx, network.router.serveChild); err != nil {
			logger.Error("root listener failed", "error", err)
		}
	}()
	logger.Info("overlay root listening", "address", listener.Address(), "leaves", len(topo.Leaves()), "internal", len(internal))

	if err := network.launchInternal(ctx, options.Launcher, options.HostResolver); err != nil {
		network.Close()
		return nil, fault.Newf(fault.Topology, op, "%w: %w", ErrTopology, err)
	}
	return network, nil
}

// launchInternal starts internal nodes one tree level at a time; a
// level starts once its parents report their ports.
func (n *Network) launchInternal(ctx context.Context, launcher NodeLauncher, resolve HostResolver) error {
	levels := n.internalLevels()
	for _, level := range levels {
		group, groupCtx := errgroup.WithContext(ctx)
		launched := make([]LaunchedNode, len(level))
		for index, rank := range level {
			node, _ := n.topology.Node(rank)
			parent, _ := n.topology.Node(node.Parent)
			spec := NodeSpec{
				Rank:       node.Rank,
				Host:       node.Host,
				ParentHost: resolve(parent.Host),
				ParentPort: parent.Port,
				ParentRank: parent.Rank,
				Filters:    n.filters,
			}
			group.Go(func() error {
				started, err := launcher.Launch(groupCtx, spec)
				if err != nil {
					return fmt.Errorf("launching node %d on %s: %w", spec.Rank, spec.Host, err)
				}
				launched[index] = started
				return nil
			})
		}
		err := group.Wait()
		for _, started := range launched {
			if started != nil {
				n.launched = append(n.launched, started)
			}
		}
		if err != nil {
			return err
		}
		if err := n.waitReady(ctx, level, launched); err != nil {
			return err
		}
	}
	return nil
}

// internalLevels groups internal node ranks by depth, shallowest first.
func (n *Network) internalLevels() [][]Rank {
	depth := make(map[Rank]int)
	var depthOf func(rank Rank) int
	depthOf = func(rank Rank) int {
		if d, ok := depth[rank]; ok {
			return d
		}
		node, _ := n.topology.Node(rank)
		d := 0
		if node.Parent != topology.NoParent {
			d = depthOf(node.Parent) + 1
		}
		depth[rank] = d
		return d
	}

	var levels [][]Rank
	for _, node := range n.topology.Internal() {
		d := depthOf(node.Rank)
		for len(levels) < d {
			levels = append(levels, nil)
		}
		levels[d-1] = append(levels[d-1], node.Rank)
	}
	for _, level := range levels {
		sort.Slice(level, func(i, j int) bool { return level[i] < level[j] })
	}
	return levels
}

// waitReady blocks until every node in ranks reported its port, then
// records the ports in the topology.
func (n *Network) waitReady(ctx context.Context, ranks []Rank, launched []LaunchedNode) error {
	for {
		n.mu.Lock()
		missing := 0
		for _, rank := range ranks {
			if _, ok := n.ports[rank]; !ok {
				missing++
			}
		}
		changed := n.portsReady
		n.mu.Unlock()
		if missing == 0 {
			break
		}

		exited := make(chan Rank, 1)
		stop := make(chan struct{})
		for index, node := range launched {
			if node == nil {
				continue
			}
			rank := ranks[index]
			go func() {
				select {
				case <-node.Done():
					select {
					case exited <- rank:
					default:
					}
				case <-stop:
				}
			}()
		}

		select {
		case <-changed:
			close(stop)
		case rank := <-exited:
			close(stop)
			n.mu.Lock()
			_, ready := n.ports[rank]
			n.mu.Unlock()
			if !ready {
				return fmt.Errorf("node %d exited before it was ready", rank)
			}
		case <-ctx.Done():
			close(stop)
			return fmt.Errorf("waiting for %d internal nodes: %w", missing, ctx.Err())
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, rank := range ranks {
		if err := n.topology.SetPort(rank, n.ports[rank]); err != nil {
			return err
		}
	}
	return nil
}

// acceptChild vets a node connecting directly to the root.
func (n *Network) acceptChild(introduction hello) error {
	node, ok := n.topology.Node(introduction.Rank)
	if !ok {
		return fmt.Errorf("rank %d is not in the topology", introduction.Rank)
	}
	if node.Parent != n.router.rank {
		return fmt.Errorf("rank %d belongs under node %d, not the root", introduction.Rank, node.Parent)
	}
	if node.Role != introduction.Role {
		return fmt.Errorf("rank %d is a %s in the topology but connected as a %s", introduction.Rank, node.Role, introduction.Role)
	}
	return nil
}

// subtreeOf lists the topology below an internal node.
func (n *Network) subtreeOf(rank Rank) []placement {
	n.mu.Lock()
	nodes := n.topology.Nodes()
	n.mu.Unlock()
	layout := make([]placement, 0, len(nodes))
	for _, node := range nodes {
		layout = append(layout, placement{Rank: node.Rank, Parent: node.Parent, Role: node.Role})
	}
	return below(layout, rank)
}

// handleEvent records an event, updates the connection counter when
// tracking is on, and fans the event out to callbacks.
func (n *Network) handleEvent(event Event) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	switch event.Kind {
	case EventBackEndAdded:
		node, ok := n.topology.Node(event.Rank)
		if !ok || node.Role != topology.RoleLeaf {
			n.mu.Unlock()
			n.logger.Warn("ignoring back end outside the topology", "back_end", event.Rank, "host", event.Host)
			return
		}
	case EventNodeReady:
		n.ports[event.Rank] = event.Port
		close(n.portsReady)
		n.portsReady = make(chan struct{})
	}
	n.history = append(n.history, event)
	if n.tracking {
		n.count(event)
	}
	callbacks := make([]EventCallback, len(n.callbacks))
	copy(callbacks, n.callbacks)
	n.mu.Unlock()

	for _, callback := range callbacks {
		callback(event)
	}
}

// count applies one event to the connection counter. Called with mu
// held.
func (n *Network) count(event Event) {
	switch event.Kind {
	case EventBackEndAdded:
		if _, seen := n.connected[event.Rank]; seen {
			return
		}
		n.connected[event.Rank] = struct{}{}
		n.metrics.connected(len(n.connected))
		n.logger.Debug("back end connected", "back_end", event.Rank, "host", event.Host,
			"connected", len(n.connected), "expected", n.ExpectedBackEndCount())
	case EventNodeLost:
		n.metrics.lost()
		n.logger.Warn("overlay node lost", "node", event.Rank, "host", event.Host, "back_ends", event.LostBackEnds)
	}
}

// RegisterConnectionCallbacks starts connection tracking: back-end
// joins are counted by unique rank and node losses are logged. Events
// that arrived before the call are applied first. Idempotent.
func (n *Network) RegisterConnectionCallbacks() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.tracking {
		return
	}
	n.tracking = true
	for _, event := range n.history {
		n.count(event)
	}
}

// OnEvent adds an observer for every later event and replays the
// events seen so far to it before returning.
func (n *Network) OnEvent(callback EventCallback) {
	n.mu.Lock()
	history := make([]Event, len(n.history))
	copy(history, n.history)
	n.callbacks = append(n.callbacks, callback)
	n.mu.Unlock()

	for _, event := range history {
		callback(event)
	}
}

// ExpectedBackEndCount is the number of back ends a fully connected
// network has.
func (n *Network) ExpectedBackEndCount() int {
	return len(n.topology.Leaves()) * int(n.threads)
}

// ConnectedBackEndCount is the number of unique back ends counted so
// far.
func (n *Network) ConnectedBackEndCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.connected)
}

// PollConnected reports, without blocking, whether every expected back
// end has joined. Once true it stays true.
func (n *Network) PollConnected() bool {
	return n.ConnectedBackEndCount() == n.ExpectedBackEndCount()
}

// WaitConnected polls until every expected back end has joined or ctx
// ends.
func (n *Network) WaitConnected(ctx context.Context, clk clock.Clock, interval time.Duration) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	for !n.PollConnected() {
		select {
		case <-ctx.Done():
			return fault.Newf(fault.Connection, "wait for back ends", "%d of %d connected: %w",
				n.ConnectedBackEndCount(), n.ExpectedBackEndCount(), ctx.Err())
		case <-clk.After(interval):
		}
	}
	return nil
}

// LoadCoreFilter returns the filter registered under name.
func (n *Network) LoadCoreFilter(name string) (*Filter, error) {
	filter, err := n.filters.Lookup(name)
	if err != nil {
		return nil, fault.New(fault.Topology, "load filter", err)
	}
	return filter, nil
}

// RegisterFilter adds a filter streams may name. Internal nodes started
// by a LocalLauncher share the set; remote nodes load filter objects
// themselves.
func (n *Network) RegisterFilter(filter *Filter) error {
	return n.filters.Register(filter)
}

// Topology returns the topology the network was built from, with ports
// filled in.
func (n *Network) Topology() *topology.Topology { return n.topology }

// Address returns the root's listen address.
func (n *Network) Address() string { return n.listener.Address() }

// NewBroadcastStream opens a stream to every back end, including back
// ends that join later.
func (n *Network) NewBroadcastStream(upFilter string) (*Stream, error) {
	return n.openStream(nil, upFilter)
}

// NewStream opens a stream to the given back ends, which must already
// have joined.
func (n *Network) NewStream(endpoints []Rank, upFilter string) (*Stream, error) {
	if len(endpoints) == 0 {
		return nil, fault.Newf(fault.Topology, "create stream", "%w: no endpoints", ErrStreamCreate)
	}
	reachable := n.router.backEnds()
	seen := make(map[Rank]struct{}, len(endpoints))
	for _, endpoint := range endpoints {
		node, ok := n.topology.Node(endpoint)
		if !ok || node.Role != topology.RoleLeaf {
			return nil, fault.Newf(fault.Topology, "create stream", "%w: rank %d is not a back end", ErrStreamCreate, endpoint)
		}
		if _, joined := reachable[endpoint]; !joined {
			return nil, fault.Newf(fault.Topology, "create stream", "%w: back end %d has not joined", ErrStreamCreate, endpoint)
		}
		if _, duplicate := seen[endpoint]; duplicate {
			return nil, fault.Newf(fault.Topology, "create stream", "%w: rank %d listed twice", ErrStreamCreate, endpoint)
		}
		seen[endpoint] = struct{}{}
	}
	sorted := make([]Rank, len(endpoints))
	copy(sorted, endpoints)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return n.openStream(sorted, upFilter)
}

func (n *Network) openStream(endpoints []Rank, upFilter string) (*Stream, error) {
	const op = "create stream"
	if _, err := n.filters.Lookup(upFilter); err != nil {
		return nil, fault.Newf(fault.Topology, op, "%w: %w", ErrStreamCreate, err)
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, fault.Newf(fault.Topology, op, "%w: %w", ErrStreamCreate, ErrNetworkClosed)
	}
	id := n.nextStream
	n.nextStream++
	stream := &Stream{
		id:        id,
		endpoints: endpoints,
		filter:    upFilter,
		source:    n.router.rank,
		queue:     newPacketQueue(),
		closed:    make(chan struct{}),
	}
	stream.transmit = func(packets []Packet) error {
		_, err := n.router.downstream(id, packets)
		n.metrics.sent("down", len(packets))
		return err
	}
	stream.flush = n.router.flushAll
	stream.onClose = func() {
		n.router.closeStream(id)
		n.mu.Lock()
		delete(n.streams, id)
		n.mu.Unlock()
	}
	n.streams[id] = stream
	n.mu.Unlock()

	participants, err := n.router.open(streamSpec{ID: id, Endpoints: endpoints, UpFilter: upFilter})
	if err != nil {
		stream.Close()
		return nil, fault.Newf(fault.Topology, op, "%w: %w", ErrStreamCreate, err)
	}
	n.logger.Debug("stream opened", "stream", id, "filter", upFilter, "endpoints", len(endpoints), "children", participants)
	return stream, nil
}

// deliver hands filter output at the root to the stream's consumer.
func (n *Network) deliver(id StreamID, packets []Packet) {
	n.mu.Lock()
	stream, ok := n.streams[id]
	n.mu.Unlock()
	if !ok {
		n.logger.Debug("dropping packets for closed stream", "stream", id, "packets", len(packets))
		return
	}
	n.metrics.received(len(packets))
	stream.deliver(packets)
}

// Close shuts the overlay down: children are told to exit, links
// close, launched nodes are stopped, and every open stream's Recv
// returns ErrNetworkClosed. Idempotent.
func (n *Network) Close() error {
	var err error
	n.closeOnce.Do(func() {
		n.mu.Lock()
		n.closed = true
		streams := make([]*Stream, 0, len(n.streams))
		for _, stream := range n.streams {
			streams = append(streams, stream)
		}
		n.mu.Unlock()

		for _, stream := range streams {
			stream.Close()
		}
		n.router.shutdown()
		n.cancel()
		n.listener.Close()
		<-n.served

		var group errgroup.Group
		for _, node := range n.launched {
			group.Go(node.Stop)
		}
		err = group.Wait()
		n.logger.Info("overlay network closed")
	})
	return err
}

// joinAddress formats host and port for dialing.
func joinAddress(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
