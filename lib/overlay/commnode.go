// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lanl/gladius-sub000/lib/netutil"
	"github.com/lanl/gladius-sub000/lib/topology"
	"github.com/lanl/gladius-sub000/transport"
)

// CommNodeOptions configures an internal communication node.
type CommNodeOptions struct {
	Rank Rank
	Host string

	// ListenAddress is where the node accepts its children. Defaults
	// to ":0".
	ListenAddress string

	// ParentAddress is the parent's host:port.
	ParentAddress string
	ParentRank    Rank

	// Filters must hold every filter the front end's streams name.
	// Defaults to the core filters.
	Filters *FilterSet

	// Dialer defaults to a TCPDialer.
	Dialer transport.Dialer

	Metrics prometheus.Registerer
	Logger  *slog.Logger
}

// CommNode is an internal overlay node. It forwards downstream
// traffic to the children leading to a stream's endpoints, runs the
// stream's filter over upstream traffic, and relays membership events
// to its parent.
type CommNode struct {
	rank     Rank
	logger   *slog.Logger
	metrics  *metrics
	router   *router
	parent   *link
	subtree  []placement
	listener *transport.TCPListener
	cancel   context.CancelFunc

	closeOnce sync.Once
	done      chan struct{}
	served    chan struct{}
}

// Compile-time check that CommNode can be handed out by a launcher.
var _ LaunchedNode = (*CommNode)(nil)

// StartCommNode connects to the parent, starts listening for children,
// and returns once the parent accepted the node.
func StartCommNode(ctx context.Context, options CommNodeOptions) (*CommNode, error) {
	if options.ListenAddress == "" {
		options.ListenAddress = ":0"
	}
	if options.Filters == nil {
		options.Filters = NewFilterSet()
	}
	if options.Dialer == nil {
		options.Dialer = &transport.TCPDialer{}
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	logger := options.Logger.With("component", "overlay", "rank", options.Rank)

	nodeMetrics, err := newMetrics(options.Metrics, options.Rank)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	listener, err := transport.NewTCPListener(options.ListenAddress, logger)
	if err != nil {
		return nil, err
	}

	parent, greeting, err := dialParent(ctx, options.Dialer, options.ParentAddress, options.ParentRank, hello{
		Rank: options.Rank,
		Host: options.Host,
		Role: topology.RoleInternal,
		Port: listener.Port(),
	})
	if err != nil {
		listener.Close()
		return nil, err
	}

	serveCtx, cancel := context.WithCancel(context.Background())
	node := &CommNode{
		rank:     options.Rank,
		logger:   logger,
		metrics:  nodeMetrics,
		router:   newRouter(options.Rank, options.Filters, logger),
		parent:   parent,
		subtree:  greeting.Subtree,
		listener: listener,
		cancel:   cancel,
		done:     make(chan struct{}),
		served:   make(chan struct{}),
	}
	node.router.up = node.forwardUp
	node.router.accept = node.acceptChild
	node.router.subtree = func(child Rank) []placement { return below(node.subtree, child) }
	node.router.event = node.forwardEvent

	go func() {
		defer close(node.served)
		if err := listener.Serve(serveCtx, node.router.serveChild); err != nil {
			logger.Error("listener failed", "error", err)
		}
	}()
	go node.readParent()

	logger.Info("communication node started", "address", listener.Address(), "parent", options.ParentAddress)
	return node, nil
}

// RunCommNode starts a node and blocks until the parent shuts it down,
// the parent link breaks, or ctx ends.
func RunCommNode(ctx context.Context, options CommNodeOptions) error {
	node, err := StartCommNode(ctx, options)
	if err != nil {
		return err
	}
	select {
	case <-node.Done():
	case <-ctx.Done():
	}
	return node.Stop()
}

// Port returns the port the node listens on for children.
func (n *CommNode) Port() int { return n.listener.Port() }

// Done is closed once the node has shut down.
func (n *CommNode) Done() <-chan struct{} { return n.done }

// Stop shuts the node down. Idempotent.
func (n *CommNode) Stop() error {
	n.closeOnce.Do(func() {
		n.router.shutdown()
		n.cancel()
		n.listener.Close()
		n.parent.close()
		<-n.served
		close(n.done)
		n.logger.Info("communication node stopped")
	})
	return nil
}

// readParent handles downstream frames until the parent link ends.
func (n *CommNode) readParent() {
	defer n.Stop()
	for {
		received, err := n.parent.receive()
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				n.logger.Warn("parent link failed", "error", err)
			}
			return
		}
		switch received.Kind {
		case frameOpen:
			if received.Stream == nil {
				continue
			}
			if _, err := n.router.open(*received.Stream); err != nil {
				n.logger.Error("cannot open stream", "stream", received.Stream.ID, "error", err)
			}
		case frameData:
			links, err := n.router.downstream(streamOf(received.Packets), received.Packets)
			if err != nil {
				n.logger.Warn("forwarding downstream", "error", err)
			}
			for _, target := range links {
				target.flush()
			}
			n.metrics.sent("down", len(received.Packets)*len(links))
		case frameClose:
			if received.Stream != nil {
				n.router.closeStream(received.Stream.ID)
			}
		case frameShutdown:
			n.logger.Debug("shutdown requested by parent")
			return
		default:
			n.logger.Debug("ignoring unexpected frame from parent", "kind", received.Kind)
		}
	}
}

func (n *CommNode) forwardUp(_ StreamID, wave []Packet) {
	if err := n.parent.sendNow(frame{Kind: frameData, Packets: wave}); err != nil {
		n.logger.Warn("forwarding upstream", "error", err)
		return
	}
	n.metrics.sent("up", len(wave))
}

func (n *CommNode) forwardEvent(event Event) {
	if event.Kind == EventNodeLost {
		n.metrics.lost()
	}
	if err := n.parent.sendNow(frame{Kind: frameEvent, Event: &event}); err != nil {
		n.logger.Warn("forwarding event", "event", event.Kind, "error", err)
	}
}

// streamOf returns the stream of a downstream data frame.
func streamOf(packets []Packet) StreamID {
	if len(packets) == 0 {
		return 0
	}
	return packets[0].Stream
}

// acceptChild vets a child against the subtree the parent assigned to
// this node.
func (n *CommNode) acceptChild(introduction hello) error {
	for _, node := range n.subtree {
		if node.Rank != introduction.Rank {
			continue
		}
		if node.Parent != n.rank {
			return fmt.Errorf("rank %d belongs under node %d, not node %d", introduction.Rank, node.Parent, n.rank)
		}
		if node.Role != introduction.Role {
			return fmt.Errorf("rank %d is a %s in the topology but connected as a %s", introduction.Rank, node.Role, introduction.Role)
		}
		return nil
	}
	return fmt.Errorf("rank %d is not below node %d", introduction.Rank, n.rank)
}

// dialParent opens a link to the parent and completes the hello
// exchange, returning the parent's welcome.
func dialParent(ctx context.Context, dialer transport.Dialer, address string, parentRank Rank, introduction hello) (*link, *welcome, error) {
	conn, err := dialer.DialContext(ctx, address)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: dialing %s: %w", ErrNetworkJoinFailed, address, err)
	}
	parent := newLink(conn)
	if err := parent.sendNow(frame{Kind: frameHello, Hello: &introduction}); err != nil {
		parent.close()
		return nil, nil, fmt.Errorf("%w: %w", ErrNetworkJoinFailed, err)
	}
	answer, err := parent.receiveWithin(handshakeTimeout)
	if err != nil {
		parent.close()
		return nil, nil, fmt.Errorf("%w: waiting for welcome from %s: %w", ErrNetworkJoinFailed, address, err)
	}
	if answer.Kind != frameWelcome || answer.Welcome == nil {
		parent.close()
		return nil, nil, fmt.Errorf("%w: %s answered hello with frame kind %d", ErrNetworkJoinFailed, address, answer.Kind)
	}
	if answer.Welcome.Error != "" {
		parent.close()
		return nil, nil, fmt.Errorf("%w: %s refused rank %d: %s", ErrNetworkJoinFailed, address, introduction.Rank, answer.Welcome.Error)
	}
	if answer.Welcome.Rank != parentRank {
		parent.close()
		return nil, nil, fmt.Errorf("%w: expected parent rank %d at %s, reached rank %d", ErrStaleLeafInfo, parentRank, address, answer.Welcome.Rank)
	}
	return parent, answer.Welcome, nil
}
