// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lanl/gladius-sub000/lib/fault"
	"github.com/lanl/gladius-sub000/lib/netutil"
	"github.com/lanl/gladius-sub000/lib/topology"
	"github.com/lanl/gladius-sub000/transport"
)

// JoinOptions locates the parent a back end attaches to.
type JoinOptions struct {
	ParentHost string
	ParentPort int
	ParentRank Rank

	// Rank and Host are the back end's own identity.
	Rank Rank
	Host string

	// Dialer defaults to a TCPDialer.
	Dialer transport.Dialer

	Metrics prometheus.Registerer
	Logger  *slog.Logger
}

// BackEnd is a leaf attached to the overlay. It sees the streams the
// front end opened toward it, in the order they were opened.
type BackEnd struct {
	rank    Rank
	logger  *slog.Logger
	metrics *metrics
	parent  *link

	// arrivals holds one marker packet per data packet received, in
	// arrival order, so Recv can return traffic across streams.
	arrivals *packetQueue

	mu      sync.Mutex
	streams map[StreamID]*Stream

	closeOnce sync.Once
	done      chan struct{}
}

// Join attaches a back end to its parent. The parent must be the node
// the options name; reaching a different rank fails with
// ErrStaleLeafInfo.
func Join(ctx context.Context, options JoinOptions) (*BackEnd, error) {
	const op = "join overlay network"
	if options.Dialer == nil {
		options.Dialer = &transport.TCPDialer{}
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	logger := options.Logger.With("component", "overlay", "rank", options.Rank)

	nodeMetrics, err := newMetrics(options.Metrics, options.Rank)
	if err != nil {
		return nil, fault.New(fault.Connection, op, err)
	}

	address := joinAddress(options.ParentHost, options.ParentPort)
	parent, _, err := dialParent(ctx, options.Dialer, address, options.ParentRank, hello{
		Rank: options.Rank,
		Host: options.Host,
		Role: topology.RoleLeaf,
	})
	if err != nil {
		return nil, fault.New(fault.Connection, op, err).
			WithHint("check that the front end is still running and that %s is reachable from %s", address, options.Host)
	}

	backEnd := &BackEnd{
		rank:     options.Rank,
		logger:   logger,
		metrics:  nodeMetrics,
		parent:   parent,
		arrivals: newPacketQueue(),
		streams:  make(map[StreamID]*Stream),
		done:     make(chan struct{}),
	}
	go backEnd.readParent()
	logger.Info("joined overlay network", "parent", address, "parent_rank", options.ParentRank)
	return backEnd, nil
}

// Rank returns the back end's rank.
func (b *BackEnd) Rank() Rank { return b.rank }

// Done is closed once the back end's link is gone.
func (b *BackEnd) Done() <-chan struct{} { return b.done }

// Recv returns the next packet on any stream together with the stream
// it arrived on. Packets already consumed through Stream.Recv are not
// returned again.
func (b *BackEnd) Recv(ctx context.Context) (*Packet, *Stream, error) {
	for {
		marker, err := b.arrivals.pop(ctx)
		if err != nil {
			return nil, nil, err
		}
		b.mu.Lock()
		stream, ok := b.streams[marker.Stream]
		b.mu.Unlock()
		if !ok {
			continue
		}
		packet, ok, _ := stream.queue.tryPop()
		if !ok {
			continue
		}
		return &packet, stream, nil
	}
}

// Stream returns an open stream by ID.
func (b *BackEnd) Stream(id StreamID) (*Stream, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	stream, ok := b.streams[id]
	return stream, ok
}

// Close detaches from the parent. Recv and every stream's Recv return
// ErrNetworkClosed afterwards. Idempotent.
func (b *BackEnd) Close() error {
	b.closeOnce.Do(func() {
		b.parent.close()
		b.mu.Lock()
		streams := make([]*Stream, 0, len(b.streams))
		for _, stream := range b.streams {
			streams = append(streams, stream)
		}
		b.mu.Unlock()
		for _, stream := range streams {
			stream.Close()
		}
		b.arrivals.close()
		close(b.done)
	})
	return nil
}

func (b *BackEnd) readParent() {
	defer b.Close()
	for {
		received, err := b.parent.receive()
		if err != nil {
			select {
			case <-b.done:
			default:
				if !netutil.IsExpectedCloseError(err) {
					b.logger.Warn("parent link failed", "error", err)
				}
			}
			return
		}
		switch received.Kind {
		case frameOpen:
			if received.Stream != nil {
				b.open(*received.Stream)
			}
		case frameData:
			b.deliver(received.Packets)
		case frameClose:
			if received.Stream != nil {
				b.retire(received.Stream.ID)
			}
		case frameShutdown:
			b.logger.Debug("network shutdown requested by front end")
			return
		default:
			b.logger.Debug("ignoring unexpected frame from parent", "kind", received.Kind)
		}
	}
}

func (b *BackEnd) open(spec streamSpec) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.streams[spec.ID]; exists {
		return
	}
	id := spec.ID
	stream := &Stream{
		id:        id,
		endpoints: spec.Endpoints,
		filter:    spec.UpFilter,
		source:    b.rank,
		queue:     newPacketQueue(),
		closed:    make(chan struct{}),
	}
	stream.transmit = func(packets []Packet) error {
		err := b.parent.send(frame{Kind: frameData, Packets: packets})
		b.metrics.sent("up", len(packets))
		return err
	}
	stream.flush = b.parent.flush
	stream.onClose = func() {
		b.mu.Lock()
		delete(b.streams, id)
		b.mu.Unlock()
	}
	b.streams[id] = stream
}

func (b *BackEnd) deliver(packets []Packet) {
	for _, packet := range packets {
		b.mu.Lock()
		stream, ok := b.streams[packet.Stream]
		b.mu.Unlock()
		if !ok {
			b.logger.Debug("dropping packet for unknown stream", "stream", packet.Stream, "tag", packet.Tag)
			continue
		}
		stream.deliver([]Packet{packet})
		b.arrivals.push(Packet{Stream: packet.Stream})
	}
	b.metrics.received(len(packets))
}

func (b *BackEnd) retire(id StreamID) {
	b.mu.Lock()
	stream, ok := b.streams[id]
	b.mu.Unlock()
	if ok {
		stream.Close()
	}
}
