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
	"sync"

	"github.com/lanl/gladius-sub000/lib/netutil"
	"github.com/lanl/gladius-sub000/lib/topology"
)

// router is the part of a node that has children: the root and every
// internal communication node. It accepts child links, routes
// downstream traffic to the children that lead to a stream's
// endpoints, runs each stream's upstream filter, and reports
// membership events through its hooks.
type router struct {
	rank    Rank
	filters *FilterSet
	logger  *slog.Logger

	// accept vets a child's hello before it is welcomed.
	accept func(hello) error

	// subtree returns what an internal child's welcome carries.
	subtree func(child Rank) []placement

	// up receives filter output. Calls are serialized and in filter
	// order.
	up func(stream StreamID, wave []Packet)

	// event receives membership events seen at or below this node.
	event func(Event)

	mu       sync.Mutex
	children map[Rank]*child
	routes   map[StreamID]*route
	closed   bool

	// upMu is taken before mu is released by a goroutine that has
	// filter output, so outputs leave in the order the filter produced
	// them.
	upMu sync.Mutex
}

// child is one directly connected node.
type child struct {
	hello hello
	link  *link

	// backEnds holds the back-end ranks reachable through this child.
	backEnds map[Rank]struct{}
}

// route is a stream's state at this node.
type route struct {
	spec         streamSpec
	participants map[Rank]struct{}
	filter       FilterState
}

func newRouter(rank Rank, filters *FilterSet, logger *slog.Logger) *router {
	return &router{
		rank:     rank,
		filters:  filters,
		logger:   logger,
		accept:   func(hello) error { return nil },
		subtree:  func(Rank) []placement { return nil },
		up:       func(StreamID, []Packet) {},
		event:    func(Event) {},
		children: make(map[Rank]*child),
		routes:   make(map[StreamID]*route),
	}
}

// serveChild runs one child link from hello to disconnect.
func (r *router) serveChild(ctx context.Context, conn net.Conn) {
	link := newLink(conn)
	defer link.close()

	first, err := link.receiveWithin(handshakeTimeout)
	if err != nil {
		r.logger.Warn("child link closed before hello", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}
	if first.Kind != frameHello || first.Hello == nil {
		r.logger.Warn("child link did not start with hello", "remote", conn.RemoteAddr().String(), "kind", first.Kind)
		return
	}
	introduction := *first.Hello

	added, err := r.addChild(introduction, link)
	if err != nil {
		r.logger.Warn("refusing child", "rank", introduction.Rank, "host", introduction.Host, "error", err)
		link.sendNow(frame{Kind: frameWelcome, Welcome: &welcome{Rank: r.rank, Error: err.Error()}})
		return
	}
	r.logger.Debug("child connected", "rank", introduction.Rank, "host", introduction.Host, "role", introduction.Role)

	switch introduction.Role {
	case topology.RoleLeaf:
		r.event(Event{Kind: EventBackEndAdded, Rank: introduction.Rank, Host: introduction.Host, Parent: r.rank})
	case topology.RoleInternal:
		r.event(Event{Kind: EventNodeReady, Rank: introduction.Rank, Host: introduction.Host, Parent: r.rank, Port: introduction.Port})
	}

	readErr := r.readChild(ctx, added)
	lost := r.removeChild(added)
	if readErr != nil && !netutil.IsExpectedCloseError(readErr) && ctx.Err() == nil {
		r.logger.Warn("child link failed", "rank", introduction.Rank, "error", readErr)
	}
	if lost != nil {
		r.event(*lost)
	}
}

// addChild registers a child, welcomes it, and replays every open
// broadcast stream to it.
func (r *router) addChild(introduction hello, link *link) (*child, error) {
	if err := r.accept(introduction); err != nil {
		return nil, err
	}
	greeting := &welcome{Rank: r.rank}
	if introduction.Role == topology.RoleInternal {
		greeting.Subtree = r.subtree(introduction.Rank)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("node %d is shutting down", r.rank)
	}
	if _, exists := r.children[introduction.Rank]; exists {
		return nil, fmt.Errorf("rank %d is already connected to node %d", introduction.Rank, r.rank)
	}
	added := &child{hello: introduction, link: link, backEnds: make(map[Rank]struct{})}
	if introduction.Role == topology.RoleLeaf {
		added.backEnds[introduction.Rank] = struct{}{}
	}

	if err := link.send(frame{Kind: frameWelcome, Welcome: greeting}); err != nil {
		return nil, err
	}
	for _, id := range r.sortedRouteIDs() {
		existing := r.routes[id]
		if !existing.spec.broadcast() {
			continue
		}
		spec := existing.spec
		if err := link.send(frame{Kind: frameOpen, Stream: &spec}); err != nil {
			return nil, err
		}
		existing.participants[introduction.Rank] = struct{}{}
		existing.filter.Add(introduction.Rank)
	}
	if err := link.flush(); err != nil {
		return nil, err
	}
	r.children[introduction.Rank] = added
	return added, nil
}

func (r *router) sortedRouteIDs() []StreamID {
	ids := make([]StreamID, 0, len(r.routes))
	for id := range r.routes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// readChild processes frames from a child until its link fails.
func (r *router) readChild(ctx context.Context, from *child) error {
	for {
		received, err := from.link.receive()
		if err != nil {
			return err
		}
		switch received.Kind {
		case frameEvent:
			if received.Event == nil {
				continue
			}
			r.trackEvent(from, *received.Event)
			r.event(*received.Event)
		case frameData:
			r.upstream(from.hello.Rank, received.Packets)
		default:
			r.logger.Debug("ignoring unexpected frame from child", "rank", from.hello.Rank, "kind", received.Kind)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// trackEvent keeps the per-child back-end sets current.
func (r *router) trackEvent(from *child, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch event.Kind {
	case EventBackEndAdded:
		from.backEnds[event.Rank] = struct{}{}
	case EventNodeLost:
		delete(from.backEnds, event.Rank)
		for _, rank := range event.LostBackEnds {
			delete(from.backEnds, rank)
		}
	}
}

// upstream runs packets from a child through their streams' filters.
func (r *router) upstream(from Rank, packets []Packet) {
	// Frames normally carry one stream; split defensively.
	var order []StreamID
	waves := make(map[StreamID][]Packet)
	for _, packet := range packets {
		if _, seen := waves[packet.Stream]; !seen {
			order = append(order, packet.Stream)
		}
		waves[packet.Stream] = append(waves[packet.Stream], packet)
	}

	for _, id := range order {
		r.mu.Lock()
		state, ok := r.routes[id]
		if !ok {
			r.mu.Unlock()
			r.logger.Debug("dropping packets for unknown stream", "stream", id, "from", from)
			continue
		}
		released := state.filter.Push(from, waves[id])
		r.forwardUp(id, released)
	}
}

// forwardUp hands filter output upward. Called with mu held; releases
// it.
func (r *router) forwardUp(id StreamID, released []Packet) {
	if len(released) == 0 {
		r.mu.Unlock()
		return
	}
	r.upMu.Lock()
	r.mu.Unlock()
	defer r.upMu.Unlock()
	r.up(id, released)
}

// removeChild forgets a child and returns the node-lost event to
// report, or nil if the router was already shut down.
func (r *router) removeChild(gone *child) *Event {
	r.mu.Lock()
	if current, ok := r.children[gone.hello.Rank]; !ok || current != gone {
		r.mu.Unlock()
		return nil
	}
	delete(r.children, gone.hello.Rank)
	lost := &Event{
		Kind:   EventNodeLost,
		Rank:   gone.hello.Rank,
		Host:   gone.hello.Host,
		Parent: r.rank,
	}
	for rank := range gone.backEnds {
		lost.LostBackEnds = append(lost.LostBackEnds, rank)
	}
	sort.Slice(lost.LostBackEnds, func(i, j int) bool { return lost.LostBackEnds[i] < lost.LostBackEnds[j] })
	shuttingDown := r.closed

	type release struct {
		id      StreamID
		packets []Packet
	}
	var releases []release
	for _, id := range r.sortedRouteIDs() {
		state := r.routes[id]
		if _, participating := state.participants[gone.hello.Rank]; !participating {
			continue
		}
		delete(state.participants, gone.hello.Rank)
		if packets := state.filter.Drop(gone.hello.Rank); len(packets) > 0 {
			releases = append(releases, release{id: id, packets: packets})
		}
	}
	if len(releases) > 0 {
		r.upMu.Lock()
		r.mu.Unlock()
		for _, pending := range releases {
			r.up(pending.id, pending.packets)
		}
		r.upMu.Unlock()
	} else {
		r.mu.Unlock()
	}

	if shuttingDown {
		return nil
	}
	return lost
}

// open installs a stream and announces it to the children that lead to
// its endpoints. It returns the number of participating children.
func (r *router) open(spec streamSpec) (int, error) {
	filter, err := r.filters.Lookup(spec.UpFilter)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, ErrNetworkClosed
	}
	if _, exists := r.routes[spec.ID]; exists {
		r.mu.Unlock()
		return 0, fmt.Errorf("stream %d already open at node %d", spec.ID, r.rank)
	}
	participants := r.participantsFor(spec)
	ordered := make([]Rank, 0, len(participants))
	for rank := range participants {
		ordered = append(ordered, rank)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
	r.routes[spec.ID] = &route{spec: spec, participants: participants, filter: filter.New(ordered)}
	links := r.linksFor(ordered)
	r.mu.Unlock()

	announce := frame{Kind: frameOpen, Stream: &spec}
	var errs []error
	for _, target := range links {
		if err := target.sendNow(announce); err != nil {
			errs = append(errs, err)
		}
	}
	return len(ordered), errors.Join(errs...)
}

// participantsFor returns the children leading to spec's endpoints:
// every child for a broadcast stream. Called with mu held.
func (r *router) participantsFor(spec streamSpec) map[Rank]struct{} {
	participants := make(map[Rank]struct{})
	wanted := make(map[Rank]struct{}, len(spec.Endpoints))
	for _, endpoint := range spec.Endpoints {
		wanted[endpoint] = struct{}{}
	}
	for rank, connected := range r.children {
		if spec.broadcast() {
			participants[rank] = struct{}{}
			continue
		}
		for backEnd := range connected.backEnds {
			if _, ok := wanted[backEnd]; ok {
				participants[rank] = struct{}{}
				break
			}
		}
	}
	return participants
}

// linksFor returns the links of the given children. Called with mu held.
func (r *router) linksFor(ranks []Rank) []*link {
	links := make([]*link, 0, len(ranks))
	for _, rank := range ranks {
		if connected, ok := r.children[rank]; ok {
			links = append(links, connected.link)
		}
	}
	return links
}

// downstream buffers packets to the stream's participating children.
// It returns the links written so the caller can flush them.
func (r *router) downstream(id StreamID, packets []Packet) ([]*link, error) {
	r.mu.Lock()
	state, ok := r.routes[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("stream %d is not open at node %d", id, r.rank)
	}
	ranks := make([]Rank, 0, len(state.participants))
	for rank := range state.participants {
		ranks = append(ranks, rank)
	}
	sort.Slice(ranks, func(i, j int) bool { return ranks[i] < ranks[j] })
	links := r.linksFor(ranks)
	r.mu.Unlock()

	data := frame{Kind: frameData, Packets: packets}
	var errs []error
	for _, target := range links {
		if err := target.send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return links, errors.Join(errs...)
}

// flushAll flushes every child link.
func (r *router) flushAll() error {
	r.mu.Lock()
	links := make([]*link, 0, len(r.children))
	for _, connected := range r.children {
		links = append(links, connected.link)
	}
	r.mu.Unlock()

	var errs []error
	for _, target := range links {
		if err := target.flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// closeStream retires a stream here and below.
func (r *router) closeStream(id StreamID) {
	r.mu.Lock()
	state, ok := r.routes[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.routes, id)
	ranks := make([]Rank, 0, len(state.participants))
	for rank := range state.participants {
		ranks = append(ranks, rank)
	}
	links := r.linksFor(ranks)
	r.mu.Unlock()

	retire := frame{Kind: frameClose, Stream: &streamSpec{ID: id}}
	for _, target := range links {
		target.sendNow(retire)
	}
}

// backEnds returns every back-end rank reachable through this node.
func (r *router) backEnds() map[Rank]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make(map[Rank]struct{})
	for _, connected := range r.children {
		for rank := range connected.backEnds {
			all[rank] = struct{}{}
		}
	}
	return all
}

// shutdown tells every child the network is going away and closes the
// child links.
func (r *router) shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	links := make([]*link, 0, len(r.children))
	for _, connected := range r.children {
		links = append(links, connected.link)
	}
	r.mu.Unlock()

	for _, target := range links {
		target.sendNow(frame{Kind: frameShutdown})
		target.close()
	}
}
