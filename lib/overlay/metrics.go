// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the Prometheus collectors of one overlay node. A nil
// *metrics records nothing.
type metrics struct {
	rank            string
	packetsSent     *prometheus.CounterVec
	packetsReceived *prometheus.CounterVec
	backEnds        *prometheus.GaugeVec
	nodesLost       *prometheus.CounterVec
}

// newMetrics registers the overlay collectors on registerer, labelled
// with the node's rank. Nodes of one process may share a registerer;
// collectors already registered by a sibling are reused.
func newMetrics(registerer prometheus.Registerer, rank Rank) (*metrics, error) {
	if registerer == nil {
		return nil, nil
	}

	m := &metrics{
		rank: strconv.Itoa(int(rank)),
		packetsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gladius",
			Subsystem: "overlay",
			Name:      "packets_sent_total",
			Help:      "Packets sent by this node, by direction",
		}, []string{"rank", "direction"}),
		packetsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gladius",
			Subsystem: "overlay",
			Name:      "packets_received_total",
			Help:      "Packets delivered to a local stream consumer",
		}, []string{"rank"}),
		backEnds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gladius",
			Subsystem: "overlay",
			Name:      "connected_back_ends",
			Help:      "Unique back ends that completed their join",
		}, []string{"rank"}),
		nodesLost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gladius",
			Subsystem: "overlay",
			Name:      "nodes_lost_total",
			Help:      "Child links that broke",
		}, []string{"rank"}),
	}

	var err error
	if m.packetsSent, err = register(registerer, m.packetsSent); err != nil {
		return nil, err
	}
	if m.packetsReceived, err = register(registerer, m.packetsReceived); err != nil {
		return nil, err
	}
	if m.backEnds, err = register(registerer, m.backEnds); err != nil {
		return nil, err
	}
	if m.nodesLost, err = register(registerer, m.nodesLost); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers collector, or returns the equivalent collector
// already registered.
func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) (C, error) {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return collector, err
	}
	return collector, nil
}

func (m *metrics) sent(direction string, count int) {
	if m == nil {
		return
	}
	m.packetsSent.WithLabelValues(m.rank, direction).Add(float64(count))
}

func (m *metrics) received(count int) {
	if m == nil {
		return
	}
	m.packetsReceived.WithLabelValues(m.rank).Add(float64(count))
}

func (m *metrics) connected(count int) {
	if m == nil {
		return
	}
	m.backEnds.WithLabelValues(m.rank).Set(float64(count))
}

func (m *metrics) lost() {
	if m == nil {
		return
	}
	m.nodesLost.WithLabelValues(m.rank).Inc()
}
