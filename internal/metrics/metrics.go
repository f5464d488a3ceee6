// Package metrics exposes the node's internal state to Prometheus,
// alongside the text diagnostics emitted by the stats task.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Set is one node's Prometheus collectors, all registered against a
// private registry so multiple simulated nodes in one process don't
// collide on metric names.
type Set struct {
	Registry *prometheus.Registry

	NeighborCount   prometheus.Gauge
	NeighborPRR     *prometheus.GaugeVec
	HopHistogram    *prometheus.CounterVec
	BeaconsSent     prometheus.Counter
	BeaconsAccepted prometheus.Counter
	BeaconsDropped  prometheus.Counter
	ParentChanges   prometheus.Counter
	DataSent        prometheus.Counter
	DataForwarded   prometheus.Counter
	AcksReceived    prometheus.Counter
}

// New builds and registers a fresh Set labeled with the owning node's
// id, so metrics from several simulated nodes can share a process.
func New(nodeID uint16) *Set {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"node_id": strconv.Itoa(int(nodeID))}

	s := &Set{
		Registry: reg,
		NeighborCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "convergecast_neighbor_count",
			Help:        "Number of occupied neighbor table slots.",
			ConstLabels: labels,
		}),
		NeighborPRR: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "convergecast_neighbor_prr",
			Help:        "Packet reception ratio per neighbor.",
			ConstLabels: labels,
		}, []string{"neighbor_id"}),
		HopHistogram: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "convergecast_sink_hop_total",
			Help:        "Delivered data frames bucketed by final hop count (sink only).",
			ConstLabels: labels,
		}, []string{"hops"}),
		BeaconsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "convergecast_beacons_sent_total", Help: "Beacons originated or rebroadcast.", ConstLabels: labels,
		}),
		BeaconsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "convergecast_beacons_accepted_total", Help: "Beacons accepted by the flood filter.", ConstLabels: labels,
		}),
		BeaconsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "convergecast_beacons_dropped_total", Help: "Beacons dropped as stale by the flood filter.", ConstLabels: labels,
		}),
		ParentChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "convergecast_parent_changes_total", Help: "Number of times next_hop changed.", ConstLabels: labels,
		}),
		DataSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "convergecast_data_sent_total", Help: "Data frames originated by this node.", ConstLabels: labels,
		}),
		DataForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "convergecast_data_forwarded_total", Help: "Data frames relayed on behalf of another node.", ConstLabels: labels,
		}),
		AcksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "convergecast_acks_received_total", Help: "ACKs received for our own transmissions.", ConstLabels: labels,
		}),
	}

	reg.MustRegister(
		s.NeighborCount, s.NeighborPRR, s.HopHistogram,
		s.BeaconsSent, s.BeaconsAccepted, s.BeaconsDropped,
		s.ParentChanges, s.DataSent, s.DataForwarded, s.AcksReceived,
	)
	return s
}
