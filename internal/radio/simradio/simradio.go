// Package simradio implements an in-memory radio medium used by the
// simulate command and by node-level tests: one Medium stands in for
// the air, gated by an internal/topology.Network so that frames only
// reach a destination when the scripted link is up at the current
// simulated time.
package simradio

import (
	"context"
	"sync"

	"github.com/kprusa/convergecast/internal/radio"
	"github.com/kprusa/convergecast/internal/topology"
)

// RSSIFunc returns the simulated signal strength of a link, queried at
// send time.
type RSSIFunc func(from, to uint16) int8

// DefaultRSSI reports a constant, plausible indoor RSSI for any link
// the topology reports as up.
func DefaultRSSI(uint16, uint16) int8 { return -55 }

// Medium is the shared in-memory air: every node registers one
// endpoint set per channel; Send on one fans out (broadcast) or
// targets one peer (unicast), respecting the topology and the current
// simulated time.
type Medium struct {
	mu    sync.Mutex
	net   *topology.Network
	now   func() int
	rssi  RSSIFunc
	peers map[uint16]map[int]radio.Receiver // node id -> channel -> receiver
}

// NewMedium builds a medium over the given topology and simulated
// clock. now is called once per Send to decide which links are up.
func NewMedium(net *topology.Network, now func() int, rssi RSSIFunc) *Medium {
	if rssi == nil {
		rssi = DefaultRSSI
	}
	return &Medium{
		net:   net,
		now:   now,
		rssi:  rssi,
		peers: make(map[uint16]map[int]radio.Receiver),
	}
}

func (m *Medium) register(id uint16, channel int, recv radio.Receiver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.peers[id] == nil {
		m.peers[id] = make(map[int]radio.Receiver)
	}
	m.peers[id][channel] = recv
}

func (m *Medium) unregister(id uint16, channel int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.peers[id]; ok {
		delete(ch, channel)
	}
}

// deliver delivers payload from id to every other node with a
// receiver open on channel, for which the topology reports an up link.
func (m *Medium) deliver(id uint16, channel int, payload []byte, dest *uint16) {
	m.mu.Lock()
	t := m.now()
	type target struct {
		id   uint16
		recv radio.Receiver
	}
	var targets []target
	for peerID, channels := range m.peers {
		if peerID == id {
			continue
		}
		if dest != nil && peerID != *dest {
			continue
		}
		recv, ok := channels[channel]
		if !ok {
			continue
		}
		if !m.net.Query(id, peerID, t) {
			continue
		}
		targets = append(targets, target{peerID, recv})
	}
	rssiFn, from := m.rssi, id
	m.mu.Unlock()

	for _, tg := range targets {
		tg.recv(radio.Frame{Payload: payload, From: from, RSSI: rssiFn(from, tg.id)})
	}
}

// endpoint holds the open/close bookkeeping shared by the broadcast and
// unicast endpoint flavors below.
type endpoint struct {
	medium  *Medium
	nodeID  uint16
	channel int
}

func (e *endpoint) open(_ context.Context, channel int, recv radio.Receiver) error {
	e.channel = channel
	e.medium.register(e.nodeID, channel, recv)
	return nil
}

func (e *endpoint) close() error {
	e.medium.unregister(e.nodeID, e.channel)
	return nil
}

// BroadcastEndpoint implements radio.Broadcaster over a Medium, scoped
// to one node id.
type BroadcastEndpoint struct{ endpoint }

// NewBroadcastEndpoint creates a beacon-channel endpoint for nodeID.
func NewBroadcastEndpoint(m *Medium, nodeID uint16) *BroadcastEndpoint {
	return &BroadcastEndpoint{endpoint{medium: m, nodeID: nodeID}}
}

func (e *BroadcastEndpoint) Open(ctx context.Context, channel int, recv radio.Receiver) error {
	return e.open(ctx, channel, recv)
}

func (e *BroadcastEndpoint) Close() error { return e.close() }

// Send broadcasts payload to every node with an open receiver on this
// endpoint's channel and an up link from this node.
func (e *BroadcastEndpoint) Send(_ context.Context, payload []byte) error {
	e.medium.deliver(e.nodeID, e.channel, payload, nil)
	return nil
}

// UnicastEndpoint implements radio.Unicaster over a Medium, scoped to
// one node id.
type UnicastEndpoint struct{ endpoint }

// NewUnicastEndpoint creates a data- or ACK-channel endpoint for nodeID.
func NewUnicastEndpoint(m *Medium, nodeID uint16) *UnicastEndpoint {
	return &UnicastEndpoint{endpoint{medium: m, nodeID: nodeID}}
}

func (e *UnicastEndpoint) Open(ctx context.Context, channel int, recv radio.Receiver) error {
	return e.open(ctx, channel, recv)
}

func (e *UnicastEndpoint) Close() error { return e.close() }

// Send unicasts payload to dest if the link is up.
func (e *UnicastEndpoint) Send(_ context.Context, payload []byte, dest uint16) error {
	e.medium.deliver(e.nodeID, e.channel, payload, &dest)
	return nil
}
