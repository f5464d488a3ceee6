// Package convnode implements one node's convergecast kernel: the
// beacon task, data task, selection task, and stats task sharing a
// neighbor table, parent pointer, sequence counters, and (on the sink)
// a hop histogram. Receive callbacks and task bodies are serialized by
// a single mutex, matching the cooperative single-threaded model the
// protocol assumes (see design notes on concurrency).
package convnode

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kprusa/convergecast/internal/config"
	"github.com/kprusa/convergecast/internal/logging"
	"github.com/kprusa/convergecast/internal/metrics"
	"github.com/kprusa/convergecast/internal/neighbor"
	"github.com/kprusa/convergecast/internal/policy"
	"github.com/kprusa/convergecast/internal/radio"
	"github.com/kprusa/convergecast/internal/temperature"
	"github.com/kprusa/convergecast/internal/wire"
)

func itoa(v uint16) string { return strconv.Itoa(int(v)) }

func tempString(raw uint16) string { return temperature.String(raw) }

// Deps collects every external collaborator a Node needs: radio
// endpoints, the sensor driver, an LED sink, a logger, and a clock. All
// are stubbable for tests.
type Deps struct {
	Beacon    radio.Broadcaster
	Data      radio.Unicaster
	Ack       radio.Unicaster
	Sensor    radio.Sensor
	Indicator radio.Indicator
	Logger    *zap.SugaredLogger
	Metrics   *metrics.Set
	// Now returns the current time; defaults to time.Now. Tests inject a
	// fake clock to drive aging deterministically.
	Now func() time.Time
}

// Node runs the convergecast kernel for a single node.
type Node struct {
	id  uint16
	cfg config.Config

	mu        sync.Mutex
	table     *neighbor.Table
	nextHop   uint16
	dataSeq   uint16
	discSeq   uint16
	prevSeen  uint16
	hopHist   []uint32

	deps Deps
	now  func() time.Time
}

// New builds a Node. cfg.NodeID decides sink-vs-forwarder role.
func New(cfg config.Config, deps Deps) *Node {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if deps.Indicator == nil {
		deps.Indicator = radio.NoopIndicator{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	return &Node{
		id:      cfg.NodeID,
		cfg:     cfg,
		table:   neighbor.New(cfg.NeighborCapacity, now),
		hopHist: make([]uint32, cfg.HopsMax),
		deps:    deps,
		now:     now,
	}
}

// IsSink reports whether this node is the network's sink.
func (n *Node) IsSink() bool { return n.id == config.SinkID }

// NextHop returns the current parent pointer (0 = none).
func (n *Node) NextHop() uint16 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nextHop
}

// HopHistogram returns a snapshot of the sink's delivery histogram.
func (n *Node) HopHistogram() []uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]uint32, len(n.hopHist))
	copy(out, n.hopHist)
	return out
}

// NeighborEntries returns a snapshot of the neighbor table.
func (n *Node) NeighborEntries() []neighbor.Entry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.table.Entries()
}

// Run opens the radio endpoints and drives the four periodic tasks
// until ctx is canceled.
func (n *Node) Run(ctx context.Context) error {
	if err := n.deps.Beacon.Open(ctx, wire.ChannelBeacon, n.onBeacon); err != nil {
		return err
	}
	defer n.deps.Beacon.Close()
	if err := n.deps.Data.Open(ctx, wire.ChannelData, n.onData); err != nil {
		return err
	}
	defer n.deps.Data.Close()
	if err := n.deps.Ack.Open(ctx, wire.ChannelAck, n.onAck); err != nil {
		return err
	}
	defer n.deps.Ack.Close()

	var wg sync.WaitGroup
	if n.IsSink() {
		wg.Add(1)
		go func() { defer wg.Done(); n.beaconTask(ctx) }()
	} else {
		wg.Add(2)
		go func() { defer wg.Done(); n.dataTask(ctx) }()
		go func() { defer wg.Done(); n.selectionTask(ctx) }()
	}
	wg.Add(1)
	go func() { defer wg.Done(); n.statsTask(ctx) }()

	wg.Wait()
	return nil
}

func (n *Node) lock()   { n.mu.Lock() }
func (n *Node) unlock() { n.mu.Unlock() }

// --- beacon task (sink only) ---------------------------------------

func (n *Node) beaconTask(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(n.cfg.StartupWait):
	}

	ticker := time.NewTicker(n.cfg.BeaconPeriod)
	defer ticker.Stop()
	for {
		n.originateBeacon(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (n *Node) originateBeacon(ctx context.Context) {
	n.lock()
	n.discSeq++
	b := wire.Beacon{AdvParent: config.SinkID, AdvHops: 1, AdvSeq: n.discSeq}
	n.unlock()

	if err := n.deps.Beacon.Send(ctx, b.Marshal()); err != nil {
		n.deps.Logger.Infow("beacon send failed", "err", err)
	}
	n.deps.Indicator.Blink()
	if n.deps.Metrics != nil {
		n.deps.Metrics.BeaconsSent.Inc()
	}
}

// onBeacon implements the non-sink beacon receive path.
func (n *Node) onBeacon(f radio.Frame) {
	if n.IsSink() {
		return
	}
	b, err := wire.UnmarshalBeacon(f.Payload)
	if err != nil {
		return
	}

	n.lock()
	n.table.Upsert(b.AdvParent, f.RSSI, b.AdvHops)

	firstEver := n.prevSeen == 0
	accept := firstEver || b.AdvSeq > n.prevSeen
	if !accept {
		n.unlock()
		if n.deps.Metrics != nil {
			n.deps.Metrics.BeaconsDropped.Inc()
		}
		return
	}
	n.prevSeen = b.AdvSeq
	fwd := wire.Beacon{AdvParent: n.id, AdvHops: b.AdvHops + 1, AdvSeq: b.AdvSeq}
	n.unlock()

	if n.deps.Metrics != nil {
		n.deps.Metrics.BeaconsAccepted.Inc()
	}
	if firstEver {
		n.parentSet(b.AdvParent)
	}

	if err := n.deps.Beacon.Send(context.Background(), fwd.Marshal()); err != nil {
		n.deps.Logger.Infow("beacon rebroadcast failed", "err", err)
		return
	}
	if n.deps.Metrics != nil {
		n.deps.Metrics.BeaconsSent.Inc()
	}
}

// parentSet updates next_hop if it changed and logs the transition.
func (n *Node) parentSet(id uint16) {
	n.lock()
	if id == n.nextHop {
		n.unlock()
		return
	}
	n.nextHop = id
	idx := n.table.Find(id)
	var hop uint16
	var rssi int8
	var prr float64
	if idx >= 0 {
		e := n.table.At(idx)
		hop, rssi, prr = e.HopsVia, e.RSSI, e.PRR
	}
	n.unlock()

	if n.deps.Metrics != nil {
		n.deps.Metrics.ParentChanges.Inc()
	}
	logging.ParentChange(n.deps.Logger, id, hop, rssi, prr*100)
}

// --- selection task (non-sink only) ---------------------------------

func (n *Node) selectionTask(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.ReselectPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.expireAndReselect()
		}
	}
}

func (n *Node) expireAndReselect() {
	n.lock()
	res := n.table.Expire(n.cfg.NeighborTTL, n.nextHop)
	parentExpiredID := n.nextHop
	if res.ParentExpired {
		n.nextHop = 0
	}
	n.unlock()

	if res.ParentExpired {
		logging.ParentExpired(n.deps.Logger, parentExpiredID)
	}

	n.lock()
	entries := n.table.Entries()
	n.unlock()

	id, ok := policy.Select(entries, policy.Kind(n.cfg.Policy), n.cfg.PRRMinSamples)
	if ok {
		n.parentSet(id)
	}
}

// --- data task (non-sink only) ---------------------------------------

func (n *Node) dataTask(ctx context.Context) {
	desync := desyncOffset(n.id, n.cfg.DataPeriod)
	select {
	case <-ctx.Done():
		return
	case <-time.After(desync):
	}

	ticker := time.NewTicker(n.cfg.DataPeriod)
	defer ticker.Stop()
	for {
		n.sendData(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// desyncOffset implements the "id mod T_DATA seconds" startup spread:
// id is a count of seconds, wrapped into the data period.
func desyncOffset(id uint16, period time.Duration) time.Duration {
	if period <= 0 {
		return 0
	}
	return (time.Duration(id) * time.Second) % period
}

func (n *Node) sendData(ctx context.Context) {
	n.lock()
	nh := n.nextHop
	if nh == 0 {
		n.unlock()
		return
	}
	n.dataSeq++
	d := wire.Data{Src: n.id, Hops: 1, TempRaw: n.deps.Sensor.Sample(), DataID: n.dataSeq}
	n.unlock()

	if err := n.deps.Data.Send(ctx, d.Marshal(), nh); err != nil {
		n.deps.Logger.Infow("data send failed", "err", err, "next_hop", nh)
	}
	n.lock()
	n.table.PRRBump(nh, false)
	n.unlock()
	if n.deps.Metrics != nil {
		n.deps.Metrics.DataSent.Inc()
	}
}

// onData implements the relay/sink data receive path: ACK immediately,
// then either record delivery (sink) or forward (relay).
func (n *Node) onData(f radio.Frame) {
	d, err := wire.UnmarshalData(f.Payload)
	if err != nil {
		return
	}

	ack := wire.Ack{AckFrom: n.id, DataID: d.DataID, OK: 1}
	if err := n.deps.Ack.Send(context.Background(), ack.Marshal(), f.From); err != nil {
		n.deps.Logger.Infow("ack send failed", "err", err, "to", f.From)
	}

	n.lock()
	n.table.TouchID(f.From)
	n.unlock()

	if n.IsSink() {
		n.recordDelivery(d)
		return
	}
	n.forwardData(context.Background(), d, f.From)
}

func (n *Node) recordDelivery(d wire.Data) {
	n.lock()
	if int(d.Hops) < len(n.hopHist) {
		n.hopHist[d.Hops]++
	}
	n.unlock()

	if n.deps.Metrics != nil && int(d.Hops) < len(n.hopHist) {
		n.deps.Metrics.HopHistogram.WithLabelValues(itoa(d.Hops)).Inc()
	}
	logging.SinkRecv(n.deps.Logger, d.Src, d.Hops, tempString(d.TempRaw))
}

func (n *Node) forwardData(ctx context.Context, d wire.Data, from uint16) {
	n.lock()
	nh := n.nextHop
	n.unlock()
	if nh == 0 {
		return
	}
	// Guard against forwarding straight back to the sender: safe under
	// PICK_HOP's tree shape, but RSSI/PRR policies can pick a parent
	// that happens to be the node we just heard from.
	if nh == from {
		return
	}

	d.Hops++
	if err := n.deps.Data.Send(ctx, d.Marshal(), nh); err != nil {
		n.deps.Logger.Infow("data forward failed", "err", err, "next_hop", nh)
	}
	n.lock()
	n.table.PRRBump(nh, false)
	n.unlock()
	if n.deps.Metrics != nil {
		n.deps.Metrics.DataForwarded.Inc()
	}
}

// onAck implements the ACK receive path, shared by source and relay.
func (n *Node) onAck(f radio.Frame) {
	a, err := wire.UnmarshalAck(f.Payload)
	if err != nil {
		return
	}
	_ = a // DataID is informational only, per spec

	n.lock()
	n.table.PRRBump(f.From, true)
	n.table.TouchID(f.From)
	n.unlock()

	if n.deps.Metrics != nil {
		n.deps.Metrics.AcksReceived.Inc()
	}
}

// --- stats task --------------------------------------------------------

func (n *Node) statsTask(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.PrintPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.printStats()
		}
	}
}

func (n *Node) printStats() {
	if n.IsSink() {
		logging.HopHistogram(n.deps.Logger, n.HopHistogram())
		return
	}

	entries := n.NeighborEntries()
	rows := make([]logging.NeighborRow, len(entries))
	for i, e := range entries {
		rows[i] = logging.NeighborRow{ID: e.ID, Hop: e.HopsVia, RSSI: e.RSSI, TX: e.TX, Ack: e.RXAck, Percent: e.PRR * 100}
	}
	logging.NeighborDump(n.deps.Logger, rows)

	if n.deps.Metrics != nil {
		n.deps.Metrics.NeighborCount.Set(float64(len(entries)))
		for _, e := range entries {
			n.deps.Metrics.NeighborPRR.WithLabelValues(itoa(e.ID)).Set(e.PRR)
		}
	}
}
