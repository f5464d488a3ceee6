// Package simharness wires several convnode.Node instances to a shared
// simradio.Medium gated by an internal/topology.Network, so the
// concrete scenarios in the protocol's test suite can run as an
// in-process simulation instead of only being descriptive prose. It is
// pure test/demo tooling: it does not change on-wire behavior.
package simharness

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kprusa/convergecast/internal/config"
	"github.com/kprusa/convergecast/internal/convnode"
	"github.com/kprusa/convergecast/internal/metrics"
	"github.com/kprusa/convergecast/internal/radio"
	"github.com/kprusa/convergecast/internal/radio/simradio"
	"github.com/kprusa/convergecast/internal/topology"
)

// SimClock advances a simulated-seconds counter on a real ticker,
// independent of each node's own wall-clock task timers. The topology
// script's link-state times are expressed in this simulated-second
// space.
type SimClock struct {
	seconds atomic.Int64
}

// Now returns the current simulated second.
func (c *SimClock) Now() int { return int(c.seconds.Load()) }

// Run advances the clock by one simulated second every tick, until ctx
// is canceled.
func (c *SimClock) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.seconds.Add(1)
		}
	}
}

// NodeSpec configures one simulated node.
type NodeSpec struct {
	ID     uint16
	Sensor radio.Sensor
	Config config.Config // NodeID is overwritten with ID
}

// Harness runs a fleet of nodes sharing one simulated medium.
type Harness struct {
	Clock  *SimClock
	Medium *simradio.Medium
	Nodes  map[uint16]*convnode.Node
	Metrics map[uint16]*metrics.Set
}

// New builds a harness over the given topology script and node specs.
// logger, if nil, discards all node diagnostics.
func New(net *topology.Network, specs []NodeSpec, logger *zap.Logger) *Harness {
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := &SimClock{}
	medium := simradio.NewMedium(net, clock.Now, simradio.DefaultRSSI)

	h := &Harness{
		Clock:   clock,
		Medium:  medium,
		Nodes:   make(map[uint16]*convnode.Node),
		Metrics: make(map[uint16]*metrics.Set),
	}

	for _, spec := range specs {
		cfg := spec.Config
		cfg.NodeID = spec.ID
		ms := metrics.New(spec.ID)
		h.Metrics[spec.ID] = ms

		deps := convnode.Deps{
			Beacon:  simradio.NewBroadcastEndpoint(medium, spec.ID),
			Data:    simradio.NewUnicastEndpoint(medium, spec.ID),
			Ack:     simradio.NewUnicastEndpoint(medium, spec.ID),
			Sensor:  spec.Sensor,
			Logger:  logging(logger, spec.ID),
			Metrics: ms,
		}
		h.Nodes[spec.ID] = convnode.New(cfg, deps)
	}
	return h
}

func logging(base *zap.Logger, id uint16) *zap.SugaredLogger {
	return base.With(zap.Uint16("node_id", id)).Sugar()
}

// Run starts the simulated clock and every node's tasks; it returns
// when ctx is canceled.
func (h *Harness) Run(ctx context.Context, clockTick time.Duration) {
	go h.Clock.Run(ctx, clockTick)
	for _, node := range h.Nodes {
		node := node
		go node.Run(ctx)
	}
	<-ctx.Done()
}
