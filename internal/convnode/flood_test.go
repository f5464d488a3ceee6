package convnode

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/kprusa/convergecast/internal/config"
	"github.com/kprusa/convergecast/internal/radio"
	"github.com/kprusa/convergecast/internal/wire"
)

// countingBroadcaster counts Send calls instead of delivering anywhere;
// used to verify the flood filter forwards at most once per sequence.
type countingBroadcaster struct {
	sent atomic.Int32
}

func (c *countingBroadcaster) Open(context.Context, int, radio.Receiver) error { return nil }
func (c *countingBroadcaster) Send(context.Context, []byte) error             { c.sent.Add(1); return nil }
func (c *countingBroadcaster) Close() error                                   { return nil }

type noopUnicaster struct{}

func (noopUnicaster) Open(context.Context, int, radio.Receiver) error    { return nil }
func (noopUnicaster) Send(context.Context, []byte, uint16) error         { return nil }
func (noopUnicaster) Close() error                                       { return nil }

func newIsolatedNode(id uint16, beacon radio.Broadcaster) *Node {
	cfg := config.Default()
	cfg.NodeID = id
	return New(cfg, Deps{
		Beacon: beacon,
		Data:   noopUnicaster{},
		Ack:    noopUnicaster{},
		Sensor: radio.SensorFunc(func() uint16 { return 0 }),
		Logger: zap.NewNop().Sugar(),
	})
}

func TestBeaconRebroadcastIsIdempotentPerSequence(t *testing.T) {
	bc := &countingBroadcaster{}
	node := newIsolatedNode(3, bc)

	b := wire.Beacon{AdvParent: 1, AdvHops: 1, AdvSeq: 7}
	frame := radio.Frame{Payload: b.Marshal(), From: 1, RSSI: -50}

	node.onBeacon(frame)
	node.onBeacon(frame) // duplicate, same sequence
	node.onBeacon(frame)

	assert.EqualValues(t, 1, bc.sent.Load())
}

func TestBeaconRebroadcastAdvancesOnNewSequence(t *testing.T) {
	bc := &countingBroadcaster{}
	node := newIsolatedNode(3, bc)

	node.onBeacon(radio.Frame{Payload: wire.Beacon{AdvParent: 1, AdvHops: 1, AdvSeq: 1}.Marshal(), From: 1, RSSI: -50})
	node.onBeacon(radio.Frame{Payload: wire.Beacon{AdvParent: 1, AdvHops: 1, AdvSeq: 1}.Marshal(), From: 1, RSSI: -50})
	node.onBeacon(radio.Frame{Payload: wire.Beacon{AdvParent: 1, AdvHops: 1, AdvSeq: 2}.Marshal(), From: 1, RSSI: -50})

	assert.EqualValues(t, 2, bc.sent.Load())
}

func TestFirstBeaconBootstrapsParent(t *testing.T) {
	bc := &countingBroadcaster{}
	node := newIsolatedNode(3, bc)

	node.onBeacon(radio.Frame{Payload: wire.Beacon{AdvParent: 5, AdvHops: 2, AdvSeq: 1}.Marshal(), From: 5, RSSI: -50})

	assert.Equal(t, uint16(5), node.NextHop())
}

func TestDataSeqIsStrictlyIncreasing(t *testing.T) {
	cfg := config.Default()
	cfg.NodeID = 2
	node := New(cfg, Deps{
		Beacon: &countingBroadcaster{},
		Data:   noopUnicaster{},
		Ack:    noopUnicaster{},
		Sensor: radio.SensorFunc(func() uint16 { return 0 }),
		Logger: zap.NewNop().Sugar(),
	})
	node.nextHop = 9 // pretend we already have a parent

	var last uint16
	var mu sync.Mutex
	for i := 0; i < 20; i++ {
		node.sendData(context.Background())
		mu.Lock()
		cur := node.dataSeq
		assert.Greater(t, cur, last)
		last = cur
		mu.Unlock()
	}
}
