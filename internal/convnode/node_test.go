package convnode

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kprusa/convergecast/internal/config"
	"github.com/kprusa/convergecast/internal/radio"
	"github.com/kprusa/convergecast/internal/radio/simradio"
	"github.com/kprusa/convergecast/internal/topology"
)

func testConfig(id uint16) config.Config {
	cfg := config.Default()
	cfg.NodeID = id
	cfg.StartupWait = 0
	cfg.BeaconPeriod = 30 * time.Millisecond
	cfg.DataPeriod = 40 * time.Millisecond
	cfg.ReselectPeriod = 15 * time.Millisecond
	cfg.PrintPeriod = time.Hour
	cfg.NeighborTTL = 150 * time.Millisecond
	cfg.Policy = config.PolicyHop
	return cfg
}

func sensorValue(v uint16) radio.Sensor {
	return radio.SensorFunc(func() uint16 { return v })
}

func spawnNode(t *testing.T, medium *simradio.Medium, cfg config.Config) *Node {
	t.Helper()
	deps := Deps{
		Beacon: simradio.NewBroadcastEndpoint(medium, cfg.NodeID),
		Data:   simradio.NewUnicastEndpoint(medium, cfg.NodeID),
		Ack:    simradio.NewUnicastEndpoint(medium, cfg.NodeID),
		Sensor: sensorValue(6000),
		Logger: zap.NewNop().Sugar(),
	}
	return New(cfg, deps)
}

func runNodes(ctx context.Context, nodes ...*Node) {
	for _, n := range nodes {
		n := n
		go n.Run(ctx)
	}
}

// alwaysUpNetwork links every pair of the given ids bidirectionally from
// time zero onward.
func alwaysUpNetwork(t *testing.T, pairs [][2]uint16) *topology.Network {
	t.Helper()
	var sb strings.Builder
	for _, p := range pairs {
		sb.WriteString("0 " + idStr(p[0]) + " " + idStr(p[1]) + " up\n")
		sb.WriteString("0 " + idStr(p[1]) + " " + idStr(p[0]) + " up\n")
	}
	net, err := topology.New(strings.NewReader(sb.String()))
	require.NoError(t, err)
	return net
}

func TestTwoNodeLineConverges(t *testing.T) {
	net := alwaysUpNetwork(t, [][2]uint16{{1, 2}})
	simClock := 0
	medium := simradio.NewMedium(net, func() int { return simClock }, simradio.DefaultRSSI)

	sink := spawnNode(t, medium, testConfig(1))
	node2 := spawnNode(t, medium, testConfig(2))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	runNodes(ctx, sink, node2)

	require.Eventually(t, func() bool {
		return node2.NextHop() == 1
	}, time.Second, 5*time.Millisecond)

	idx := node2.table.Find(1)
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, uint16(1), node2.table.At(idx).HopsVia)

	require.Eventually(t, func() bool {
		h := sink.HopHistogram()
		return len(h) > 1 && h[1] >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestThreeNodeLineHopsAccumulate(t *testing.T) {
	net := alwaysUpNetwork(t, [][2]uint16{{1, 2}, {2, 3}})
	simClock := 0
	medium := simradio.NewMedium(net, func() int { return simClock }, simradio.DefaultRSSI)

	sink := spawnNode(t, medium, testConfig(1))
	node2 := spawnNode(t, medium, testConfig(2))
	node3 := spawnNode(t, medium, testConfig(3))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	runNodes(ctx, sink, node2, node3)

	require.Eventually(t, func() bool {
		return node3.NextHop() == 2
	}, time.Second, 5*time.Millisecond)

	idx := node3.table.Find(2)
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, uint16(2), node3.table.At(idx).HopsVia)

	require.Eventually(t, func() bool {
		h := sink.HopHistogram()
		return len(h) > 2 && h[2] >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestAgingResetsExpiredParent(t *testing.T) {
	net := alwaysUpNetwork(t, [][2]uint16{{1, 2}})
	simClock := 0
	medium := simradio.NewMedium(net, func() int { return simClock }, simradio.DefaultRSSI)

	sink := spawnNode(t, medium, testConfig(1))
	cfg2 := testConfig(2)
	node2 := spawnNode(t, medium, cfg2)

	sinkCtx, cancelSink := context.WithCancel(context.Background())
	nodeCtx, cancelNode := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelNode()
	go sink.Run(sinkCtx)
	go node2.Run(nodeCtx)

	require.Eventually(t, func() bool { return node2.NextHop() == 1 }, time.Second, 5*time.Millisecond)

	// Stop the sink's beacons; node2's parent entry should age out.
	cancelSink()

	require.Eventually(t, func() bool { return node2.NextHop() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestTemperatureRenderingAtDelivery(t *testing.T) {
	net := alwaysUpNetwork(t, [][2]uint16{{1, 2}})
	simClock := 0
	medium := simradio.NewMedium(net, func() int { return simClock }, simradio.DefaultRSSI)

	cfg1 := testConfig(1)
	sink := spawnNode(t, medium, cfg1)
	cfg2 := testConfig(2)
	node2 := spawnNode(t, medium, cfg2)
	node2.deps.Sensor = sensorValue(6000)
	core, logs := observer.New(zapcore.InfoLevel)
	sink.deps.Logger = zap.New(core).Sugar()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	runNodes(ctx, sink, node2)

	require.Eventually(t, func() bool {
		h := sink.HopHistogram()
		return len(h) > 1 && h[1] >= 1
	}, time.Second, 5*time.Millisecond)

	// raw 6000 renders as 20.4 in the sink's delivery line
	require.Eventually(t, func() bool {
		return logs.FilterMessage("[sink] recv src=2 hops=1 temp=20.4").Len() >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestPRRAccountingOnDataSend(t *testing.T) {
	net := alwaysUpNetwork(t, [][2]uint16{{1, 2}})
	simClock := 0
	medium := simradio.NewMedium(net, func() int { return simClock }, simradio.DefaultRSSI)

	sink := spawnNode(t, medium, testConfig(1))
	node2 := spawnNode(t, medium, testConfig(2))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	runNodes(ctx, sink, node2)

	require.Eventually(t, func() bool { return node2.NextHop() == 1 }, time.Second, 5*time.Millisecond)

	node2.sendData(context.Background())
	time.Sleep(20 * time.Millisecond)

	idx := node2.table.Find(1)
	require.GreaterOrEqual(t, idx, 0)
	e := node2.table.At(idx)
	assert.GreaterOrEqual(t, e.TX, uint32(1))
	assert.Equal(t, e.RXAck, e.TX)
}

func idStr(v uint16) string {
	return string(rune('0' + v%10)) // ids used in tests are always single digit
}
