// Package logging builds the per-node structured logger and renders
// the stable diagnostic line formats from the protocol's external
// interfaces on top of it.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// New builds a node-scoped sugared logger. The run command passes a
// zap.NewProduction logger.
func New(base *zap.Logger, nodeID uint16) *zap.SugaredLogger {
	return base.With(zap.Uint16("node_id", nodeID)).Sugar()
}

// SinkRecv logs the sink's data-arrival diagnostic.
// Format: "[sink] recv src=<id> hops=<n> temp=<d.d>"
func SinkRecv(l *zap.SugaredLogger, src, hops uint16, temp string) {
	l.Infow(fmt.Sprintf("[sink] recv src=%d hops=%d temp=%s", src, hops, temp),
		"src", src, "hops", hops, "temp", temp)
}

// ParentChange logs a new or changed parent.
// Format: "[route] parent=<id> (hop=<h> rssi=<r> prr=<p>%)"
func ParentChange(l *zap.SugaredLogger, id uint16, hop uint16, rssi int8, prrPercent float64) {
	l.Infow(fmt.Sprintf("[route] parent=%d (hop=%d rssi=%d prr=%.0f%%)", id, hop, rssi, prrPercent),
		"parent", id, "hop", hop, "rssi", rssi, "prr_percent", prrPercent)
}

// ParentExpired logs the aging-triggered parent reset.
// Format: "[aging] parent <id> expired; reset"
func ParentExpired(l *zap.SugaredLogger, id uint16) {
	l.Infow(fmt.Sprintf("[aging] parent %d expired; reset", id), "parent", id)
}

// HopHistogram logs the sink's per-hop delivery histogram.
// Format: "[hops] <c0> <c1> ... <c19>"
func HopHistogram(l *zap.SugaredLogger, counts []uint32) {
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = fmt.Sprintf("%d", c)
	}
	l.Infow(fmt.Sprintf("[hops] %s", strings.Join(parts, " ")), "counts", counts)
}

// NeighborRow is one line of the neighbor table dump.
type NeighborRow struct {
	ID      uint16
	Hop     uint16
	RSSI    int8
	TX      uint32
	Ack     uint32
	Percent float64
}

// NeighborDump logs a fixed-width neighbor table for diagnostics.
func NeighborDump(l *zap.SugaredLogger, rows []NeighborRow) {
	l.Infow("[neighbors] table dump", "count", len(rows))
	for _, r := range rows {
		l.Infow(fmt.Sprintf("%-5d %-4d %-5d %-6d %-6d %5.1f%%", r.ID, r.Hop, r.RSSI, r.TX, r.Ack, r.Percent),
			"id", r.ID, "hop", r.Hop, "rssi", r.RSSI, "tx", r.TX, "ack", r.Ack, "prr_percent", r.Percent)
	}
}
