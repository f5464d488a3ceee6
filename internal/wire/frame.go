// Package wire encodes and decodes the three convergecast frame types on
// the byte layouts fixed by the protocol: little-endian, packed, no
// padding. Every multi-byte field is two bytes wide except Ack.OK.
package wire

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Channel numbers distinguish the three radio endpoints a node opens.
const (
	ChannelBeacon = 128
	ChannelData   = 140
	ChannelAck    = 142
)

// Beacon advertises a hop distance from the sink.
type Beacon struct {
	AdvParent uint16
	AdvHops   uint16
	AdvSeq    uint16
}

const beaconLen = 6

// Marshal encodes the beacon to its wire representation.
func (b Beacon) Marshal() []byte {
	buf := make([]byte, beaconLen)
	binary.LittleEndian.PutUint16(buf[0:2], b.AdvParent)
	binary.LittleEndian.PutUint16(buf[2:4], b.AdvHops)
	binary.LittleEndian.PutUint16(buf[4:6], b.AdvSeq)
	return buf
}

// UnmarshalBeacon decodes a beacon frame.
func UnmarshalBeacon(p []byte) (Beacon, error) {
	if len(p) != beaconLen {
		return Beacon{}, errors.Errorf("beacon: want %d bytes, got %d", beaconLen, len(p))
	}
	return Beacon{
		AdvParent: binary.LittleEndian.Uint16(p[0:2]),
		AdvHops:   binary.LittleEndian.Uint16(p[2:4]),
		AdvSeq:    binary.LittleEndian.Uint16(p[4:6]),
	}, nil
}

// Data carries one sample hop by hop toward the sink.
type Data struct {
	Src     uint16
	Hops    uint16
	TempRaw uint16
	DataID  uint16
}

const dataLen = 8

// Marshal encodes the data frame to its wire representation.
func (d Data) Marshal() []byte {
	buf := make([]byte, dataLen)
	binary.LittleEndian.PutUint16(buf[0:2], d.Src)
	binary.LittleEndian.PutUint16(buf[2:4], d.Hops)
	binary.LittleEndian.PutUint16(buf[4:6], d.TempRaw)
	binary.LittleEndian.PutUint16(buf[6:8], d.DataID)
	return buf
}

// UnmarshalData decodes a data frame.
func UnmarshalData(p []byte) (Data, error) {
	if len(p) != dataLen {
		return Data{}, errors.Errorf("data: want %d bytes, got %d", dataLen, len(p))
	}
	return Data{
		Src:     binary.LittleEndian.Uint16(p[0:2]),
		Hops:    binary.LittleEndian.Uint16(p[2:4]),
		TempRaw: binary.LittleEndian.Uint16(p[4:6]),
		DataID:  binary.LittleEndian.Uint16(p[6:8]),
	}, nil
}

// Ack acknowledges a single data frame by ID.
type Ack struct {
	AckFrom uint16
	DataID  uint16
	OK      uint8
}

const ackLen = 5

// Marshal encodes the ack frame to its wire representation.
func (a Ack) Marshal() []byte {
	buf := make([]byte, ackLen)
	binary.LittleEndian.PutUint16(buf[0:2], a.AckFrom)
	binary.LittleEndian.PutUint16(buf[2:4], a.DataID)
	buf[4] = a.OK
	return buf
}

// UnmarshalAck decodes an ack frame.
func UnmarshalAck(p []byte) (Ack, error) {
	if len(p) != ackLen {
		return Ack{}, errors.Errorf("ack: want %d bytes, got %d", ackLen, len(p))
	}
	return Ack{
		AckFrom: binary.LittleEndian.Uint16(p[0:2]),
		DataID:  binary.LittleEndian.Uint16(p[2:4]),
		OK:      p[4],
	}, nil
}

// Equal reports whether two encoded frames are byte-identical.
func Equal(a, b []byte) bool {
	return bytes.Equal(a, b)
}
