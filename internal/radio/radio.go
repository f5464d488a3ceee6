// Package radio defines the external link-layer interfaces this module
// consumes: broadcast and unicast send/receive primitives and the RSSI
// attribute of the most recently received frame. Production nodes wire
// these to a real radio driver; internal/radio/simradio backs the
// simulate command and the node package's tests.
package radio

import "context"

// Frame is a received payload plus its link-layer metadata.
type Frame struct {
	Payload []byte
	From    uint16
	RSSI    int8
}

// Receiver is invoked by the transport for every inbound frame. It runs
// in the transport's event context; per the protocol's concurrency
// model, receive callbacks never interleave with each other or with
// the task that is mutating shared state at the time.
type Receiver func(Frame)

// Broadcaster is the beacon channel: open once, send payloads to every
// neighbor in range, close on shutdown.
type Broadcaster interface {
	Open(ctx context.Context, channel int, recv Receiver) error
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Unicaster is a data or ACK channel: open once, send to one
// destination address at a time.
type Unicaster interface {
	Open(ctx context.Context, channel int, recv Receiver) error
	Send(ctx context.Context, payload []byte, dest uint16) error
	Close() error
}

// Sensor returns a 16-bit raw sample on demand. Stubbed in tests and in
// the simulate harness; backed by a real driver in production.
type Sensor interface {
	Sample() uint16
}

// SensorFunc adapts a function to the Sensor interface.
type SensorFunc func() uint16

func (f SensorFunc) Sample() uint16 { return f() }

// Indicator is the LED/debug sink; it never participates in the
// protocol and may be stubbed freely.
type Indicator interface {
	Blink()
}

// NoopIndicator discards blinks.
type NoopIndicator struct{}

func (NoopIndicator) Blink() {}
