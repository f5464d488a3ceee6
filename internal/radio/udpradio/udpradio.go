// Package udpradio backs the radio interfaces with plain UDP sockets,
// so the "run" CLI command has a concrete transport to exercise on a
// local network or between containers when no real radio driver is
// wired in. It cannot report a meaningful RSSI (UDP carries none), so
// every received frame reports RSSI 0; callers relying on RSSI-based
// parent selection should prefer a real radio transport.
package udpradio

import (
	"context"
	"encoding/binary"
	"net"

	"github.com/pkg/errors"

	"github.com/kprusa/convergecast/internal/radio"
)

// PeerMap resolves a node id to the UDP address it listens on for
// unicast traffic.
type PeerMap map[uint16]*net.UDPAddr

// Broadcast implements radio.Broadcaster over a UDP multicast group.
type Broadcast struct {
	selfID uint16
	group  *net.UDPAddr
	conn   *net.UDPConn
	done   chan struct{}
}

// NewBroadcast builds a broadcast endpoint bound to the given
// multicast group (e.g. "239.0.0.1:9128").
func NewBroadcast(selfID uint16, group string) (*Broadcast, error) {
	addr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		return nil, errors.Wrap(err, "resolve multicast group")
	}
	return &Broadcast{selfID: selfID, group: addr}, nil
}

func (b *Broadcast) Open(ctx context.Context, channel int, recv radio.Receiver) error {
	conn, err := net.ListenMulticastUDP("udp4", nil, b.group)
	if err != nil {
		return errors.Wrap(err, "listen multicast")
	}
	b.conn = conn
	b.done = make(chan struct{})
	go b.readLoop(recv)
	go func() {
		<-ctx.Done()
		_ = b.Close()
	}()
	return nil
}

func (b *Broadcast) readLoop(recv radio.Receiver) {
	buf := make([]byte, 2048)
	for {
		n, src, err := b.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-b.done:
				return
			default:
			}
			return
		}
		payload, from, ok := decodeEnvelope(buf[:n])
		if !ok || from == b.selfID {
			continue
		}
		_ = src
		recv(radio.Frame{Payload: payload, From: from, RSSI: 0})
	}
}

func (b *Broadcast) Send(_ context.Context, payload []byte) error {
	conn, err := net.DialUDP("udp4", nil, b.group)
	if err != nil {
		return errors.Wrap(err, "dial multicast group")
	}
	defer conn.Close()
	_, err = conn.Write(encodeEnvelope(payload, b.selfID))
	return err
}

func (b *Broadcast) Close() error {
	if b.done != nil {
		close(b.done)
		b.done = nil
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// Unicast implements radio.Unicaster over point-to-point UDP sockets.
type Unicast struct {
	selfID uint16
	local  *net.UDPAddr
	peers  PeerMap
	conn   *net.UDPConn
	done   chan struct{}
}

// NewUnicast builds a unicast endpoint for selfID, listening on local
// and resolving destinations through peers.
func NewUnicast(selfID uint16, local string, peers PeerMap) (*Unicast, error) {
	addr, err := net.ResolveUDPAddr("udp4", local)
	if err != nil {
		return nil, errors.Wrap(err, "resolve local addr")
	}
	return &Unicast{selfID: selfID, local: addr, peers: peers}, nil
}

func (u *Unicast) Open(ctx context.Context, channel int, recv radio.Receiver) error {
	conn, err := net.ListenUDP("udp4", u.local)
	if err != nil {
		return errors.Wrap(err, "listen udp")
	}
	u.conn = conn
	u.done = make(chan struct{})
	go u.readLoop(recv)
	go func() {
		<-ctx.Done()
		_ = u.Close()
	}()
	return nil
}

func (u *Unicast) readLoop(recv radio.Receiver) {
	buf := make([]byte, 2048)
	for {
		n, _, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-u.done:
				return
			default:
			}
			return
		}
		payload, from, ok := decodeEnvelope(buf[:n])
		if !ok {
			continue
		}
		recv(radio.Frame{Payload: payload, From: from, RSSI: 0})
	}
}

func (u *Unicast) Send(_ context.Context, payload []byte, dest uint16) error {
	addr, ok := u.peers[dest]
	if !ok {
		return errors.Errorf("udpradio: no known address for node %d", dest)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return errors.Wrap(err, "dial peer")
	}
	defer conn.Close()
	_, err = conn.Write(encodeEnvelope(payload, u.selfID))
	return err
}

func (u *Unicast) Close() error {
	if u.done != nil {
		close(u.done)
		u.done = nil
	}
	if u.conn != nil {
		return u.conn.Close()
	}
	return nil
}

// encodeEnvelope prefixes the payload with the sending node's id, since
// raw UDP gives no link-layer address the way the radio does.
func encodeEnvelope(payload []byte, from uint16) []byte {
	out := make([]byte, 2+len(payload))
	binary.LittleEndian.PutUint16(out[0:2], from)
	copy(out[2:], payload)
	return out
}

func decodeEnvelope(p []byte) (payload []byte, from uint16, ok bool) {
	if len(p) < 2 {
		return nil, 0, false
	}
	return p[2:], binary.LittleEndian.Uint16(p[0:2]), true
}
