// Package topology models a directed link's up/down state over
// simulated time, read from a scripted file. It backs the simulate
// harness's in-memory radio medium: a frame only reaches its
// destination if the link between sender and receiver is up at the
// moment of transmission.
package topology

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// LinkState records that a directed link changed state at a point in
// simulated time (seconds since the simulation started).
type LinkState struct {
	Time     int
	FromNode uint16
	ToNode   uint16
	Up       bool
}

// Link is the ordered history of one directed link's state changes.
type Link struct {
	FromNode uint16
	ToNode   uint16
	states   []LinkState
}

// IsUp reports whether the link was up at the given simulated time: the
// most recent state change at or before atTime determines it. A link
// with no recorded history before atTime is considered down.
func (l Link) IsUp(atTime int) bool {
	up := false
	for _, s := range l.states {
		if s.Time > atTime {
			break
		}
		up = s.Up
	}
	return up
}

// ErrParseLinkState reports a malformed topology script line.
type ErrParseLinkState struct {
	msg string
}

func (e ErrParseLinkState) Error() string {
	return fmt.Sprintf("parse link state: %s", e.msg)
}

// Network is a directed-link-state-over-time topology, queried by the
// simulated radio medium.
type Network struct {
	links map[uint16]map[uint16]Link
}

// New builds a Network from a topology script: one line per state
// change, "<time> <from> <to> <up|down>", sorted by non-decreasing
// time.
func New(in io.Reader) (*Network, error) {
	n := &Network{links: make(map[uint16]map[uint16]Link)}

	r := bufio.NewReader(in)
	currTime := 0
	for {
		line, err := r.ReadString('\n')
		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		if line != "" {
			ls, perr := parseLinkState(line)
			if perr != nil {
				return nil, errors.Wrap(perr, "topology script")
			}
			if ls.Time < currTime {
				return nil, errors.New("entries in input must be sorted by increasing time")
			}
			currTime = ls.Time
			n.add(*ls)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
	}
	return n, nil
}

func (n *Network) add(ls LinkState) {
	dsts, ok := n.links[ls.FromNode]
	if !ok {
		dsts = make(map[uint16]Link)
		n.links[ls.FromNode] = dsts
	}
	link, ok := dsts[ls.ToNode]
	if !ok {
		link = Link{FromNode: ls.FromNode, ToNode: ls.ToNode}
	}
	link.states = append(link.states, ls)
	dsts[ls.ToNode] = link
}

func parseLinkState(line string) (*LinkState, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return nil, ErrParseLinkState{msg: fmt.Sprintf("want 4 fields, got %d: %q", len(fields), line)}
	}
	t, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, ErrParseLinkState{msg: "time: " + err.Error()}
	}
	from, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil {
		return nil, ErrParseLinkState{msg: "from: " + err.Error()}
	}
	to, err := strconv.ParseUint(fields[2], 10, 16)
	if err != nil {
		return nil, ErrParseLinkState{msg: "to: " + err.Error()}
	}
	up, err := parseUpDown(fields[3])
	if err != nil {
		return nil, err
	}
	return &LinkState{Time: t, FromNode: uint16(from), ToNode: uint16(to), Up: up}, nil
}

func parseUpDown(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "up", "1":
		return true, nil
	case "down", "0":
		return false, nil
	default:
		return false, ErrParseLinkState{msg: fmt.Sprintf("state must be up/down or 1/0, got %q", s)}
	}
}

// Query reports whether the link from -> to is up at atTime. An
// unrecorded link is always down.
func (n *Network) Query(from, to uint16, atTime int) bool {
	dsts, ok := n.links[from]
	if !ok {
		return false
	}
	link, ok := dsts[to]
	if !ok {
		return false
	}
	return link.IsUp(atTime)
}

// Nodes returns every node id mentioned as a link endpoint, sorted.
func (n *Network) Nodes() []uint16 {
	seen := make(map[uint16]struct{})
	for from, dsts := range n.links {
		seen[from] = struct{}{}
		for to := range dsts {
			seen[to] = struct{}{}
		}
	}
	out := make([]uint16, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
