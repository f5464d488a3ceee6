// Package policy implements the pluggable parent-scoring algorithms and
// their deterministic tie-breaks.
package policy

import "github.com/kprusa/convergecast/internal/neighbor"

// Kind names one of the three scoring policies a node can run.
type Kind string

const (
	Hop  Kind = "HOP"
	RSSI Kind = "RSSI"
	PRR  Kind = "PRR"
)

// MinSamples is the PRR policy's minimum tx count before a neighbor's
// PRR score is trusted.
const MinSamples = 3

// score pairs a candidate's raw score with the fields used to break
// ties when scores are equal.
type score struct {
	value   float64
	hopsVia uint16
	rssi    int8
	id      uint16
	valid   bool
}

// better reports whether candidate c beats the current best under the
// tie-break order: higher score, then lower hops_via, then higher
// rssi, then lower id.
func (c score) better(best score) bool {
	if !best.valid {
		return true
	}
	if c.value != best.value {
		return c.value > best.value
	}
	if c.hopsVia != best.hopsVia {
		return c.hopsVia < best.hopsVia
	}
	if c.rssi != best.rssi {
		return c.rssi > best.rssi
	}
	return c.id < best.id
}

func hopScore(e neighbor.Entry) score {
	if e.HopsVia >= neighbor.UnknownHops {
		return score{value: -1, hopsVia: e.HopsVia, rssi: e.RSSI, id: e.ID, valid: true}
	}
	return score{value: 1 / float64(1+e.HopsVia), hopsVia: e.HopsVia, rssi: e.RSSI, id: e.ID, valid: true}
}

func rssiScore(e neighbor.Entry) score {
	return score{value: float64(e.RSSI), hopsVia: e.HopsVia, rssi: e.RSSI, id: e.ID, valid: true}
}

func prrScore(e neighbor.Entry, minSamples int) score {
	if int(e.TX) < minSamples {
		return score{value: -1, hopsVia: e.HopsVia, rssi: e.RSSI, id: e.ID, valid: true}
	}
	return score{value: e.PRR, hopsVia: e.HopsVia, rssi: e.RSSI, id: e.ID, valid: true}
}

// Select scans the given neighbors under kind and returns the winning
// id and whether any candidate was found. A candidate exists whenever
// the table is non-empty, even if its score is the policy's negative
// sentinel (e.g. a HOP candidate with no known hop distance yet) — the
// sole exception is PRR: if every candidate scored negative
// (insufficient samples everywhere), Select falls back to a reduced
// HOP tie-break (lower hops_via, then higher rssi — no id tie-break,
// per spec).
func Select(entries []neighbor.Entry, kind Kind, minSamples int) (id uint16, ok bool) {
	switch kind {
	case Hop:
		return selectBy(entries, hopScore)
	case RSSI:
		return selectBy(entries, rssiScore)
	case PRR:
		best, found := selectBestEntry(entries, func(e neighbor.Entry) score { return prrScore(e, minSamples) })
		if found && best.value >= 0 {
			return best.id, true
		}
		return selectFallbackHop(entries)
	default:
		return 0, false
	}
}

func selectBy(entries []neighbor.Entry, scorer func(neighbor.Entry) score) (uint16, bool) {
	best, found := selectBestEntry(entries, scorer)
	if !found {
		return 0, false
	}
	return best.id, true
}

func selectBestEntry(entries []neighbor.Entry, scorer func(neighbor.Entry) score) (score, bool) {
	var best score
	for _, e := range entries {
		c := scorer(e)
		if c.better(best) {
			best = c
		}
	}
	return best, best.valid
}

// selectFallbackHop implements the PRR policy's fallback pass: PICK_HOP
// scoring with a reduced tie-break of lower hops_via then higher rssi
// (no id tie-break).
func selectFallbackHop(entries []neighbor.Entry) (uint16, bool) {
	type cand struct {
		value   float64
		hopsVia uint16
		rssi    int8
		id      uint16
	}
	var best cand
	have := false
	for _, e := range entries {
		c := hopScore(e)
		fc := cand{value: c.value, hopsVia: c.hopsVia, rssi: c.rssi, id: c.id}
		if !have {
			best, have = fc, true
			continue
		}
		if fc.value != best.value {
			if fc.value > best.value {
				best = fc
			}
			continue
		}
		if fc.hopsVia != best.hopsVia {
			if fc.hopsVia < best.hopsVia {
				best = fc
			}
			continue
		}
		if fc.rssi > best.rssi {
			best = fc
		}
	}
	if !have || best.value < 0 {
		return 0, false
	}
	return best.id, true
}
