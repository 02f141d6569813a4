// Package cpr pairs and validates CPR position frames: odd/even frame
// pairing within a bounded time window, global decoding of each pair,
// and reference-based rejection of aliased fixes.
package cpr

import (
	"sort"

	"github.com/open-aviation/skyrebuild/internal/asof"
	"github.com/open-aviation/skyrebuild/internal/frames"
)

// PairTolerance is the maximum spacing in seconds between the odd and
// even frame of a pair.
const PairTolerance = 10.0

// Pair is a matched odd/even frame couple for one aircraft. The pair
// timestamp is the later of the two frame times, the arrival time of
// the sample the pair resolves to.
type Pair struct {
	ICAO24   string
	MsgOdd   string
	MsgEven  string
	TimeOdd  float64
	TimeEven float64
	Time     float64
}

// PairFrames matches odd and even position frames per aircraft by
// nearest time within PairTolerance, in both directions: each odd
// frame against the even sequence and each even frame against the odd
// sequence. One-directional nearest matching is not symmetric and
// silently loses pairs when one parity is sampled more densely than
// the other. Duplicate candidates from the two passes collapse to one
// pair. Frames without a partner are dropped.
//
// The result is ordered by pair timestamp. An empty result means no
// data, not an error.
func PairFrames(pos []frames.PositionFrame) []Pair {
	type side struct {
		times []float64
		msgs  []string
	}
	odd := make(map[string]*side)
	even := make(map[string]*side)
	pick := func(m map[string]*side, addr string) *side {
		s, ok := m[addr]
		if !ok {
			s = &side{}
			m[addr] = s
		}
		return s
	}

	for _, f := range pos {
		addr := frames.NormalizeAddress(f.ICAO24)
		if addr == "" || f.RawMsg == "" {
			continue
		}
		s := pick(even, addr)
		if f.Odd {
			s = pick(odd, addr)
		}
		s.times = append(s.times, f.MinTime)
		s.msgs = append(s.msgs, f.RawMsg)
	}

	addrs := make([]string, 0, len(odd))
	for addr := range odd {
		if _, ok := even[addr]; ok {
			addrs = append(addrs, addr)
		}
	}
	sort.Strings(addrs)

	var pairs []Pair
	for _, addr := range addrs {
		o, e := odd[addr], even[addr]
		sortSide(o.times, o.msgs)
		sortSide(e.times, e.msgs)

		matched := make(map[[2]int]struct{})
		for i, j := range asof.Nearest(o.times, e.times, PairTolerance) {
			if j >= 0 {
				matched[[2]int{i, j}] = struct{}{}
			}
		}
		for j, i := range asof.Nearest(e.times, o.times, PairTolerance) {
			if i >= 0 {
				matched[[2]int{i, j}] = struct{}{}
			}
		}

		for m := range matched {
			i, j := m[0], m[1]
			p := Pair{
				ICAO24:   addr,
				MsgOdd:   o.msgs[i],
				MsgEven:  e.msgs[j],
				TimeOdd:  o.times[i],
				TimeEven: e.times[j],
			}
			p.Time = p.TimeOdd
			if p.TimeEven > p.Time {
				p.Time = p.TimeEven
			}
			pairs = append(pairs, p)
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Time != pairs[j].Time {
			return pairs[i].Time < pairs[j].Time
		}
		if pairs[i].ICAO24 != pairs[j].ICAO24 {
			return pairs[i].ICAO24 < pairs[j].ICAO24
		}
		return pairs[i].TimeOdd < pairs[j].TimeOdd
	})
	return pairs
}

func sortSide(times []float64, msgs []string) {
	idx := make([]int, len(times))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return times[idx[a]] < times[idx[b]] })
	t2 := make([]float64, len(times))
	m2 := make([]string, len(msgs))
	for i, k := range idx {
		t2[i] = times[k]
		m2[i] = msgs[k]
	}
	copy(times, t2)
	copy(msgs, m2)
}
