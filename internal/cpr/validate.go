package cpr

import (
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/open-aviation/skyrebuild/internal/modes"
)

// Cross-check constants. The look-back depths and the threshold mirror
// the local ambiguity radius of the CPR encoding; they are fixed, not
// tunable.
const (
	refNear      = 5
	refFar       = 10
	refTolerance = 0.1 // degrees, latitude and longitude

	// decodeChunk bounds the size of one decode batch. Purely a
	// throughput knob: chunking happens after pairing, so a chunk
	// boundary can never split a pair.
	decodeChunk = 5000
)

// PositionDecoder is the low-level CPR capability the validator needs.
// The built-in implementation is backed by the modes package; vendor
// decoders can be substituted.
type PositionDecoder interface {
	// GlobalPosition resolves an unambiguous fix from an odd/even
	// frame couple.
	GlobalPosition(msgOdd, msgEven string, tOdd, tEven float64) (lat, lon float64, ok bool)
	// LocalPosition resolves a single frame against a reference fix.
	LocalPosition(msg string, latRef, lonRef float64) (lat, lon float64, ok bool)
	// Altitude decodes the altitude carried by a position frame.
	Altitude(msg string) (float64, bool)
}

type modesDecoder struct{}

func (modesDecoder) GlobalPosition(msgOdd, msgEven string, tOdd, tEven float64) (float64, float64, bool) {
	return modes.GlobalPosition(msgOdd, msgEven, tOdd, tEven)
}

func (modesDecoder) LocalPosition(msg string, latRef, lonRef float64) (float64, float64, bool) {
	return modes.LocalPosition(msg, latRef, lonRef)
}

func (modesDecoder) Altitude(msg string) (float64, bool) {
	m, err := modes.Parse(msg)
	if err != nil {
		return 0, false
	}
	return m.AirborneAltitude()
}

// ModeS returns the built-in PositionDecoder.
func ModeS() PositionDecoder { return modesDecoder{} }

// Fix is a validated position sample.
type Fix struct {
	ICAO24   string
	Time     float64
	Lat      float64
	Lon      float64
	Altitude *float64
}

// DecodeAndValidate decodes every pair into a provisional fix and
// keeps only fixes consistent with two reference re-decodes of the
// same frame, anchored refNear and refFar samples back in the same
// aircraft's sequence. Pairs whose global decode fails are dropped, as
// are fixes without enough history for both references. Rejection is
// silent: it is the intended filtering behaviour.
//
// Aircraft are processed independently and concurrently; within one
// aircraft the sequence order is load-bearing and stays sequential.
func DecodeAndValidate(dec PositionDecoder, pairs []Pair) []Fix {
	byAddr := make(map[string][]Pair)
	var addrs []string
	for _, p := range pairs {
		if _, ok := byAddr[p.ICAO24]; !ok {
			addrs = append(addrs, p.ICAO24)
		}
		byAddr[p.ICAO24] = append(byAddr[p.ICAO24], p)
	}

	results := make([][]Fix, len(addrs))
	workers := runtime.GOMAXPROCS(0)
	if workers > len(addrs) {
		workers = len(addrs)
	}
	if workers > 1 {
		var wg sync.WaitGroup
		work := make(chan int)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range work {
					results[i] = validateAircraft(dec, byAddr[addrs[i]])
				}
			}()
		}
		for i := range addrs {
			work <- i
		}
		close(work)
		wg.Wait()
	} else {
		for i := range addrs {
			results[i] = validateAircraft(dec, byAddr[addrs[i]])
		}
	}

	var fixes []Fix
	for _, r := range results {
		fixes = append(fixes, r...)
	}
	sort.Slice(fixes, func(i, j int) bool {
		if fixes[i].ICAO24 != fixes[j].ICAO24 {
			return fixes[i].ICAO24 < fixes[j].ICAO24
		}
		return fixes[i].Time < fixes[j].Time
	})
	return fixes
}

type provisional struct {
	pair     Pair
	lat, lon float64
	alt      *float64
}

func validateAircraft(dec PositionDecoder, pairs []Pair) []Fix {
	provs := make([]provisional, 0, len(pairs))
	for start := 0; start < len(pairs); start += decodeChunk {
		end := start + decodeChunk
		if end > len(pairs) {
			end = len(pairs)
		}
		for _, p := range pairs[start:end] {
			lat, lon, ok := dec.GlobalPosition(p.MsgOdd, p.MsgEven, p.TimeOdd, p.TimeEven)
			if !ok {
				// A partial position is meaningless; drop the pair.
				continue
			}
			prov := provisional{pair: p, lat: lat, lon: lon}
			if alt, ok := dec.Altitude(p.MsgOdd); ok {
				prov.alt = &alt
			}
			provs = append(provs, prov)
		}
	}

	var fixes []Fix
	for i, p := range provs {
		if i < refFar {
			continue // not enough history for both references
		}
		near := provs[i-refNear]
		far := provs[i-refFar]
		if !consistent(dec, p, near.lat, near.lon) || !consistent(dec, p, far.lat, far.lon) {
			continue
		}
		fixes = append(fixes, Fix{
			ICAO24:   p.pair.ICAO24,
			Time:     p.pair.Time,
			Lat:      p.lat,
			Lon:      p.lon,
			Altitude: p.alt,
		})
	}
	return fixes
}

// consistent re-decodes the pair's odd frame against a reference fix
// and checks the provisional fix against the result. A correct local
// decode must agree with the globally unambiguous one; disagreement
// beyond the ambiguity radius marks an aliased fix.
func consistent(dec PositionDecoder, p provisional, latRef, lonRef float64) bool {
	lat, lon, ok := dec.LocalPosition(p.pair.MsgOdd, latRef, lonRef)
	if !ok {
		return false
	}
	return math.Abs(p.lat-lat) < refTolerance && math.Abs(p.lon-lon) < refTolerance
}
