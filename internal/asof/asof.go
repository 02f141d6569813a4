// Package asof implements the bounded nearest-time matching used for
// frame pairing and stream fusion: for each element of a primary time
// sequence, find the closest element of a secondary sequence within a
// tolerance window.
package asof

import "math"

// Nearest returns, for every timestamp in prim, the index of the
// nearest timestamp in sec within tol seconds, or -1 when no secondary
// sample is close enough. Both sequences must be sorted ascending.
//
// The scan is a single pass with two pointers; the candidate index can
// only move forward because both sequences are ordered.
func Nearest(prim, sec []float64, tol float64) []int {
	out := make([]int, len(prim))
	if len(sec) == 0 {
		for i := range out {
			out[i] = -1
		}
		return out
	}
	j := 0
	for i, t := range prim {
		for j+1 < len(sec) && math.Abs(sec[j+1]-t) <= math.Abs(sec[j]-t) {
			j++
		}
		if math.Abs(sec[j]-t) <= tol {
			out[i] = j
		} else {
			out[i] = -1
		}
	}
	return out
}
