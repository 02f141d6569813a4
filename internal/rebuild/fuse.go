package rebuild

import (
	"strings"

	"github.com/open-aviation/skyrebuild/internal/asof"
	"github.com/open-aviation/skyrebuild/internal/frames"
)

// fuseTolerance is the maximum time gap, in seconds, for a velocity,
// identification or rollcall sample to attach to a position sample.
const fuseTolerance = 5.0

// fuse joins the velocity and identification streams onto the decoded
// position timeline, one nearest-in-time match per position row. The
// position stream defines the output rows; every decoded position
// survives fusion whether or not anything matched it.
func fuse(pos []frames.PositionFrame, vel []frames.VelocityFrame, ident []frames.IdentificationFrame) []frames.StateVector {
	velByAddr := make(map[string][]frames.VelocityFrame)
	for _, f := range vel {
		velByAddr[f.ICAO24] = append(velByAddr[f.ICAO24], f)
	}
	identByAddr := make(map[string][]frames.IdentificationFrame)
	for _, f := range ident {
		identByAddr[f.ICAO24] = append(identByAddr[f.ICAO24], f)
	}

	posByAddr := make(map[string][]frames.PositionFrame)
	var order []string
	for _, f := range pos {
		if _, ok := posByAddr[f.ICAO24]; !ok {
			order = append(order, f.ICAO24)
		}
		posByAddr[f.ICAO24] = append(posByAddr[f.ICAO24], f)
	}

	out := make([]frames.StateVector, 0, len(pos))
	for _, addr := range order {
		out = append(out, fuseAircraft(posByAddr[addr], velByAddr[addr], identByAddr[addr])...)
	}
	return out
}

func fuseAircraft(pos []frames.PositionFrame, vel []frames.VelocityFrame, ident []frames.IdentificationFrame) []frames.StateVector {
	times := make([]float64, len(pos))
	for i, f := range pos {
		times[i] = f.MinTime
	}

	out := make([]frames.StateVector, len(pos))
	for i, f := range pos {
		out[i] = frames.StateVector{
			ICAO24:      f.ICAO24,
			Time:        f.MinTime,
			Lat:         f.Lat,
			Lon:         f.Lon,
			Altitude:    f.Altitude,
			OnGround:    f.OnGround,
			GroundSpeed: f.GroundSpeed,
			Track:       f.Track,
		}
	}

	if len(vel) > 0 {
		velTimes := make([]float64, len(vel))
		for i, f := range vel {
			velTimes[i] = f.MinTime
		}
		for i, j := range asof.Nearest(times, velTimes, fuseTolerance) {
			if j < 0 {
				continue
			}
			v := vel[j]
			out[i].VerticalRate = v.VerticalRate
			// The position stream wins on shared kinematic fields;
			// the velocity stream only fills gaps.
			if out[i].GroundSpeed == nil {
				out[i].GroundSpeed = v.GroundSpeed
			}
			if out[i].Track == nil {
				out[i].Track = v.Track
			}
			if out[i].Altitude != nil && v.GeoMinusBaro != nil {
				geo := *out[i].Altitude + *v.GeoMinusBaro
				out[i].GeoAltitude = &geo
			}
		}
	}

	if len(ident) > 0 {
		identTimes := make([]float64, len(ident))
		for i, f := range ident {
			identTimes[i] = f.MinTime
		}
		for i, j := range asof.Nearest(times, identTimes, fuseTolerance) {
			if j < 0 {
				continue
			}
			if cs := cleanCallsign(ident[j].Callsign); cs != nil {
				out[i].Callsign = cs
			}
		}
	}

	return out
}

// cleanCallsign strips the padding characters a transponder fills
// short callsigns with. An all-padding callsign is absent.
func cleanCallsign(cs *string) *string {
	if cs == nil {
		return nil
	}
	s := strings.TrimRight(*cs, "_ ")
	if s == "" {
		return nil
	}
	return &s
}

// joinRollcall attaches the nearest-in-time rollcall reply to each
// state vector.
func joinRollcall(svs []frames.StateVector, rc []frames.RollcallFrame) []frames.StateVector {
	rcByAddr := make(map[string][]frames.RollcallFrame)
	for _, f := range rc {
		rcByAddr[f.ICAO24] = append(rcByAddr[f.ICAO24], f)
	}

	svByAddr := make(map[string][]int)
	for i, sv := range svs {
		svByAddr[sv.ICAO24] = append(svByAddr[sv.ICAO24], i)
	}

	for addr, idxs := range svByAddr {
		replies := rcByAddr[addr]
		if len(replies) == 0 {
			continue
		}
		times := make([]float64, len(idxs))
		for k, i := range idxs {
			times[k] = svs[i].Time
		}
		rcTimes := make([]float64, len(replies))
		for k, f := range replies {
			rcTimes[k] = f.MinTime
		}
		for k, j := range asof.Nearest(times, rcTimes, fuseTolerance) {
			if j < 0 {
				continue
			}
			svs[idxs[k]].Rollcall = replies[j].Rollcall()
		}
	}
	return svs
}

// appendRollcall emits every rollcall reply as an extra output row
// carrying only the address, time and rollcall payload.
func appendRollcall(svs []frames.StateVector, rc []frames.RollcallFrame) []frames.StateVector {
	for _, f := range rc {
		svs = append(svs, frames.StateVector{
			ICAO24:   f.ICAO24,
			Time:     f.MinTime,
			Rollcall: f.Rollcall(),
		})
	}
	return svs
}
