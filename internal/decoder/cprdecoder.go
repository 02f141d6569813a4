package decoder

import (
	"github.com/open-aviation/skyrebuild/internal/cpr"
	"github.com/open-aviation/skyrebuild/internal/frames"
	"github.com/open-aviation/skyrebuild/internal/modes"
)

func init() {
	Register("cpr", func() Decoder { return NewCPR(cpr.ModeS()) })
}

// CPR recomputes positions from the raw CPR frames instead of trusting
// the source's decoded columns: frames are paired odd against even,
// each pair is resolved to a global fix, and fixes inconsistent with
// two reference re-decodes are discarded.
//
// Velocity and identification frames pass through: the source values
// carry no mistakes worth fixing. Rollcall replies get their Comm-B
// register inferred and decoded.
type CPR struct {
	dec cpr.PositionDecoder
}

// NewCPR builds a CPR strategy on the given low-level position
// decoder. Use cpr.ModeS() for the built-in one.
func NewCPR(dec cpr.PositionDecoder) *CPR {
	return &CPR{dec: dec}
}

func (c *CPR) DecodePosition(pos []frames.PositionFrame) []frames.PositionFrame {
	pairs := cpr.PairFrames(pos)
	fixes := cpr.DecodeAndValidate(c.dec, pairs)

	out := make([]frames.PositionFrame, 0, len(fixes))
	for _, fix := range fixes {
		lat, lon := fix.Lat, fix.Lon
		out = append(out, frames.PositionFrame{
			ICAO24:   fix.ICAO24,
			MinTime:  fix.Time,
			Lat:      &lat,
			Lon:      &lon,
			Altitude: fix.Altitude,
		})
	}
	return out
}

func (c *CPR) DecodeVelocity(vel []frames.VelocityFrame) []frames.VelocityFrame {
	return vel
}

func (c *CPR) DecodeIdentification(ident []frames.IdentificationFrame) []frames.IdentificationFrame {
	return ident
}

// DecodeRollcall infers the Comm-B register of each reply and fills
// the register fields. A reply whose register cannot be inferred is
// kept with the fields absent.
func (c *CPR) DecodeRollcall(rc []frames.RollcallFrame) []frames.RollcallFrame {
	out := make([]frames.RollcallFrame, 0, len(rc))
	for _, f := range rc {
		out = append(out, decodeRollcallFrame(f))
	}
	return out
}

func decodeRollcallFrame(f frames.RollcallFrame) frames.RollcallFrame {
	m, err := modes.Parse(f.RawMsg)
	if err != nil {
		return f
	}
	if f.Squawk == nil {
		if squawk, ok := m.IdentityCode(); ok {
			f.Squawk = &squawk
		}
	}
	if f.Altitude == nil {
		if alt, ok := m.AltitudeCode(); ok {
			f.Altitude = &alt
		}
	}
	bds, ok := m.InferBDS()
	if !ok {
		return f
	}
	f.BDS = &bds
	set := func(dst **float64, get func() (float64, bool)) {
		if v, ok := get(); ok {
			*dst = &v
		}
	}
	switch bds {
	case "BDS40":
		set(&f.SelAltMCP, m.SelectedAltitudeMCP)
		set(&f.SelAltFMS, m.SelectedAltitudeFMS)
		set(&f.BaroSetting, m.SelectedBaroSetting)
	case "BDS50":
		set(&f.Roll, m.RollAngle)
		set(&f.TrueTrack, m.TrueTrackAngle)
		set(&f.TrackRate, m.TrackAngleRate)
		set(&f.GroundSpeed, m.GroundSpeed50)
		set(&f.TrueAirspeed, m.TrueAirspeed50)
	case "BDS60":
		set(&f.MagneticHeading, m.MagneticHeading)
		set(&f.IndicatedAirspeed, m.IndicatedAirspeed60)
		set(&f.Mach, m.Mach60)
		set(&f.BaroVerticalRate, m.BaroVerticalRate)
		set(&f.InertialVerticalRate, m.InertialVerticalRate)
	}
	return f
}
