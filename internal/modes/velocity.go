package modes

import "math"

// AirborneVelocity is the decoded content of a TC 19 frame.
type AirborneVelocity struct {
	Speed     float64 // knots
	Track     float64 // degrees, true track or magnetic heading
	SpeedType string  // "GS", "TAS" or "IAS"

	// Optional fields, nil when the frame does not report them.
	VerticalRate *float64 // ft/min, negative down
	GeoMinusBaro *float64 // GNSS minus barometric altitude, ft
}

// Velocity decodes an airborne velocity frame (TC 19, subtypes 1-4).
func (m *Message) Velocity() (*AirborneVelocity, bool) {
	if m.Typecode() != 19 {
		return nil, false
	}
	sub := m.Bits(38, 40)

	v := &AirborneVelocity{}
	switch sub {
	case 1, 2: // ground speed from east-west / north-south components
		vEwRaw := m.Bits(47, 56)
		vNsRaw := m.Bits(58, 67)
		if vEwRaw == 0 || vNsRaw == 0 {
			return nil, false
		}
		vEw := float64(vEwRaw) - 1
		vNs := float64(vNsRaw) - 1
		if sub == 2 { // supersonic
			vEw *= 4
			vNs *= 4
		}
		if m.Bit(46) == 1 {
			vEw = -vEw
		}
		if m.Bit(57) == 1 {
			vNs = -vNs
		}
		v.Speed = math.Hypot(vEw, vNs)
		v.Track = cprMod(math.Atan2(vEw, vNs)*180/math.Pi, 360)
		v.SpeedType = "GS"
	case 3, 4: // airspeed and magnetic heading
		if m.Bit(46) == 0 { // heading status
			return nil, false
		}
		asRaw := m.Bits(58, 67)
		if asRaw == 0 {
			return nil, false
		}
		spd := float64(asRaw) - 1
		if sub == 4 {
			spd *= 4
		}
		v.Speed = spd
		v.Track = float64(m.Bits(47, 56)) * 360 / 1024
		if m.Bit(57) == 1 {
			v.SpeedType = "TAS"
		} else {
			v.SpeedType = "IAS"
		}
	default:
		return nil, false
	}

	// An all-zero field means "no information", not 0 ft/min.
	if vrRaw := m.Bits(70, 78); vrRaw != 0 {
		vr := (float64(vrRaw) - 1) * 64
		if m.Bit(69) == 1 {
			vr = -vr
		}
		v.VerticalRate = &vr
	}

	if dRaw := m.Bits(82, 88); dRaw != 0 {
		d := (float64(dRaw) - 1) * 25
		if m.Bit(81) == 1 { // GNSS below barometric
			d = -d
		}
		v.GeoMinusBaro = &d
	}

	return v, true
}
