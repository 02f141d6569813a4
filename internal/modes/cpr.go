package modes

import "math"

// CPR decoding for airborne position frames. An unambiguous global fix
// needs two frames of opposite parity received within a short interval;
// a single frame can be resolved locally against a nearby reference
// position.

const nz = 15 // number of geographic latitude zones

func cprMod(a, b float64) float64 {
	m := math.Mod(a, b)
	if m < 0 {
		m += b
	}
	return m
}

// nl returns the number of longitude zones at the given latitude.
func nl(lat float64) float64 {
	if lat == 0 {
		return 59
	}
	abs := math.Abs(lat)
	if abs == 87 {
		return 2
	}
	if abs > 87 {
		return 1
	}
	a := 1 - math.Cos(math.Pi/(2*nz))
	b := math.Pow(math.Cos(math.Pi/180*abs), 2)
	return math.Floor(2 * math.Pi / math.Acos(1-a/b))
}

func (m *Message) cprLat() float64 {
	return float64(m.Bits(55, 71)) / 131072
}

func (m *Message) cprLon() float64 {
	return float64(m.Bits(72, 88)) / 131072
}

// GlobalPosition resolves a latitude/longitude fix from an odd and an
// even airborne position frame. The more recent frame decides which
// zone set the fix is reported in. Surface frames are not resolved.
func GlobalPosition(msgOdd, msgEven string, tOdd, tEven float64) (lat, lon float64, ok bool) {
	odd, err := Parse(msgOdd)
	if err != nil {
		return 0, 0, false
	}
	even, err := Parse(msgEven)
	if err != nil {
		return 0, 0, false
	}
	if !isAirborneTC(odd.Typecode()) || !isAirborneTC(even.Typecode()) {
		return 0, 0, false
	}
	if fo, _ := odd.OddFlag(); !fo {
		return 0, 0, false
	}
	if fe, _ := even.OddFlag(); fe {
		return 0, 0, false
	}

	latCprE, lonCprE := even.cprLat(), even.cprLon()
	latCprO, lonCprO := odd.cprLat(), odd.cprLon()

	const (
		dLatE = 360.0 / (4 * nz)
		dLatO = 360.0 / (4*nz - 1)
	)

	j := math.Floor(59*latCprE - 60*latCprO + 0.5)
	latE := dLatE * (cprMod(j, 60) + latCprE)
	latO := dLatO * (cprMod(j, 59) + latCprO)
	if latE >= 270 {
		latE -= 360
	}
	if latO >= 270 {
		latO -= 360
	}

	// Both frames must fall in the same longitude zone band.
	if nl(latE) != nl(latO) {
		return 0, 0, false
	}

	if tEven >= tOdd {
		lat = latE
		ni := math.Max(nl(latE), 1)
		mi := math.Floor(lonCprE*(nl(latE)-1) - lonCprO*nl(latE) + 0.5)
		lon = 360 / ni * (cprMod(mi, ni) + lonCprE)
	} else {
		lat = latO
		ni := math.Max(nl(latO)-1, 1)
		mi := math.Floor(lonCprE*(nl(latO)-1) - lonCprO*nl(latO) + 0.5)
		lon = 360 / ni * (cprMod(mi, ni) + lonCprO)
	}
	if lon > 180 {
		lon -= 360
	}
	if lat < -90 || lat > 90 {
		return 0, 0, false
	}
	return lat, lon, true
}

// LocalPosition resolves a single airborne position frame against a
// reference fix assumed to lie within the local ambiguity radius.
func LocalPosition(msg string, latRef, lonRef float64) (lat, lon float64, ok bool) {
	m, err := Parse(msg)
	if err != nil {
		return 0, 0, false
	}
	if !isAirborneTC(m.Typecode()) {
		return 0, 0, false
	}
	oddFlag, _ := m.OddFlag()

	dLat := 360.0 / (4 * nz)
	if oddFlag {
		dLat = 360.0 / (4*nz - 1)
	}
	latCpr, lonCpr := m.cprLat(), m.cprLon()

	j := math.Floor(latRef/dLat) + math.Floor(0.5+cprMod(latRef, dLat)/dLat-latCpr)
	lat = dLat * (j + latCpr)

	zones := nl(lat)
	if oddFlag {
		zones--
	}
	dLon := 360.0
	if zones > 0 {
		dLon = 360 / zones
	}
	mi := math.Floor(lonRef/dLon) + math.Floor(0.5+cprMod(lonRef, dLon)/dLon-lonCpr)
	lon = dLon * (mi + lonCpr)

	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}
