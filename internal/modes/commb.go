package modes

// Comm-B rollcall replies (DF 20/21) carry a 56-bit MB field whose
// register is not announced in the message. The register is inferred
// from status-bit consistency and value plausibility, the standard
// technique for this class of reply; only an unambiguous match is
// reported.

// mbBit returns the 1-based bit i of the MB field (message bits 33-88).
func (m *Message) mbBit(i int) uint32 { return m.Bit(32 + i) }

func (m *Message) mbBits(from, to int) uint32 { return m.Bits(32+from, 32+to) }

// signedMB decodes a sign bit plus value field as two's complement.
func (m *Message) signedMB(sign, from, to int) float64 {
	v := float64(m.mbBits(from, to))
	if m.mbBit(sign) == 1 {
		v -= float64(uint32(1) << uint(to-from+1))
	}
	return v
}

// fieldConsistent reports whether a status bit agrees with its value
// bits: a cleared status requires all value bits (sign included) to be
// zero.
func (m *Message) fieldConsistent(status, from, to int) bool {
	if m.mbBit(status) == 1 {
		return true
	}
	return m.mbBits(from, to) == 0
}

// InferBDS infers the Comm-B register of a DF 20/21 reply. Only
// BDS 4,0 / 5,0 / 6,0 are recognised; an ambiguous or unrecognised
// payload yields false.
func (m *Message) InferBDS() (string, bool) {
	if df := m.DF(); df != 20 && df != 21 {
		return "", false
	}
	var matches []string
	if m.isBDS40() {
		matches = append(matches, "BDS40")
	}
	if m.isBDS50() {
		matches = append(matches, "BDS50")
	}
	if m.isBDS60() {
		matches = append(matches, "BDS60")
	}
	if len(matches) != 1 {
		return "", false
	}
	return matches[0], true
}

// BDS 4,0 — selected vertical intention

func (m *Message) isBDS40() bool {
	if m.mbBits(40, 47) != 0 || m.mbBits(52, 53) != 0 {
		return false
	}
	if !m.fieldConsistent(1, 2, 13) ||
		!m.fieldConsistent(14, 15, 26) ||
		!m.fieldConsistent(27, 28, 39) ||
		!m.fieldConsistent(48, 49, 51) ||
		!m.fieldConsistent(54, 55, 56) {
		return false
	}
	if baro, ok := m.SelectedBaroSetting(); ok && (baro < 850 || baro > 1100) {
		return false
	}
	return true
}

// SelectedAltitudeMCP returns the MCP/FCU selected altitude in feet.
func (m *Message) SelectedAltitudeMCP() (float64, bool) {
	if m.mbBit(1) == 0 {
		return 0, false
	}
	return float64(m.mbBits(2, 13)) * 16, true
}

// SelectedAltitudeFMS returns the FMS selected altitude in feet.
func (m *Message) SelectedAltitudeFMS() (float64, bool) {
	if m.mbBit(14) == 0 {
		return 0, false
	}
	return float64(m.mbBits(15, 26)) * 16, true
}

// SelectedBaroSetting returns the barometric pressure setting in mb.
func (m *Message) SelectedBaroSetting() (float64, bool) {
	if m.mbBit(27) == 0 {
		return 0, false
	}
	return float64(m.mbBits(28, 39))*0.1 + 800, true
}

// BDS 5,0 — track and turn report

func (m *Message) isBDS50() bool {
	if !m.fieldConsistent(1, 2, 11) ||
		!m.fieldConsistent(12, 13, 23) ||
		!m.fieldConsistent(24, 25, 34) ||
		!m.fieldConsistent(35, 36, 45) ||
		!m.fieldConsistent(46, 47, 56) {
		return false
	}
	if roll, ok := m.RollAngle(); ok && (roll < -50 || roll > 50) {
		return false
	}
	gs, gsOK := m.GroundSpeed50()
	if gsOK && gs > 600 {
		return false
	}
	tas, tasOK := m.TrueAirspeed50()
	if tasOK && tas > 500 {
		return false
	}
	if gsOK && tasOK && (gs-tas > 200 || tas-gs > 200) {
		return false
	}
	return true
}

// RollAngle returns the roll angle in degrees, negative left wing down.
func (m *Message) RollAngle() (float64, bool) {
	if m.mbBit(1) == 0 {
		return 0, false
	}
	return m.signedMB(2, 3, 11) * 45 / 256, true
}

// TrueTrackAngle returns the true track angle in degrees.
func (m *Message) TrueTrackAngle() (float64, bool) {
	if m.mbBit(12) == 0 {
		return 0, false
	}
	trk := m.signedMB(13, 14, 23) * 90 / 512
	if trk < 0 {
		trk += 360
	}
	return trk, true
}

// GroundSpeed50 returns the ground speed in knots.
func (m *Message) GroundSpeed50() (float64, bool) {
	if m.mbBit(24) == 0 {
		return 0, false
	}
	return float64(m.mbBits(25, 34)) * 2, true
}

// TrackAngleRate returns the track angle rate in degrees per second.
func (m *Message) TrackAngleRate() (float64, bool) {
	if m.mbBit(35) == 0 {
		return 0, false
	}
	return m.signedMB(36, 37, 45) * 8 / 256, true
}

// TrueAirspeed50 returns the true airspeed in knots.
func (m *Message) TrueAirspeed50() (float64, bool) {
	if m.mbBit(46) == 0 {
		return 0, false
	}
	return float64(m.mbBits(47, 56)) * 2, true
}

// BDS 6,0 — heading and speed report

func (m *Message) isBDS60() bool {
	if !m.fieldConsistent(1, 2, 12) ||
		!m.fieldConsistent(13, 14, 23) ||
		!m.fieldConsistent(24, 25, 34) ||
		!m.fieldConsistent(35, 36, 45) ||
		!m.fieldConsistent(46, 47, 56) {
		return false
	}
	if ias, ok := m.IndicatedAirspeed60(); ok && (ias == 0 || ias > 500) {
		return false
	}
	if mach, ok := m.Mach60(); ok && (mach == 0 || mach > 1) {
		return false
	}
	if vr, ok := m.BaroVerticalRate(); ok && (vr < -6000 || vr > 6000) {
		return false
	}
	if vr, ok := m.InertialVerticalRate(); ok && (vr < -6000 || vr > 6000) {
		return false
	}
	return true
}

// MagneticHeading returns the magnetic heading in degrees.
func (m *Message) MagneticHeading() (float64, bool) {
	if m.mbBit(1) == 0 {
		return 0, false
	}
	hdg := m.signedMB(2, 3, 12) * 90 / 512
	if hdg < 0 {
		hdg += 360
	}
	return hdg, true
}

// IndicatedAirspeed60 returns the indicated airspeed in knots.
func (m *Message) IndicatedAirspeed60() (float64, bool) {
	if m.mbBit(13) == 0 {
		return 0, false
	}
	return float64(m.mbBits(14, 23)), true
}

// Mach60 returns the Mach number.
func (m *Message) Mach60() (float64, bool) {
	if m.mbBit(24) == 0 {
		return 0, false
	}
	return float64(m.mbBits(25, 34)) * 2.048 / 512, true
}

// BaroVerticalRate returns the barometric vertical rate in ft/min.
func (m *Message) BaroVerticalRate() (float64, bool) {
	if m.mbBit(35) == 0 {
		return 0, false
	}
	return m.signedMB(36, 37, 45) * 32, true
}

// InertialVerticalRate returns the inertial vertical rate in ft/min.
func (m *Message) InertialVerticalRate() (float64, bool) {
	if m.mbBit(46) == 0 {
		return 0, false
	}
	return m.signedMB(47, 48, 56) * 32, true
}
