// Package modes decodes the bit-level payload of Mode S transponder
// messages: extended squitter position, velocity and identification
// frames, and Comm-B rollcall replies.
//
// The rebuild pipeline only depends on this package through small
// interfaces, so a vendor decoder can be substituted; this is the
// built-in implementation.
package modes

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const callsignCharset = "#ABCDEFGHIJKLMNOPQRSTUVWXYZ#####_###############0123456789######"

// Message is a parsed raw frame. Bit positions follow the Mode S
// convention: 1-based, bit 1 is the most significant bit of the first
// byte.
type Message struct {
	data []byte
}

// Parse decodes a hex-encoded frame. Mode S frames are either 56 or
// 112 bits long.
func Parse(raw string) (*Message, error) {
	data, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse raw message %q: %w", raw, err)
	}
	if len(data) != 7 && len(data) != 14 {
		return nil, fmt.Errorf("parse raw message %q: want 56 or 112 bits, got %d", raw, len(data)*8)
	}
	return &Message{data: data}, nil
}

// Bit returns the 1-based bit at position i.
func (m *Message) Bit(i int) uint32 {
	b := m.data[(i-1)/8]
	return uint32(b>>(7-uint((i-1)%8))) & 1
}

// Bits returns the unsigned value of bits from..to inclusive, 1-based.
func (m *Message) Bits(from, to int) uint32 {
	var v uint32
	for i := from; i <= to; i++ {
		v = v<<1 | m.Bit(i)
	}
	return v
}

// DF returns the downlink format, bits 1-5.
func (m *Message) DF() int {
	return int(m.Bits(1, 5))
}

// Typecode returns the extended squitter type code (bits 33-37), or -1
// for downlink formats without one.
func (m *Message) Typecode() int {
	if df := m.DF(); df != 17 && df != 18 {
		return -1
	}
	return int(m.Bits(33, 37))
}

// OddFlag reports the CPR format bit (bit 54) of a position frame:
// true for an odd frame, false for even.
func (m *Message) OddFlag() (bool, bool) {
	tc := m.Typecode()
	if !isPositionTC(tc) {
		return false, false
	}
	return m.Bit(54) == 1, true
}

func isPositionTC(tc int) bool {
	return (tc >= 5 && tc <= 8) || (tc >= 9 && tc <= 18) || (tc >= 20 && tc <= 22)
}

func isAirborneTC(tc int) bool {
	return (tc >= 9 && tc <= 18) || (tc >= 20 && tc <= 22)
}

// Surface reports whether the frame is a surface position (TC 5-8).
func (m *Message) Surface() bool {
	tc := m.Typecode()
	return tc >= 5 && tc <= 8
}

// Callsign decodes the aircraft identification (TC 1-4). Trailing
// padding is stripped.
func (m *Message) Callsign() (string, bool) {
	tc := m.Typecode()
	if tc < 1 || tc > 4 {
		return "", false
	}
	var sb strings.Builder
	for i := 0; i < 8; i++ {
		c := callsignCharset[m.Bits(41+6*i, 46+6*i)]
		sb.WriteByte(c)
	}
	cs := strings.TrimRight(sb.String(), "_# ")
	if cs == "" || strings.ContainsRune(cs, '#') {
		return "", false
	}
	return cs, true
}

// AirborneAltitude decodes the altitude of an airborne position frame
// in feet. TC 9-18 carry barometric altitude, TC 20-22 GNSS height.
func (m *Message) AirborneAltitude() (float64, bool) {
	tc := m.Typecode()
	switch {
	case tc >= 9 && tc <= 18:
		if m.Bits(41, 52) == 0 {
			return 0, false
		}
		if m.Bit(48) == 1 { // Q bit: 25 ft increments
			n := m.Bits(41, 47)<<4 | m.Bits(49, 52)
			return float64(n)*25 - 1000, true
		}
		// 100 ft Gillham-coded altitudes are not decoded.
		return 0, false
	case tc >= 20 && tc <= 22:
		if m.Bits(41, 52) == 0 {
			return 0, false
		}
		return float64(m.Bits(41, 52)) * 3.28084, true // meters to ft
	}
	return 0, false
}

// AltitudeCode decodes the 13-bit altitude code of DF 0, 4, 16 and 20
// replies, in feet.
func (m *Message) AltitudeCode() (float64, bool) {
	switch m.DF() {
	case 0, 4, 16, 20:
	default:
		return 0, false
	}
	if m.Bits(20, 32) == 0 {
		return 0, false
	}
	if m.Bit(26) == 1 { // M bit: metric, not used in practice
		return 0, false
	}
	if m.Bit(28) == 1 { // Q bit: 25 ft increments
		n := m.Bits(20, 25)<<5 | m.Bit(27)<<4 | m.Bits(29, 32)
		return float64(n)*25 - 1000, true
	}
	// 100 ft Gillham encoding not decoded.
	return 0, false
}

// IdentityCode decodes the squawk code of DF 5 and 21 replies as a
// 4-digit octal string.
func (m *Message) IdentityCode() (string, bool) {
	switch m.DF() {
	case 5, 21:
	default:
		return "", false
	}
	c1, a1 := m.Bit(20), m.Bit(21)
	c2, a2 := m.Bit(22), m.Bit(23)
	c4, a4 := m.Bit(24), m.Bit(25)
	b1, d1 := m.Bit(27), m.Bit(28)
	b2, d2 := m.Bit(29), m.Bit(30)
	b4, d4 := m.Bit(31), m.Bit(32)

	a := a4<<2 | a2<<1 | a1
	b := b4<<2 | b2<<1 | b1
	c := c4<<2 | c2<<1 | c1
	d := d4<<2 | d2<<1 | d1
	return fmt.Sprintf("%d%d%d%d", a, b, c, d), true
}
