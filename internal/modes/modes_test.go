package modes

import (
	"math"
	"testing"
)

// Reference frames from a well documented KLM flight over the
// Netherlands, widely used to cross-check Mode S decoder
// implementations.
const (
	msgPositionEven = "8D40621D58C382D690C8AC2863A7"
	msgPositionOdd  = "8D40621D58C386435CC412692AD6"
	msgCallsign     = "8D4840D6202CC371C32CE0576098"
	msgVelocity     = "8D485020994409940838175B284F"

	msgBDS40 = "A000029C85E42F313000007047D3"
	msgBDS50 = "A000139381951536E024D4CCF6B5"
	msgBDS60 = "A00004128F39F91A7E27C46ADC21"
)

func almost(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %v, want %v (tolerance %v)", name, got, want, tol)
	}
}

func TestParse(t *testing.T) {
	m, err := Parse(msgPositionEven)
	if err != nil {
		t.Fatal(err)
	}
	if df := m.DF(); df != 17 {
		t.Errorf("DF = %d, want 17", df)
	}
	if tc := m.Typecode(); tc != 11 {
		t.Errorf("Typecode = %d, want 11", tc)
	}

	if _, err := Parse("zz"); err == nil {
		t.Error("expected error for invalid hex")
	}
	if _, err := Parse("8D4062"); err == nil {
		t.Error("expected error for short message")
	}
}

func TestOddFlag(t *testing.T) {
	even, _ := Parse(msgPositionEven)
	if odd, ok := even.OddFlag(); !ok || odd {
		t.Errorf("OddFlag(even frame) = %v, %v, want false, true", odd, ok)
	}
	odd, _ := Parse(msgPositionOdd)
	if f, ok := odd.OddFlag(); !ok || !f {
		t.Errorf("OddFlag(odd frame) = %v, %v, want true, true", f, ok)
	}
	vel, _ := Parse(msgVelocity)
	if _, ok := vel.OddFlag(); ok {
		t.Error("OddFlag on a velocity frame should not be defined")
	}
}

func TestGlobalPosition(t *testing.T) {
	// The even frame is the more recent one.
	lat, lon, ok := GlobalPosition(msgPositionOdd, msgPositionEven, 1457996400, 1457996402)
	if !ok {
		t.Fatal("GlobalPosition failed")
	}
	almost(t, "lat", lat, 52.25720, 1e-4)
	almost(t, "lon", lon, 3.91937, 1e-4)

	// Swapped parities must fail rather than decode garbage.
	if _, _, ok := GlobalPosition(msgPositionEven, msgPositionOdd, 1457996402, 1457996400); ok {
		t.Error("expected failure with swapped parities")
	}
}

func TestLocalPosition(t *testing.T) {
	lat, lon, ok := LocalPosition(msgPositionEven, 52.258, 3.918)
	if !ok {
		t.Fatal("LocalPosition failed")
	}
	almost(t, "lat", lat, 52.25720, 1e-4)
	almost(t, "lon", lon, 3.91937, 1e-4)
}

func TestAirborneAltitude(t *testing.T) {
	m, _ := Parse(msgPositionEven)
	alt, ok := m.AirborneAltitude()
	if !ok {
		t.Fatal("AirborneAltitude failed")
	}
	almost(t, "altitude", alt, 38000, 0.5)
}

func TestCallsign(t *testing.T) {
	m, _ := Parse(msgCallsign)
	cs, ok := m.Callsign()
	if !ok {
		t.Fatal("Callsign failed")
	}
	if cs != "KLM1023" {
		t.Errorf("Callsign = %q, want %q", cs, "KLM1023")
	}
}

func TestVelocity(t *testing.T) {
	m, _ := Parse(msgVelocity)
	v, ok := m.Velocity()
	if !ok {
		t.Fatal("Velocity failed")
	}
	almost(t, "speed", v.Speed, 159.20, 0.05)
	almost(t, "track", v.Track, 182.88, 0.05)
	if v.VerticalRate == nil {
		t.Fatal("VerticalRate missing")
	}
	almost(t, "vertical rate", *v.VerticalRate, -832, 0.5)
	if v.SpeedType != "GS" {
		t.Errorf("SpeedType = %q, want GS", v.SpeedType)
	}
	if v.GeoMinusBaro == nil {
		t.Fatal("GeoMinusBaro missing")
	}
	almost(t, "geo minus baro", *v.GeoMinusBaro, 550, 0.5)
}

func TestVelocityWithoutVerticalRate(t *testing.T) {
	// Subtype 1 frame with the vertical rate and GNSS difference
	// fields all zero ("no information"): 8 kt east, 156 kt south.
	m, err := Parse("8D48502099000993A00000000000")
	if err != nil {
		t.Fatal(err)
	}
	v, ok := m.Velocity()
	if !ok {
		t.Fatal("Velocity failed")
	}
	almost(t, "speed", v.Speed, 156.205, 0.005)
	almost(t, "track", v.Track, 177.06, 0.05)
	if v.VerticalRate != nil {
		t.Errorf("VerticalRate = %v, want absent for an all-zero field", *v.VerticalRate)
	}
	if v.GeoMinusBaro != nil {
		t.Errorf("GeoMinusBaro = %v, want absent for an all-zero field", *v.GeoMinusBaro)
	}
}

func TestIdentityCode(t *testing.T) {
	m, err := Parse("2A00516D492B80")
	if err != nil {
		t.Fatal(err)
	}
	if df := m.DF(); df != 5 {
		t.Fatalf("DF = %d, want 5", df)
	}
	squawk, ok := m.IdentityCode()
	if !ok {
		t.Fatal("IdentityCode failed")
	}
	if squawk != "0356" {
		t.Errorf("IdentityCode = %q, want %q", squawk, "0356")
	}
}

func TestAltitudeCode(t *testing.T) {
	// DF 4 reply crafted with Q=1 and N=1560, i.e. 38000 ft.
	m, err := Parse("20001838000000")
	if err != nil {
		t.Fatal(err)
	}
	alt, ok := m.AltitudeCode()
	if !ok {
		t.Fatal("AltitudeCode failed")
	}
	almost(t, "altitude", alt, 38000, 0.5)
}

func TestInferBDS(t *testing.T) {
	cases := []struct {
		msg  string
		want string
	}{
		{msgBDS40, "BDS40"},
		{msgBDS50, "BDS50"},
		{msgBDS60, "BDS60"},
	}
	for _, c := range cases {
		m, err := Parse(c.msg)
		if err != nil {
			t.Fatal(err)
		}
		got, ok := m.InferBDS()
		if !ok {
			t.Errorf("InferBDS(%s): no unambiguous match", c.msg)
			continue
		}
		if got != c.want {
			t.Errorf("InferBDS(%s) = %s, want %s", c.msg, got, c.want)
		}
	}

	// Extended squitter frames carry no MB field.
	m, _ := Parse(msgVelocity)
	if _, ok := m.InferBDS(); ok {
		t.Error("InferBDS should fail on a DF 17 frame")
	}
}

func TestBDS40Fields(t *testing.T) {
	m, _ := Parse(msgBDS40)
	if v, ok := m.SelectedAltitudeMCP(); !ok || v != 3008 {
		t.Errorf("SelectedAltitudeMCP = %v, %v, want 3008", v, ok)
	}
	if v, ok := m.SelectedAltitudeFMS(); !ok || v != 3008 {
		t.Errorf("SelectedAltitudeFMS = %v, %v, want 3008", v, ok)
	}
	v, ok := m.SelectedBaroSetting()
	if !ok {
		t.Fatal("SelectedBaroSetting failed")
	}
	almost(t, "baro setting", v, 1020.0, 0.05)
}

func TestBDS50Fields(t *testing.T) {
	m, _ := Parse(msgBDS50)
	v, ok := m.RollAngle()
	if !ok {
		t.Fatal("RollAngle failed")
	}
	almost(t, "roll", v, 2.1, 0.05)

	v, ok = m.TrueTrackAngle()
	if !ok {
		t.Fatal("TrueTrackAngle failed")
	}
	almost(t, "track", v, 114.258, 0.005)

	if v, ok = m.GroundSpeed50(); !ok || v != 438 {
		t.Errorf("GroundSpeed50 = %v, %v, want 438", v, ok)
	}
	v, ok = m.TrackAngleRate()
	if !ok {
		t.Fatal("TrackAngleRate failed")
	}
	almost(t, "track rate", v, 0.125, 0.005)

	if v, ok = m.TrueAirspeed50(); !ok || v != 424 {
		t.Errorf("TrueAirspeed50 = %v, %v, want 424", v, ok)
	}
}

func TestBDS60Fields(t *testing.T) {
	m, _ := Parse(msgBDS60)
	v, ok := m.MagneticHeading()
	if !ok {
		t.Fatal("MagneticHeading failed")
	}
	almost(t, "heading", v, 42.71, 0.05)

	if v, ok = m.IndicatedAirspeed60(); !ok || v != 252 {
		t.Errorf("IndicatedAirspeed60 = %v, %v, want 252", v, ok)
	}
	v, ok = m.Mach60()
	if !ok {
		t.Fatal("Mach60 failed")
	}
	almost(t, "mach", v, 0.42, 0.005)

	if v, ok = m.BaroVerticalRate(); !ok || v != -1920 {
		t.Errorf("BaroVerticalRate = %v, %v, want -1920", v, ok)
	}
	if v, ok = m.InertialVerticalRate(); !ok || v != -1920 {
		t.Errorf("InertialVerticalRate = %v, %v, want -1920", v, ok)
	}
}
