// Package frames defines the raw and decoded message tables that flow
// through the rebuild pipeline, one row type per message category.
//
// Fields that may be missing are pointers: nil means "could not be
// decoded", never a zero sentinel.
package frames

import "strings"

// Category identifies one of the four raw message streams.
type Category string

const (
	CategoryPosition       Category = "position"
	CategoryVelocity       Category = "velocity"
	CategoryIdentification Category = "identification"
	CategoryRollcall       Category = "rollcall"
)

// NormalizeAddress canonicalizes a transponder address (icao24) to the
// lower-case hex form used as the join key everywhere in the pipeline.
func NormalizeAddress(icao24 string) string {
	return strings.ToLower(strings.TrimSpace(icao24))
}

// PositionFrame is one row of the position stream: a raw CPR frame plus
// whatever decoded fields the source already carries.
type PositionFrame struct {
	ICAO24  string  `json:"icao24"`
	MinTime float64 `json:"mintime"` // seconds since epoch
	RawMsg  string  `json:"rawmsg"`
	Odd     bool    `json:"odd"` // CPR parity flag

	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	Altitude    *float64 `json:"altitude,omitempty"`
	GroundSpeed *float64 `json:"groundspeed,omitempty"`
	Track       *float64 `json:"track,omitempty"`
	OnGround    *bool    `json:"onground,omitempty"`
	NIC         *int     `json:"nic,omitempty"`
}

// VelocityFrame is one row of the velocity stream.
type VelocityFrame struct {
	ICAO24  string  `json:"icao24"`
	MinTime float64 `json:"mintime"`
	RawMsg  string  `json:"rawmsg"`

	GroundSpeed  *float64 `json:"groundspeed,omitempty"`
	Track        *float64 `json:"track,omitempty"`
	VerticalRate *float64 `json:"vertical_rate,omitempty"`
	GeoMinusBaro *float64 `json:"geominusbaro,omitempty"` // geometric minus barometric altitude, ft
}

// IdentificationFrame is one row of the identification (callsign) stream.
type IdentificationFrame struct {
	ICAO24  string  `json:"icao24"`
	MinTime float64 `json:"mintime"`
	RawMsg  string  `json:"rawmsg"`

	Callsign *string `json:"callsign,omitempty"`
}

// RollcallFrame is one row of the rollcall reply stream: squawk and,
// when the Comm-B register can be inferred, its decoded fields.
type RollcallFrame struct {
	ICAO24  string  `json:"icao24"`
	MinTime float64 `json:"mintime"`
	RawMsg  string  `json:"rawmsg"`

	Altitude *float64 `json:"altitude,omitempty"`
	Squawk   *string  `json:"squawk,omitempty"`
	BDS      *string  `json:"bds,omitempty"` // inferred register, e.g. "BDS50"

	// BDS 4,0 — selected vertical intention
	SelAltMCP   *float64 `json:"selalt40mcp,omitempty"`
	SelAltFMS   *float64 `json:"selalt40fms,omitempty"`
	BaroSetting *float64 `json:"p40baro,omitempty"`

	// BDS 5,0 — track and turn report
	Roll         *float64 `json:"roll50,omitempty"`
	TrueTrack    *float64 `json:"trk50,omitempty"`
	TrackRate    *float64 `json:"rtrk50,omitempty"`
	GroundSpeed  *float64 `json:"gs50,omitempty"`
	TrueAirspeed *float64 `json:"tas50,omitempty"`

	// BDS 6,0 — heading and speed report
	MagneticHeading      *float64 `json:"hdg60,omitempty"`
	IndicatedAirspeed    *float64 `json:"ias60,omitempty"`
	Mach                 *float64 `json:"mach60,omitempty"`
	BaroVerticalRate     *float64 `json:"vr60baro,omitempty"`
	InertialVerticalRate *float64 `json:"vr60ins,omitempty"`
}

// RollcallData is the rollcall payload attached to a fused state vector.
type RollcallData struct {
	Altitude *float64 `json:"altitude,omitempty"`
	Squawk   *string  `json:"squawk,omitempty"`
	BDS      *string  `json:"bds,omitempty"`

	SelAltMCP   *float64 `json:"selalt40mcp,omitempty"`
	SelAltFMS   *float64 `json:"selalt40fms,omitempty"`
	BaroSetting *float64 `json:"p40baro,omitempty"`

	Roll         *float64 `json:"roll50,omitempty"`
	TrueTrack    *float64 `json:"trk50,omitempty"`
	TrackRate    *float64 `json:"rtrk50,omitempty"`
	GroundSpeed  *float64 `json:"gs50,omitempty"`
	TrueAirspeed *float64 `json:"tas50,omitempty"`

	MagneticHeading      *float64 `json:"hdg60,omitempty"`
	IndicatedAirspeed    *float64 `json:"ias60,omitempty"`
	Mach                 *float64 `json:"mach60,omitempty"`
	BaroVerticalRate     *float64 `json:"vr60baro,omitempty"`
	InertialVerticalRate *float64 `json:"vr60ins,omitempty"`
}

// Rollcall extracts the fused payload view of a rollcall frame.
func (r *RollcallFrame) Rollcall() *RollcallData {
	return &RollcallData{
		Altitude:             r.Altitude,
		Squawk:               r.Squawk,
		BDS:                  r.BDS,
		SelAltMCP:            r.SelAltMCP,
		SelAltFMS:            r.SelAltFMS,
		BaroSetting:          r.BaroSetting,
		Roll:                 r.Roll,
		TrueTrack:            r.TrueTrack,
		TrackRate:            r.TrackRate,
		GroundSpeed:          r.GroundSpeed,
		TrueAirspeed:         r.TrueAirspeed,
		MagneticHeading:      r.MagneticHeading,
		IndicatedAirspeed:    r.IndicatedAirspeed,
		Mach:                 r.Mach,
		BaroVerticalRate:     r.BaroVerticalRate,
		InertialVerticalRate: r.InertialVerticalRate,
	}
}

// StateVector is one fused output row: a validated position sample with
// the nearest-in-time velocity, identification and (optionally) rollcall
// fields attached.
type StateVector struct {
	ICAO24 string  `json:"icao24"`
	Time   float64 `json:"timestamp"` // seconds since epoch

	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	Altitude    *float64 `json:"altitude,omitempty"` // barometric, ft
	OnGround    *bool    `json:"onground,omitempty"`
	GroundSpeed *float64 `json:"groundspeed,omitempty"`
	Track       *float64 `json:"track,omitempty"`

	VerticalRate *float64 `json:"vertical_rate,omitempty"`
	GeoAltitude  *float64 `json:"geoaltitude,omitempty"` // derived, ft

	Callsign *string `json:"callsign,omitempty"`

	// Present only when rollcall fusion was requested.
	Rollcall *RollcallData `json:"rollcall,omitempty"`
}

// Float returns a pointer to v. Convenience for building frames.
func Float(v float64) *float64 { return &v }

// String returns a pointer to s.
func String(s string) *string { return &s }

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }
