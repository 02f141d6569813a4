package rebuild

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/open-aviation/skyrebuild/internal/frames"
	"github.com/open-aviation/skyrebuild/internal/source"
)

type fakeSource struct {
	calls []string

	pos      []frames.PositionFrame
	boundPos []frames.PositionFrame
	vel      []frames.VelocityFrame
	ident    []frames.IdentificationFrame
	rc       []frames.RollcallFrame
}

func (f *fakeSource) Positions(ctx context.Context, tr source.TimeRange, icao24 []string) ([]frames.PositionFrame, error) {
	f.calls = append(f.calls, "positions")
	return f.pos, nil
}

func (f *fakeSource) PositionsInBounds(ctx context.Context, tr source.TimeRange, bound source.Bound) ([]frames.PositionFrame, error) {
	f.calls = append(f.calls, "positions_in_bounds")
	return f.boundPos, nil
}

func (f *fakeSource) Velocities(ctx context.Context, tr source.TimeRange, icao24 []string) ([]frames.VelocityFrame, error) {
	f.calls = append(f.calls, "velocities")
	return f.vel, nil
}

func (f *fakeSource) Identifications(ctx context.Context, tr source.TimeRange, icao24 []string) ([]frames.IdentificationFrame, error) {
	f.calls = append(f.calls, "identifications")
	return f.ident, nil
}

func (f *fakeSource) Rollcalls(ctx context.Context, tr source.TimeRange, icao24 []string) ([]frames.RollcallFrame, error) {
	f.calls = append(f.calls, "rollcalls")
	return f.rc, nil
}

type fakeResolver struct {
	regions map[string]source.Bound
}

func (r *fakeResolver) Resolve(ctx context.Context, ident string) (*source.Bound, error) {
	b, ok := r.regions[ident]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func window() source.TimeRange {
	return source.TimeRange{
		Start: time.Unix(0, 0),
		Stop:  time.Unix(1000, 0),
	}
}

func TestRebuildRequiresFilter(t *testing.T) {
	src := &fakeSource{}
	svc := NewService(src, nil)

	_, err := svc.Rebuild(context.Background(), Options{
		Range:   window(),
		Decoder: "passthrough",
	})

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("got %v, want ConfigError", err)
	}
	if len(src.calls) != 0 {
		t.Errorf("source queried before validation: %v", src.calls)
	}
}

func TestRebuildRejectsConflictingFilters(t *testing.T) {
	src := &fakeSource{
		pos: []frames.PositionFrame{
			{ICAO24: "400a0e", MinTime: 100, RawMsg: "p1",
				Lat: frames.Float(-30), Lon: frames.Float(150)},
		},
	}
	svc := NewService(src, nil)

	combos := []Options{
		{Range: window(), Decoder: "passthrough",
			ICAO24: []string{"400a0e"},
			Bound:  &source.Bound{West: -5, South: 42, East: 8, North: 51}},
		{Range: window(), Decoder: "passthrough",
			ICAO24: []string{"400a0e"}, Place: "LFBO"},
		{Range: window(), Decoder: "passthrough",
			Bound: &source.Bound{West: -5, South: 42, East: 8, North: 51},
			Place: "LFBO"},
	}
	for i, opts := range combos {
		_, err := svc.Rebuild(context.Background(), opts)
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("combo %d: got %v, want ConfigError for combined filters", i, err)
		}
	}
	if len(src.calls) != 0 {
		t.Errorf("source queried despite broken filter: %v", src.calls)
	}
}

func TestRebuildUnknownDecoderTakesPrecedence(t *testing.T) {
	// Both the decoder name and the filter are broken; the decoder
	// error is the one reported, and nothing is fetched.
	src := &fakeSource{}
	svc := NewService(src, nil)

	_, err := svc.Rebuild(context.Background(), Options{
		Range:   window(),
		Decoder: "nonsense",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "nonsense") {
		t.Errorf("error %q should name the decoder", err)
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("unknown decoder error is %T, want *ConfigError", err)
	}
	if len(src.calls) != 0 {
		t.Errorf("source queried: %v", src.calls)
	}
}

func TestRebuildNoDataYieldsNil(t *testing.T) {
	src := &fakeSource{}
	svc := NewService(src, nil)

	out, err := svc.Rebuild(context.Background(), Options{
		Range:   window(),
		ICAO24:  []string{"400a0e"},
		Decoder: "passthrough",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Errorf("got %d rows, want nil", len(out))
	}
}

func TestRebuildBoundResolvesAddresses(t *testing.T) {
	src := &fakeSource{
		boundPos: []frames.PositionFrame{
			{ICAO24: "400A0E", MinTime: 100, RawMsg: "a"},
			{ICAO24: "40621d", MinTime: 101, RawMsg: "b"},
		},
		pos: []frames.PositionFrame{
			{ICAO24: "400a0e", MinTime: 100, RawMsg: "a", Lat: frames.Float(48), Lon: frames.Float(2)},
			{ICAO24: "40621d", MinTime: 101, RawMsg: "b", Lat: frames.Float(48.1), Lon: frames.Float(2.1)},
		},
	}
	svc := NewService(src, nil)

	out, err := svc.Rebuild(context.Background(), Options{
		Range:   window(),
		Bound:   &source.Bound{West: 1, South: 44, East: 3, North: 50},
		Decoder: "passthrough",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d rows, want 2", len(out))
	}
	want := []string{"positions_in_bounds", "positions", "velocities", "identifications"}
	if strings.Join(src.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", src.calls, want)
	}
}

func TestRebuildEmptyBoundSample(t *testing.T) {
	src := &fakeSource{}
	svc := NewService(src, nil)

	out, err := svc.Rebuild(context.Background(), Options{
		Range:   window(),
		Bound:   &source.Bound{West: 1, South: 44, East: 3, North: 50},
		Decoder: "passthrough",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Errorf("got %d rows, want nil", len(out))
	}
	if strings.Join(src.calls, ",") != "positions_in_bounds" {
		t.Errorf("calls = %v, want only the bound sample", src.calls)
	}
}

func TestRebuildResolvesPlace(t *testing.T) {
	src := &fakeSource{
		boundPos: []frames.PositionFrame{{ICAO24: "400a0e", MinTime: 100, RawMsg: "a"}},
		pos: []frames.PositionFrame{
			{ICAO24: "400a0e", MinTime: 100, RawMsg: "a", Lat: frames.Float(43.6), Lon: frames.Float(1.4)},
		},
	}
	svc := NewService(src, &fakeResolver{regions: map[string]source.Bound{
		"LFBO": {West: 1, South: 43, East: 2, North: 44},
	}})

	out, err := svc.Rebuild(context.Background(), Options{
		Range:   window(),
		Place:   "LFBO",
		Decoder: "passthrough",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d rows, want 1", len(out))
	}

	_, err = svc.Rebuild(context.Background(), Options{
		Range:   window(),
		Place:   "ZZZZ",
		Decoder: "passthrough",
	})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("unknown place: got %v, want ConfigError", err)
	}
}

func TestRebuildDropsDuplicateRawMessages(t *testing.T) {
	src := &fakeSource{
		pos: []frames.PositionFrame{
			{ICAO24: "400a0e", MinTime: 100, RawMsg: "same", Lat: frames.Float(48), Lon: frames.Float(2)},
			{ICAO24: "400a0e", MinTime: 100.4, RawMsg: "same", Lat: frames.Float(48), Lon: frames.Float(2)},
			{ICAO24: "400a0e", MinTime: 103, RawMsg: "other", Lat: frames.Float(48.01), Lon: frames.Float(2.01)},
		},
	}
	svc := NewService(src, nil)

	out, err := svc.Rebuild(context.Background(), Options{
		Range:   window(),
		ICAO24:  []string{"400A0E"},
		Decoder: "passthrough",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d rows, want 2 (duplicate raw message dropped)", len(out))
	}
}

func TestRebuildFusesNearestSamples(t *testing.T) {
	src := &fakeSource{
		pos: []frames.PositionFrame{
			{ICAO24: "400a0e", MinTime: 101.8, RawMsg: "p1",
				Lat: frames.Float(48), Lon: frames.Float(2), Altitude: frames.Float(38000)},
			{ICAO24: "400a0e", MinTime: 120, RawMsg: "p2",
				Lat: frames.Float(48.01), Lon: frames.Float(2.01)},
		},
		vel: []frames.VelocityFrame{
			{ICAO24: "400a0e", MinTime: 90, RawMsg: "v0",
				VerticalRate: frames.Float(0), GeoMinusBaro: frames.Float(100)},
			{ICAO24: "400a0e", MinTime: 102, RawMsg: "v1",
				GroundSpeed: frames.Float(450), Track: frames.Float(180),
				VerticalRate: frames.Float(-832), GeoMinusBaro: frames.Float(550)},
		},
		ident: []frames.IdentificationFrame{
			{ICAO24: "400a0e", MinTime: 101, RawMsg: "i1", Callsign: frames.String("KLM1023_")},
		},
	}
	svc := NewService(src, nil)

	out, err := svc.Rebuild(context.Background(), Options{
		Range:   window(),
		ICAO24:  []string{"400a0e"},
		Decoder: "passthrough",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d rows, want one per decoded position", len(out))
	}

	first := out[0]
	if first.VerticalRate == nil || *first.VerticalRate != -832 {
		t.Errorf("VerticalRate = %v, want -832 (velocity at t=102 joins t=101.8)", first.VerticalRate)
	}
	if first.GroundSpeed == nil || *first.GroundSpeed != 450 {
		t.Errorf("GroundSpeed = %v, want 450 filled from velocity", first.GroundSpeed)
	}
	if first.GeoAltitude == nil || *first.GeoAltitude != 38550 {
		t.Errorf("GeoAltitude = %v, want 38550", first.GeoAltitude)
	}
	if first.Callsign == nil || *first.Callsign != "KLM1023" {
		t.Errorf("Callsign = %v, want KLM1023 with padding stripped", first.Callsign)
	}

	// The second position is more than 5s from every velocity sample.
	second := out[1]
	if second.VerticalRate != nil {
		t.Errorf("VerticalRate = %v, want absent outside tolerance", second.VerticalRate)
	}
	if second.GeoAltitude != nil {
		t.Errorf("GeoAltitude = %v, want absent without an altitude", second.GeoAltitude)
	}
}

func TestRebuildGeoAltitudeRequiresBothFields(t *testing.T) {
	src := &fakeSource{
		pos: []frames.PositionFrame{
			// Has altitude, matched velocity lacks geominurbaro.
			{ICAO24: "400a0e", MinTime: 100, RawMsg: "p1",
				Lat: frames.Float(48), Lon: frames.Float(2), Altitude: frames.Float(38000)},
			// Matched velocity has geominurbaro, position lacks altitude.
			{ICAO24: "400a0e", MinTime: 200, RawMsg: "p2",
				Lat: frames.Float(48.1), Lon: frames.Float(2.1)},
		},
		vel: []frames.VelocityFrame{
			{ICAO24: "400a0e", MinTime: 100, RawMsg: "v1", VerticalRate: frames.Float(64)},
			{ICAO24: "400a0e", MinTime: 200, RawMsg: "v2", GeoMinusBaro: frames.Float(550)},
		},
	}
	svc := NewService(src, nil)

	out, err := svc.Rebuild(context.Background(), Options{
		Range:   window(),
		ICAO24:  []string{"400a0e"},
		Decoder: "passthrough",
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, sv := range out {
		if sv.GeoAltitude != nil {
			t.Errorf("row %d: GeoAltitude = %v, want absent", i, *sv.GeoAltitude)
		}
	}
}

func TestRebuildPositionTrackWins(t *testing.T) {
	src := &fakeSource{
		pos: []frames.PositionFrame{
			{ICAO24: "400a0e", MinTime: 100, RawMsg: "p1",
				Lat: frames.Float(48), Lon: frames.Float(2),
				GroundSpeed: frames.Float(12), Track: frames.Float(90)},
		},
		vel: []frames.VelocityFrame{
			{ICAO24: "400a0e", MinTime: 100, RawMsg: "v1",
				GroundSpeed: frames.Float(450), Track: frames.Float(180)},
		},
	}
	svc := NewService(src, nil)

	out, err := svc.Rebuild(context.Background(), Options{
		Range:   window(),
		ICAO24:  []string{"400a0e"},
		Decoder: "passthrough",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d rows, want 1", len(out))
	}
	if *out[0].Track != 90 || *out[0].GroundSpeed != 12 {
		t.Errorf("track/groundspeed = %v/%v, want the position stream's 90/12",
			*out[0].Track, *out[0].GroundSpeed)
	}
}

func TestRebuildRollcallModes(t *testing.T) {
	newSrc := func() *fakeSource {
		return &fakeSource{
			pos: []frames.PositionFrame{
				{ICAO24: "400a0e", MinTime: 100, RawMsg: "p1",
					Lat: frames.Float(48), Lon: frames.Float(2)},
			},
			rc: []frames.RollcallFrame{
				{ICAO24: "400a0e", MinTime: 101, RawMsg: "r1", Squawk: frames.String("0356")},
				{ICAO24: "400a0e", MinTime: 400, RawMsg: "r2", Squawk: frames.String("7700")},
			},
		}
	}

	src := newSrc()
	svc := NewService(src, nil)
	out, err := svc.Rebuild(context.Background(), Options{
		Range: window(), ICAO24: []string{"400a0e"}, Decoder: "passthrough",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Rollcall != nil {
		t.Error("omit mode fused rollcall data")
	}
	for _, call := range src.calls {
		if call == "rollcalls" {
			t.Error("omit mode fetched the rollcall stream")
		}
	}

	src = newSrc()
	out, err = NewService(src, nil).Rebuild(context.Background(), Options{
		Range: window(), ICAO24: []string{"400a0e"}, Decoder: "passthrough",
		Rollcall: RollcallJoin,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("join mode: got %d rows, want 1", len(out))
	}
	if out[0].Rollcall == nil || out[0].Rollcall.Squawk == nil || *out[0].Rollcall.Squawk != "0356" {
		t.Errorf("join mode: rollcall = %+v, want nearest squawk 0356", out[0].Rollcall)
	}

	src = newSrc()
	out, err = NewService(src, nil).Rebuild(context.Background(), Options{
		Range: window(), ICAO24: []string{"400a0e"}, Decoder: "passthrough",
		Rollcall: RollcallAppend,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("append mode: got %d rows, want 3", len(out))
	}
	// Appended rows carry only the address, time and payload, sorted
	// into the timeline.
	if out[1].Lat != nil || out[1].Rollcall == nil {
		t.Errorf("append mode: row %+v should be payload-only", out[1])
	}
	if out[0].Time != 100 || out[1].Time != 101 || out[2].Time != 400 {
		t.Errorf("append mode: times %v/%v/%v out of order", out[0].Time, out[1].Time, out[2].Time)
	}
}

func TestRebuildSortsByAddressThenTime(t *testing.T) {
	src := &fakeSource{
		pos: []frames.PositionFrame{
			{ICAO24: "40621d", MinTime: 50, RawMsg: "b1", Lat: frames.Float(48), Lon: frames.Float(2)},
			{ICAO24: "400a0e", MinTime: 200, RawMsg: "a2", Lat: frames.Float(49), Lon: frames.Float(3)},
			{ICAO24: "400a0e", MinTime: 100, RawMsg: "a1", Lat: frames.Float(48.5), Lon: frames.Float(2.5)},
		},
	}
	svc := NewService(src, nil)

	out, err := svc.Rebuild(context.Background(), Options{
		Range:   window(),
		ICAO24:  []string{"400a0e", "40621d"},
		Decoder: "passthrough",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d rows, want 3", len(out))
	}
	order := []struct {
		addr string
		t    float64
	}{{"400a0e", 100}, {"400a0e", 200}, {"40621d", 50}}
	for i, want := range order {
		if out[i].ICAO24 != want.addr || out[i].Time != want.t {
			t.Errorf("row %d = %s@%v, want %s@%v", i, out[i].ICAO24, out[i].Time, want.addr, want.t)
		}
	}
}

func TestRedecodeRollcallOnly(t *testing.T) {
	src := &fakeSource{
		rc: []frames.RollcallFrame{
			{ICAO24: "4CA000", MinTime: 100, RawMsg: "A000139381951536E024D4CCF6B5"},
		},
	}
	svc := NewService(src, nil)

	out, err := svc.RedecodeRollcall(context.Background(), Options{
		Range:  window(),
		ICAO24: []string{"4ca000"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d rows, want 1", len(out))
	}
	if out[0].ICAO24 != "4ca000" {
		t.Errorf("address %q not normalized", out[0].ICAO24)
	}
	if out[0].BDS == nil || *out[0].BDS != "BDS50" {
		t.Errorf("BDS = %v, want BDS50", out[0].BDS)
	}
	if strings.Join(src.calls, ",") != "rollcalls" {
		t.Errorf("calls = %v, want only the rollcall fetch", src.calls)
	}
}
