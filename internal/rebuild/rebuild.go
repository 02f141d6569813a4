// Package rebuild orchestrates the state-vector rebuild pipeline:
// fetch raw frames per category, decode them with a pluggable strategy,
// and fuse the streams into one table of aircraft state vectors.
package rebuild

import (
	"context"
	"fmt"
	"sort"

	"github.com/open-aviation/skyrebuild/internal/decoder"
	"github.com/open-aviation/skyrebuild/internal/frames"
	"github.com/open-aviation/skyrebuild/internal/source"
)

// RollcallMode selects how rollcall replies enter the output.
type RollcallMode int

const (
	// RollcallOmit skips the rollcall stream entirely.
	RollcallOmit RollcallMode = iota
	// RollcallJoin attaches the nearest-in-time reply to each state
	// vector.
	RollcallJoin
	// RollcallAppend emits replies as extra rows carrying only the
	// address, time and rollcall payload.
	RollcallAppend
)

// ConfigError reports an unusable set of rebuild options. It is always
// returned before any data is fetched.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "rebuild config: " + e.Reason
}

// Resolver turns a place identifier into a bounding box. An unknown
// identifier resolves to (nil, nil).
type Resolver interface {
	Resolve(ctx context.Context, ident string) (*source.Bound, error)
}

// Options selects the window, the aircraft filter and the decoding
// strategy for one rebuild.
type Options struct {
	Range source.TimeRange

	// At least one of ICAO24, Bound or Place must be set.
	ICAO24 []string
	Bound  *source.Bound
	Place  string

	// Decoder names a registered strategy; Instance overrides it with
	// a caller-supplied decoder. Empty means "cpr".
	Decoder  string
	Instance decoder.Decoder

	Rollcall RollcallMode
}

// Service runs rebuilds against a frame source.
type Service struct {
	src    source.Source
	bounds Resolver
}

// NewService builds a rebuild service. The resolver may be nil when no
// place-based filtering is needed.
func NewService(src source.Source, bounds Resolver) *Service {
	return &Service{src: src, bounds: bounds}
}

// Rebuild runs the full pipeline for one window and filter. A window
// with no matching data yields (nil, nil).
func (s *Service) Rebuild(ctx context.Context, opts Options) ([]frames.StateVector, error) {
	// Resolve the decoder before validating anything else: a bad
	// decoder name is the error to report even when the filter is
	// also broken.
	dec, err := s.resolveDecoder(opts)
	if err != nil {
		return nil, err
	}

	if err := validateFilter(opts); err != nil {
		return nil, err
	}

	bound := opts.Bound
	if bound == nil && opts.Place != "" {
		if s.bounds == nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("no region resolver configured for place %q", opts.Place)}
		}
		bound, err = s.bounds.Resolve(ctx, opts.Place)
		if err != nil {
			return nil, err
		}
		if bound == nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("unknown place %q", opts.Place)}
		}
	}

	addrs := normalizeAddrs(opts.ICAO24)

	// A purely geographic filter is resolved to an address list by
	// sampling the stored positions inside the box, then refetching
	// the full history of those aircraft.
	if len(addrs) == 0 {
		sample, err := s.src.PositionsInBounds(ctx, opts.Range, *bound)
		if err != nil {
			return nil, fmt.Errorf("sample positions in bounds: %w", err)
		}
		addrs = distinctAddrs(sample)
		if len(addrs) == 0 {
			return nil, nil
		}
	}

	pos, err := s.src.Positions(ctx, opts.Range, addrs)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	pos = preparePositions(pos)
	pos = dec.DecodePosition(pos)
	if len(pos) == 0 {
		return nil, nil
	}

	vel, err := s.src.Velocities(ctx, opts.Range, addrs)
	if err != nil {
		return nil, fmt.Errorf("fetch velocities: %w", err)
	}
	vel = dec.DecodeVelocity(prepareVelocities(vel))

	ident, err := s.src.Identifications(ctx, opts.Range, addrs)
	if err != nil {
		return nil, fmt.Errorf("fetch identifications: %w", err)
	}
	ident = dec.DecodeIdentification(prepareIdentifications(ident))

	out := fuse(pos, vel, ident)

	if opts.Rollcall != RollcallOmit {
		rc, err := s.src.Rollcalls(ctx, opts.Range, addrs)
		if err != nil {
			return nil, fmt.Errorf("fetch rollcalls: %w", err)
		}
		rc = dec.DecodeRollcall(prepareRollcalls(rc))
		switch opts.Rollcall {
		case RollcallJoin:
			out = joinRollcall(out, rc)
		case RollcallAppend:
			out = appendRollcall(out, rc)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ICAO24 != out[j].ICAO24 {
			return out[i].ICAO24 < out[j].ICAO24
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

func (s *Service) resolveDecoder(opts Options) (decoder.Decoder, error) {
	if opts.Instance != nil {
		return opts.Instance, nil
	}
	name := opts.Decoder
	if name == "" {
		name = "cpr"
	}
	dec, err := decoder.New(name)
	if err != nil {
		// An unknown strategy name is a configuration mistake, same
		// class as a broken filter.
		return nil, &ConfigError{Reason: err.Error()}
	}
	return dec, nil
}

// RedecodePosition fetches and decodes position frames only.
func (s *Service) RedecodePosition(ctx context.Context, opts Options) ([]frames.PositionFrame, error) {
	dec, addrs, err := s.prepare(ctx, opts)
	if err != nil || addrs == nil {
		return nil, err
	}
	pos, err := s.src.Positions(ctx, opts.Range, addrs)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	return dec.DecodePosition(preparePositions(pos)), nil
}

// RedecodeVelocity fetches and decodes velocity frames only.
func (s *Service) RedecodeVelocity(ctx context.Context, opts Options) ([]frames.VelocityFrame, error) {
	dec, addrs, err := s.prepare(ctx, opts)
	if err != nil || addrs == nil {
		return nil, err
	}
	vel, err := s.src.Velocities(ctx, opts.Range, addrs)
	if err != nil {
		return nil, fmt.Errorf("fetch velocities: %w", err)
	}
	return dec.DecodeVelocity(prepareVelocities(vel)), nil
}

// RedecodeIdentification fetches and decodes identification frames only.
func (s *Service) RedecodeIdentification(ctx context.Context, opts Options) ([]frames.IdentificationFrame, error) {
	dec, addrs, err := s.prepare(ctx, opts)
	if err != nil || addrs == nil {
		return nil, err
	}
	ident, err := s.src.Identifications(ctx, opts.Range, addrs)
	if err != nil {
		return nil, fmt.Errorf("fetch identifications: %w", err)
	}
	return dec.DecodeIdentification(prepareIdentifications(ident)), nil
}

// RedecodeRollcall fetches and decodes rollcall replies only.
func (s *Service) RedecodeRollcall(ctx context.Context, opts Options) ([]frames.RollcallFrame, error) {
	dec, addrs, err := s.prepare(ctx, opts)
	if err != nil || addrs == nil {
		return nil, err
	}
	rc, err := s.src.Rollcalls(ctx, opts.Range, addrs)
	if err != nil {
		return nil, fmt.Errorf("fetch rollcalls: %w", err)
	}
	return dec.DecodeRollcall(prepareRollcalls(rc)), nil
}

// prepare resolves the decoder and the address filter shared by the
// single-category operations. addrs == nil with a nil error means the
// filter matched nothing.
func (s *Service) prepare(ctx context.Context, opts Options) (decoder.Decoder, []string, error) {
	dec, err := s.resolveDecoder(opts)
	if err != nil {
		return nil, nil, err
	}

	if err := validateFilter(opts); err != nil {
		return nil, nil, err
	}

	addrs := normalizeAddrs(opts.ICAO24)
	if len(addrs) > 0 {
		return dec, addrs, nil
	}

	bound := opts.Bound
	if bound == nil {
		if s.bounds == nil {
			return nil, nil, &ConfigError{Reason: fmt.Sprintf("no region resolver configured for place %q", opts.Place)}
		}
		bound, err = s.bounds.Resolve(ctx, opts.Place)
		if err != nil {
			return nil, nil, err
		}
		if bound == nil {
			return nil, nil, &ConfigError{Reason: fmt.Sprintf("unknown place %q", opts.Place)}
		}
	}

	sample, err := s.src.PositionsInBounds(ctx, opts.Range, *bound)
	if err != nil {
		return nil, nil, fmt.Errorf("sample positions in bounds: %w", err)
	}
	addrs = distinctAddrs(sample)
	if len(addrs) == 0 {
		return dec, nil, nil
	}
	return dec, addrs, nil
}

// validateFilter requires exactly one aircraft filter. Combining an
// address list with a geographic filter would mean silently ignoring
// one of them; that ambiguity is rejected up front.
func validateFilter(opts Options) error {
	set := 0
	if len(normalizeAddrs(opts.ICAO24)) > 0 {
		set++
	}
	if opts.Bound != nil {
		set++
	}
	if opts.Place != "" {
		set++
	}
	switch {
	case set == 0:
		return &ConfigError{Reason: "an icao24 list, a bounding box or a place is required"}
	case set > 1:
		return &ConfigError{Reason: "icao24, bound and place filters are mutually exclusive"}
	}
	return nil
}

func normalizeAddrs(icao24 []string) []string {
	out := make([]string, 0, len(icao24))
	for _, a := range icao24 {
		a = frames.NormalizeAddress(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func distinctAddrs(pos []frames.PositionFrame) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range pos {
		addr := frames.NormalizeAddress(f.ICAO24)
		if addr == "" {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// preparePositions normalizes addresses, drops duplicated raw messages
// and sorts by (icao24, time). The same raw frame received by several
// sensors must enter the pipeline once.
func preparePositions(pos []frames.PositionFrame) []frames.PositionFrame {
	seen := make(map[string]struct{}, len(pos))
	out := make([]frames.PositionFrame, 0, len(pos))
	for _, f := range pos {
		if f.RawMsg != "" {
			if _, dup := seen[f.RawMsg]; dup {
				continue
			}
			seen[f.RawMsg] = struct{}{}
		}
		f.ICAO24 = frames.NormalizeAddress(f.ICAO24)
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ICAO24 != out[j].ICAO24 {
			return out[i].ICAO24 < out[j].ICAO24
		}
		return out[i].MinTime < out[j].MinTime
	})
	return out
}

func prepareVelocities(vel []frames.VelocityFrame) []frames.VelocityFrame {
	seen := make(map[string]struct{}, len(vel))
	out := make([]frames.VelocityFrame, 0, len(vel))
	for _, f := range vel {
		if f.RawMsg != "" {
			if _, dup := seen[f.RawMsg]; dup {
				continue
			}
			seen[f.RawMsg] = struct{}{}
		}
		f.ICAO24 = frames.NormalizeAddress(f.ICAO24)
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ICAO24 != out[j].ICAO24 {
			return out[i].ICAO24 < out[j].ICAO24
		}
		return out[i].MinTime < out[j].MinTime
	})
	return out
}

func prepareIdentifications(ident []frames.IdentificationFrame) []frames.IdentificationFrame {
	seen := make(map[string]struct{}, len(ident))
	out := make([]frames.IdentificationFrame, 0, len(ident))
	for _, f := range ident {
		if f.RawMsg != "" {
			if _, dup := seen[f.RawMsg]; dup {
				continue
			}
			seen[f.RawMsg] = struct{}{}
		}
		f.ICAO24 = frames.NormalizeAddress(f.ICAO24)
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ICAO24 != out[j].ICAO24 {
			return out[i].ICAO24 < out[j].ICAO24
		}
		return out[i].MinTime < out[j].MinTime
	})
	return out
}

func prepareRollcalls(rc []frames.RollcallFrame) []frames.RollcallFrame {
	seen := make(map[string]struct{}, len(rc))
	out := make([]frames.RollcallFrame, 0, len(rc))
	for _, f := range rc {
		if f.RawMsg != "" {
			if _, dup := seen[f.RawMsg]; dup {
				continue
			}
			seen[f.RawMsg] = struct{}{}
		}
		f.ICAO24 = frames.NormalizeAddress(f.ICAO24)
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ICAO24 != out[j].ICAO24 {
			return out[i].ICAO24 < out[j].ICAO24
		}
		return out[i].MinTime < out[j].MinTime
	})
	return out
}
