// Package source provides access to the raw transponder message
// tables of the analytical database, one table per message category.
package source

import (
	"context"
	"time"

	"github.com/open-aviation/skyrebuild/internal/frames"
)

// TimeRange is a half-open [Start, Stop) query window.
type TimeRange struct {
	Start time.Time
	Stop  time.Time
}

// Bound is a geographic bounding box in degrees.
type Bound struct {
	West  float64 `json:"west" yaml:"west"`
	South float64 `json:"south" yaml:"south"`
	East  float64 `json:"east" yaml:"east"`
	North float64 `json:"north" yaml:"north"`
}

// Contains reports whether the point lies inside the box.
func (b Bound) Contains(lat, lon float64) bool {
	return lat >= b.South && lat <= b.North && lon >= b.West && lon <= b.East
}

// Source supplies raw frames restricted to a time window and an
// aircraft address filter. Implementations return frames already
// limited to the requested category and window; callers do not
// re-filter by time. An empty result is represented by an empty or
// nil slice, never an error.
type Source interface {
	Positions(ctx context.Context, tr TimeRange, icao24 []string) ([]frames.PositionFrame, error)
	PositionsInBounds(ctx context.Context, tr TimeRange, bound Bound) ([]frames.PositionFrame, error)
	Velocities(ctx context.Context, tr TimeRange, icao24 []string) ([]frames.VelocityFrame, error)
	Identifications(ctx context.Context, tr TimeRange, icao24 []string) ([]frames.IdentificationFrame, error)
	Rollcalls(ctx context.Context, tr TimeRange, icao24 []string) ([]frames.RollcallFrame, error)
}

func normalizeAll(icao24 []string) []string {
	out := make([]string, 0, len(icao24))
	for _, addr := range icao24 {
		out = append(out, frames.NormalizeAddress(addr))
	}
	return out
}
