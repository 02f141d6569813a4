// Package decoder defines the pluggable message-decoding capability of
// the rebuild pipeline and a registry of named strategies.
//
// A decoder transforms one category's frame table; it may return the
// same table (fields already decoded upstream) or recompute fields
// from the raw messages. A per-row failure never aborts a batch.
package decoder

import (
	"fmt"
	"sort"
	"sync"

	"github.com/open-aviation/skyrebuild/internal/frames"
)

// Decoder is the four-operation decode capability, one operation per
// message category. Implementations must never return more rows than
// they were given.
type Decoder interface {
	DecodePosition(pos []frames.PositionFrame) []frames.PositionFrame
	DecodeVelocity(vel []frames.VelocityFrame) []frames.VelocityFrame
	DecodeIdentification(ident []frames.IdentificationFrame) []frames.IdentificationFrame
	DecodeRollcall(rc []frames.RollcallFrame) []frames.RollcallFrame
}

var (
	mu        sync.RWMutex
	factories = make(map[string]func() Decoder)
)

// Register adds a named decoder strategy. Called from init() in each
// strategy file; vendor decoders may register additional names.
func Register(name string, factory func() Decoder) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// New resolves a decoder strategy by name. An unknown name is a
// configuration error, never a silent fallback.
func New(name string) (Decoder, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown decoder %q (registered: %v)", name, Names())
	}
	return factory(), nil
}

// Names lists the registered strategy names.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
