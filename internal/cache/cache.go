// Package cache provides a local SQLite cache for raw frame queries so
// that repeated rebuilds of the same window do not hit the analytical
// database twice.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/open-aviation/skyrebuild/internal/frames"
	"github.com/open-aviation/skyrebuild/internal/source"
)

// DefaultMaxAge is how long cached query results are kept.
const DefaultMaxAge = 90 * 24 * time.Hour

// DB wraps a SQLite database holding cached query results.
type DB struct {
	db     *sql.DB
	maxAge time.Duration
}

// Open opens or creates a cache database at the given path. Entries
// older than maxAge are purged on open; pass 0 for the default.
func Open(path string, maxAge time.Duration) (*DB, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	c := &DB{db: db, maxAge: maxAge}
	if err := c.purge(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("purge cache: %w", err)
	}
	return c, nil
}

// Close closes the cache database.
func (d *DB) Close() error {
	return d.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_cache (
		key        TEXT PRIMARY KEY,
		category   TEXT NOT NULL,
		payload    BLOB NOT NULL,
		created_at TEXT NOT NULL DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS idx_query_cache_created ON query_cache(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// purge deletes entries older than the retention window.
func (d *DB) purge() error {
	cutoff := time.Now().UTC().Add(-d.maxAge).Format("2006-01-02 15:04:05")
	_, err := d.db.Exec(`DELETE FROM query_cache WHERE created_at < ?`, cutoff)
	return err
}

// key derives a stable fingerprint for one query. Address order does
// not matter; two queries differing only in slice order share an entry.
func key(category frames.Category, tr source.TimeRange, icao24 []string, bound *source.Bound) string {
	addrs := make([]string, 0, len(icao24))
	for _, a := range icao24 {
		addrs = append(addrs, frames.NormalizeAddress(a))
	}
	sort.Strings(addrs)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s|%d|%d|%s", category, tr.Start.UnixNano(), tr.Stop.UnixNano(), strings.Join(addrs, ","))
	if bound != nil {
		fmt.Fprintf(&sb, "|%g,%g,%g,%g", bound.West, bound.South, bound.East, bound.North)
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func (d *DB) get(k string, out interface{}) (bool, error) {
	var payload []byte
	err := d.db.QueryRow(`SELECT payload FROM query_cache WHERE key = ?`, k).Scan(&payload)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read cache entry: %w", err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return false, fmt.Errorf("decode cache entry: %w", err)
	}
	return true, nil
}

func (d *DB) put(k string, category frames.Category, rows interface{}) error {
	payload, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	_, err = d.db.Exec(`
		INSERT INTO query_cache (key, category, payload) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, created_at = datetime('now')
	`, k, string(category), payload)
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Source wraps an upstream frame source with the local cache. A cache
// failure is never fatal: the wrapper falls through to the upstream
// query.
type Source struct {
	upstream source.Source
	cache    *DB
}

// Wrap returns a Source that serves hits from the cache and stores
// misses after fetching them upstream.
func Wrap(upstream source.Source, cache *DB) *Source {
	return &Source{upstream: upstream, cache: cache}
}

func (s *Source) Positions(ctx context.Context, tr source.TimeRange, icao24 []string) ([]frames.PositionFrame, error) {
	k := key(frames.CategoryPosition, tr, icao24, nil)
	var cached []frames.PositionFrame
	if ok, err := s.cache.get(k, &cached); err == nil && ok {
		return cached, nil
	}
	rows, err := s.upstream.Positions(ctx, tr, icao24)
	if err != nil {
		return nil, err
	}
	_ = s.cache.put(k, frames.CategoryPosition, rows)
	return rows, nil
}

func (s *Source) PositionsInBounds(ctx context.Context, tr source.TimeRange, bound source.Bound) ([]frames.PositionFrame, error) {
	k := key(frames.CategoryPosition, tr, nil, &bound)
	var cached []frames.PositionFrame
	if ok, err := s.cache.get(k, &cached); err == nil && ok {
		return cached, nil
	}
	rows, err := s.upstream.PositionsInBounds(ctx, tr, bound)
	if err != nil {
		return nil, err
	}
	_ = s.cache.put(k, frames.CategoryPosition, rows)
	return rows, nil
}

func (s *Source) Velocities(ctx context.Context, tr source.TimeRange, icao24 []string) ([]frames.VelocityFrame, error) {
	k := key(frames.CategoryVelocity, tr, icao24, nil)
	var cached []frames.VelocityFrame
	if ok, err := s.cache.get(k, &cached); err == nil && ok {
		return cached, nil
	}
	rows, err := s.upstream.Velocities(ctx, tr, icao24)
	if err != nil {
		return nil, err
	}
	_ = s.cache.put(k, frames.CategoryVelocity, rows)
	return rows, nil
}

func (s *Source) Identifications(ctx context.Context, tr source.TimeRange, icao24 []string) ([]frames.IdentificationFrame, error) {
	k := key(frames.CategoryIdentification, tr, icao24, nil)
	var cached []frames.IdentificationFrame
	if ok, err := s.cache.get(k, &cached); err == nil && ok {
		return cached, nil
	}
	rows, err := s.upstream.Identifications(ctx, tr, icao24)
	if err != nil {
		return nil, err
	}
	_ = s.cache.put(k, frames.CategoryIdentification, rows)
	return rows, nil
}

func (s *Source) Rollcalls(ctx context.Context, tr source.TimeRange, icao24 []string) ([]frames.RollcallFrame, error) {
	k := key(frames.CategoryRollcall, tr, icao24, nil)
	var cached []frames.RollcallFrame
	if ok, err := s.cache.get(k, &cached); err == nil && ok {
		return cached, nil
	}
	rows, err := s.upstream.Rollcalls(ctx, tr, icao24)
	if err != nil {
		return nil, err
	}
	_ = s.cache.put(k, frames.CategoryRollcall, rows)
	return rows, nil
}
