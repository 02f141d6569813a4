// Package airports resolves place identifiers (airport or region codes)
// to geographic bounding boxes from a PostgreSQL reference database.
package airports

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/open-aviation/skyrebuild/internal/source"
)

// Config holds PostgreSQL connection settings.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// DB wraps a PostgreSQL connection pool holding the region reference
// table.
type DB struct {
	pool *pgxpool.Pool
}

// Open opens a connection pool to PostgreSQL.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool.
func (d *DB) Close() {
	d.pool.Close()
}

// CreateSchema creates the region reference table.
func (d *DB) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS regions (
		ident       TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		west        DOUBLE PRECISION NOT NULL,
		south       DOUBLE PRECISION NOT NULL,
		east        DOUBLE PRECISION NOT NULL,
		north       DOUBLE PRECISION NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_regions_name ON regions(name);
	`
	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Region is one named bounding box.
type Region struct {
	Ident string
	Name  string
	Bound source.Bound
}

// Upsert inserts or updates a region record.
func (d *DB) Upsert(ctx context.Context, r Region) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO regions (ident, name, west, south, east, north, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (ident) DO UPDATE SET
			name = EXCLUDED.name,
			west = EXCLUDED.west,
			south = EXCLUDED.south,
			east = EXCLUDED.east,
			north = EXCLUDED.north,
			updated_at = NOW()
	`, normalizeIdent(r.Ident), r.Name, r.Bound.West, r.Bound.South, r.Bound.East, r.Bound.North)
	return err
}

// Resolve looks up the bounding box of an airport or region code.
// An unknown code resolves to (nil, nil).
func (d *DB) Resolve(ctx context.Context, ident string) (*source.Bound, error) {
	var b source.Bound
	err := d.pool.QueryRow(ctx, `
		SELECT west, south, east, north FROM regions WHERE ident = $1
	`, normalizeIdent(ident)).Scan(&b.West, &b.South, &b.East, &b.North)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve region %q: %w", ident, err)
	}
	return &b, nil
}

func normalizeIdent(ident string) string {
	return strings.ToUpper(strings.TrimSpace(ident))
}
