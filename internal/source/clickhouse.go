package source

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/open-aviation/skyrebuild/internal/frames"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// ClickHouse implements Source against the raw message tables of a
// ClickHouse database. It also carries the insert path used by the
// live ingest pipeline.
type ClickHouse struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouse{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouse) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the four raw message tables.
func (d *ClickHouse) CreateSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS position_data4 (
			mintime      Float64,
			maxtime      Float64,
			icao24       LowCardinality(String),
			rawmsg       String,
			odd          Bool,
			lat          Nullable(Float64),
			lon          Nullable(Float64),
			alt          Nullable(Float64),
			groundspeed  Nullable(Float64),
			heading      Nullable(Float64),
			nic          Nullable(Int32),
			surface      Nullable(Bool)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(toDateTime(mintime))
		ORDER BY (icao24, mintime)
		SETTINGS index_granularity = 8192`,

		`CREATE TABLE IF NOT EXISTS velocity_data4 (
			mintime      Float64,
			maxtime      Float64,
			icao24       LowCardinality(String),
			rawmsg       String,
			velocity     Nullable(Float64),
			heading      Nullable(Float64),
			vertrate     Nullable(Float64),
			geominurbaro Nullable(Float64)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(toDateTime(mintime))
		ORDER BY (icao24, mintime)`,

		`CREATE TABLE IF NOT EXISTS identification_data4 (
			mintime  Float64,
			maxtime  Float64,
			icao24   LowCardinality(String),
			rawmsg   String,
			identity Nullable(String)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(toDateTime(mintime))
		ORDER BY (icao24, mintime)`,

		`CREATE TABLE IF NOT EXISTS rollcall_replies_data4 (
			mintime  Float64,
			maxtime  Float64,
			icao24   LowCardinality(String),
			rawmsg   String,
			altitude Nullable(Float64),
			identity Nullable(String)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(toDateTime(mintime))
		ORDER BY (icao24, mintime)`,
	}

	for _, q := range queries {
		if err := d.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func unix(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Positions fetches position frames for the given window and address
// list.
func (d *ClickHouse) Positions(ctx context.Context, tr TimeRange, icao24 []string) ([]frames.PositionFrame, error) {
	rows, err := d.conn.Query(ctx, `
		SELECT mintime, icao24, rawmsg, odd, lat, lon, alt, groundspeed, heading, nic, surface
		FROM position_data4
		WHERE mintime >= ? AND mintime < ? AND icao24 IN (?)
		ORDER BY icao24, mintime
	`, unix(tr.Start), unix(tr.Stop), normalizeAll(icao24))
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	out, err := scanPositions(rows)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PositionsInBounds fetches position frames whose stored fix lies in
// the bounding box. Used once per rebuild to resolve a geographic
// filter to a candidate address list.
func (d *ClickHouse) PositionsInBounds(ctx context.Context, tr TimeRange, b Bound) ([]frames.PositionFrame, error) {
	rows, err := d.conn.Query(ctx, `
		SELECT mintime, icao24, rawmsg, odd, lat, lon, alt, groundspeed, heading, nic, surface
		FROM position_data4
		WHERE mintime >= ? AND mintime < ?
		  AND lat IS NOT NULL AND lon IS NOT NULL
		  AND lat >= ? AND lat <= ? AND lon >= ? AND lon <= ?
		ORDER BY icao24, mintime
	`, unix(tr.Start), unix(tr.Stop), b.South, b.North, b.West, b.East)
	if err != nil {
		return nil, fmt.Errorf("query positions in bounds: %w", err)
	}
	defer rows.Close()

	out, err := scanPositions(rows)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanPositions(rows driver.Rows) ([]frames.PositionFrame, error) {
	var out []frames.PositionFrame
	for rows.Next() {
		var f frames.PositionFrame
		var nic *int32
		err := rows.Scan(&f.MinTime, &f.ICAO24, &f.RawMsg, &f.Odd,
			&f.Lat, &f.Lon, &f.Altitude, &f.GroundSpeed, &f.Track, &nic, &f.OnGround)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		if nic != nil {
			v := int(*nic)
			f.NIC = &v
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}
	return out, nil
}

// Velocities fetches velocity frames for the given window and address
// list.
func (d *ClickHouse) Velocities(ctx context.Context, tr TimeRange, icao24 []string) ([]frames.VelocityFrame, error) {
	rows, err := d.conn.Query(ctx, `
		SELECT mintime, icao24, rawmsg, velocity, heading, vertrate, geominurbaro
		FROM velocity_data4
		WHERE mintime >= ? AND mintime < ? AND icao24 IN (?)
		ORDER BY icao24, mintime
	`, unix(tr.Start), unix(tr.Stop), normalizeAll(icao24))
	if err != nil {
		return nil, fmt.Errorf("query velocities: %w", err)
	}
	defer rows.Close()

	var out []frames.VelocityFrame
	for rows.Next() {
		var f frames.VelocityFrame
		err := rows.Scan(&f.MinTime, &f.ICAO24, &f.RawMsg,
			&f.GroundSpeed, &f.Track, &f.VerticalRate, &f.GeoMinusBaro)
		if err != nil {
			return nil, fmt.Errorf("scan velocity row: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate velocity rows: %w", err)
	}
	return out, nil
}

// Identifications fetches identification frames for the given window
// and address list.
func (d *ClickHouse) Identifications(ctx context.Context, tr TimeRange, icao24 []string) ([]frames.IdentificationFrame, error) {
	rows, err := d.conn.Query(ctx, `
		SELECT mintime, icao24, rawmsg, identity
		FROM identification_data4
		WHERE mintime >= ? AND mintime < ? AND icao24 IN (?)
		ORDER BY icao24, mintime
	`, unix(tr.Start), unix(tr.Stop), normalizeAll(icao24))
	if err != nil {
		return nil, fmt.Errorf("query identifications: %w", err)
	}
	defer rows.Close()

	var out []frames.IdentificationFrame
	for rows.Next() {
		var f frames.IdentificationFrame
		if err := rows.Scan(&f.MinTime, &f.ICAO24, &f.RawMsg, &f.Callsign); err != nil {
			return nil, fmt.Errorf("scan identification row: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identification rows: %w", err)
	}
	return out, nil
}

// Rollcalls fetches rollcall reply frames for the given window and
// address list.
func (d *ClickHouse) Rollcalls(ctx context.Context, tr TimeRange, icao24 []string) ([]frames.RollcallFrame, error) {
	rows, err := d.conn.Query(ctx, `
		SELECT mintime, icao24, rawmsg, altitude, identity
		FROM rollcall_replies_data4
		WHERE mintime >= ? AND mintime < ? AND icao24 IN (?)
		ORDER BY icao24, mintime
	`, unix(tr.Start), unix(tr.Stop), normalizeAll(icao24))
	if err != nil {
		return nil, fmt.Errorf("query rollcalls: %w", err)
	}
	defer rows.Close()

	var out []frames.RollcallFrame
	for rows.Next() {
		var f frames.RollcallFrame
		if err := rows.Scan(&f.MinTime, &f.ICAO24, &f.RawMsg, &f.Altitude, &f.Squawk); err != nil {
			return nil, fmt.Errorf("scan rollcall row: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rollcall rows: %w", err)
	}
	return out, nil
}

// InsertPositions stores a batch of position frames.
func (d *ClickHouse) InsertPositions(ctx context.Context, rows []frames.PositionFrame) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO position_data4 (mintime, maxtime, icao24, rawmsg, odd, lat, lon, alt, groundspeed, heading, nic, surface)
	`)
	if err != nil {
		return fmt.Errorf("prepare position batch: %w", err)
	}
	for _, f := range rows {
		var nic *int32
		if f.NIC != nil {
			v := int32(*f.NIC)
			nic = &v
		}
		err := batch.Append(f.MinTime, f.MinTime, frames.NormalizeAddress(f.ICAO24), f.RawMsg, f.Odd,
			f.Lat, f.Lon, f.Altitude, f.GroundSpeed, f.Track, nic, f.OnGround)
		if err != nil {
			return fmt.Errorf("append position row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send position batch: %w", err)
	}
	return nil
}

// InsertVelocities stores a batch of velocity frames.
func (d *ClickHouse) InsertVelocities(ctx context.Context, rows []frames.VelocityFrame) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO velocity_data4 (mintime, maxtime, icao24, rawmsg, velocity, heading, vertrate, geominurbaro)
	`)
	if err != nil {
		return fmt.Errorf("prepare velocity batch: %w", err)
	}
	for _, f := range rows {
		err := batch.Append(f.MinTime, f.MinTime, frames.NormalizeAddress(f.ICAO24), f.RawMsg,
			f.GroundSpeed, f.Track, f.VerticalRate, f.GeoMinusBaro)
		if err != nil {
			return fmt.Errorf("append velocity row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send velocity batch: %w", err)
	}
	return nil
}

// InsertIdentifications stores a batch of identification frames.
func (d *ClickHouse) InsertIdentifications(ctx context.Context, rows []frames.IdentificationFrame) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO identification_data4 (mintime, maxtime, icao24, rawmsg, identity)
	`)
	if err != nil {
		return fmt.Errorf("prepare identification batch: %w", err)
	}
	for _, f := range rows {
		err := batch.Append(f.MinTime, f.MinTime, frames.NormalizeAddress(f.ICAO24), f.RawMsg, f.Callsign)
		if err != nil {
			return fmt.Errorf("append identification row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send identification batch: %w", err)
	}
	return nil
}

// InsertRollcalls stores a batch of rollcall reply frames.
func (d *ClickHouse) InsertRollcalls(ctx context.Context, rows []frames.RollcallFrame) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO rollcall_replies_data4 (mintime, maxtime, icao24, rawmsg, altitude, identity)
	`)
	if err != nil {
		return fmt.Errorf("prepare rollcall batch: %w", err)
	}
	for _, f := range rows {
		err := batch.Append(f.MinTime, f.MinTime, frames.NormalizeAddress(f.ICAO24), f.RawMsg, f.Altitude, f.Squawk)
		if err != nil {
			return fmt.Errorf("append rollcall row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send rollcall batch: %w", err)
	}
	return nil
}
