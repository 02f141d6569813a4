// Package ingest consumes raw transponder messages from a NATS feed,
// classifies each into one of the four categories and stores it with
// its pre-decoded columns.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"gopkg.in/yaml.v3"

	"github.com/open-aviation/skyrebuild/internal/frames"
	"github.com/open-aviation/skyrebuild/internal/modes"
)

// Config holds NATS connection and batching settings.
type Config struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Queue   string `yaml:"queue"`

	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// UnmarshalYAML accepts flush_interval as a duration string ("2s").
// Fields absent from the document keep their current values.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type plain struct {
		URL           string `yaml:"url"`
		Subject       string `yaml:"subject"`
		Queue         string `yaml:"queue"`
		BatchSize     int    `yaml:"batch_size"`
		FlushInterval string `yaml:"flush_interval"`
	}
	p := plain{URL: c.URL, Subject: c.Subject, Queue: c.Queue, BatchSize: c.BatchSize}
	if c.FlushInterval > 0 {
		p.FlushInterval = c.FlushInterval.String()
	}
	if err := value.Decode(&p); err != nil {
		return err
	}
	c.URL = p.URL
	c.Subject = p.Subject
	c.Queue = p.Queue
	c.BatchSize = p.BatchSize
	if p.FlushInterval != "" {
		d, err := time.ParseDuration(p.FlushInterval)
		if err != nil {
			return fmt.Errorf("parse flush_interval: %w", err)
		}
		c.FlushInterval = d
	}
	return nil
}

// Envelope is the wire format of one raw message on the feed.
type Envelope struct {
	ICAO24 string  `json:"icao24"`
	Time   float64 `json:"time"`
	RawMsg string  `json:"rawmsg"`
}

// Sink receives classified frame batches. *source.ClickHouse satisfies
// it.
type Sink interface {
	InsertPositions(ctx context.Context, rows []frames.PositionFrame) error
	InsertVelocities(ctx context.Context, rows []frames.VelocityFrame) error
	InsertIdentifications(ctx context.Context, rows []frames.IdentificationFrame) error
	InsertRollcalls(ctx context.Context, rows []frames.RollcallFrame) error
}

// Classify determines which category table a raw message belongs to.
// Messages of other downlink formats are not stored.
func Classify(m *modes.Message) (frames.Category, bool) {
	switch m.DF() {
	case 17, 18:
		tc := m.Typecode()
		switch {
		case tc >= 1 && tc <= 4:
			return frames.CategoryIdentification, true
		case tc >= 5 && tc <= 8, tc >= 9 && tc <= 18, tc >= 20 && tc <= 22:
			return frames.CategoryPosition, true
		case tc == 19:
			return frames.CategoryVelocity, true
		}
	case 4, 5, 20, 21:
		return frames.CategoryRollcall, true
	}
	return "", false
}

// PositionFrame builds a stored position row with the columns that can
// be decoded from a single frame. Latitude and longitude stay empty:
// they need a paired frame.
func PositionFrame(env Envelope, m *modes.Message) frames.PositionFrame {
	f := frames.PositionFrame{
		ICAO24:  frames.NormalizeAddress(env.ICAO24),
		MinTime: env.Time,
		RawMsg:  env.RawMsg,
	}
	if odd, ok := m.OddFlag(); ok {
		f.Odd = odd
	}
	if alt, ok := m.AirborneAltitude(); ok {
		f.Altitude = &alt
	}
	surface := m.Surface()
	f.OnGround = &surface
	return f
}

// VelocityFrame builds a stored velocity row.
func VelocityFrame(env Envelope, m *modes.Message) frames.VelocityFrame {
	f := frames.VelocityFrame{
		ICAO24:  frames.NormalizeAddress(env.ICAO24),
		MinTime: env.Time,
		RawMsg:  env.RawMsg,
	}
	if v, ok := m.Velocity(); ok {
		f.GroundSpeed = frames.Float(v.Speed)
		f.Track = frames.Float(v.Track)
		f.VerticalRate = v.VerticalRate
		f.GeoMinusBaro = v.GeoMinusBaro
	}
	return f
}

// IdentificationFrame builds a stored identification row.
func IdentificationFrame(env Envelope, m *modes.Message) frames.IdentificationFrame {
	f := frames.IdentificationFrame{
		ICAO24:  frames.NormalizeAddress(env.ICAO24),
		MinTime: env.Time,
		RawMsg:  env.RawMsg,
	}
	if cs, ok := m.Callsign(); ok {
		f.Callsign = &cs
	}
	return f
}

// RollcallFrame builds a stored rollcall reply row.
func RollcallFrame(env Envelope, m *modes.Message) frames.RollcallFrame {
	f := frames.RollcallFrame{
		ICAO24:  frames.NormalizeAddress(env.ICAO24),
		MinTime: env.Time,
		RawMsg:  env.RawMsg,
	}
	if alt, ok := m.AltitudeCode(); ok {
		f.Altitude = &alt
	}
	if squawk, ok := m.IdentityCode(); ok {
		f.Squawk = &squawk
	}
	return f
}

// batch accumulates classified rows between flushes.
type batch struct {
	pos   []frames.PositionFrame
	vel   []frames.VelocityFrame
	ident []frames.IdentificationFrame
	rc    []frames.RollcallFrame
}

func (b *batch) size() int {
	return len(b.pos) + len(b.vel) + len(b.ident) + len(b.rc)
}

// Add classifies one envelope into the batch. Unparseable or
// unclassifiable messages are dropped.
func (b *batch) Add(env Envelope) bool {
	m, err := modes.Parse(env.RawMsg)
	if err != nil {
		return false
	}
	cat, ok := Classify(m)
	if !ok {
		return false
	}
	switch cat {
	case frames.CategoryPosition:
		b.pos = append(b.pos, PositionFrame(env, m))
	case frames.CategoryVelocity:
		b.vel = append(b.vel, VelocityFrame(env, m))
	case frames.CategoryIdentification:
		b.ident = append(b.ident, IdentificationFrame(env, m))
	case frames.CategoryRollcall:
		b.rc = append(b.rc, RollcallFrame(env, m))
	}
	return true
}

func (b *batch) flush(ctx context.Context, sink Sink) error {
	if err := sink.InsertPositions(ctx, b.pos); err != nil {
		return fmt.Errorf("flush positions: %w", err)
	}
	if err := sink.InsertVelocities(ctx, b.vel); err != nil {
		return fmt.Errorf("flush velocities: %w", err)
	}
	if err := sink.InsertIdentifications(ctx, b.ident); err != nil {
		return fmt.Errorf("flush identifications: %w", err)
	}
	if err := sink.InsertRollcalls(ctx, b.rc); err != nil {
		return fmt.Errorf("flush rollcalls: %w", err)
	}
	*b = batch{}
	return nil
}

// Consumer subscribes to the raw message feed and stores classified
// frames in batches.
type Consumer struct {
	cfg  Config
	sink Sink
}

// NewConsumer builds a consumer. Zero batch settings get defaults.
func NewConsumer(cfg Config, sink Sink) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	return &Consumer{cfg: cfg, sink: sink}
}

// Run consumes the feed until the context is cancelled. The final
// partial batch is flushed before returning.
func (c *Consumer) Run(ctx context.Context) error {
	nc, err := nats.Connect(c.cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Close()

	envs := make(chan Envelope, 4096)
	handler := func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Printf("ingest: bad envelope: %v", err)
			return
		}
		select {
		case envs <- env:
		case <-ctx.Done():
		}
	}

	var sub *nats.Subscription
	if c.cfg.Queue != "" {
		sub, err = nc.QueueSubscribe(c.cfg.Subject, c.cfg.Queue, handler)
	} else {
		sub, err = nc.Subscribe(c.cfg.Subject, handler)
	}
	if err != nil {
		return fmt.Errorf("subscribe %q: %w", c.cfg.Subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	log.Printf("ingest: consuming %q from %s", c.cfg.Subject, c.cfg.URL)

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	var b batch
	for {
		select {
		case <-ctx.Done():
			if err := b.flush(context.Background(), c.sink); err != nil {
				return err
			}
			return ctx.Err()
		case env := <-envs:
			b.Add(env)
			if b.size() >= c.cfg.BatchSize {
				if err := b.flush(ctx, c.sink); err != nil {
					return err
				}
			}
		case <-ticker.C:
			if b.size() == 0 {
				continue
			}
			if err := b.flush(ctx, c.sink); err != nil {
				return err
			}
		}
	}
}
