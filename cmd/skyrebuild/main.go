// Command-line entry point for the state-vector rebuild pipeline.
//
// Subcommands:
//
//	rebuild - fetch raw frames for a window, decode and fuse them into
//	          state vectors, written as JSON or CSV
//	ingest  - consume a raw NATS feed into the analytical database
//	initdb  - create the database schemas
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/open-aviation/skyrebuild/internal/airports"
	"github.com/open-aviation/skyrebuild/internal/cache"
	"github.com/open-aviation/skyrebuild/internal/config"
	"github.com/open-aviation/skyrebuild/internal/frames"
	"github.com/open-aviation/skyrebuild/internal/ingest"
	"github.com/open-aviation/skyrebuild/internal/rebuild"
	"github.com/open-aviation/skyrebuild/internal/source"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "skyrebuild - commands:")
	fmt.Fprintln(w, "  rebuild  - rebuild state vectors for a time window")
	fmt.Fprintln(w, "  ingest   - consume a raw feed into the database")
	fmt.Fprintln(w, "  initdb   - create the database schemas")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  skyrebuild rebuild -start 2022-01-01T10:00:00Z -stop 2022-01-01T11:00:00Z -icao24 400a0e[,...] [-output out.json]")
	fmt.Fprintln(w, "  skyrebuild rebuild -start ... -stop ... -bound west,south,east,north [-format csv]")
	fmt.Fprintln(w, "  skyrebuild rebuild -start ... -stop ... -place LFBO [-rollcall join]")
	fmt.Fprintln(w, "  skyrebuild ingest [-config config.yaml]")
	fmt.Fprintln(w, "  skyrebuild initdb [-config config.yaml]")
	fmt.Fprintln(w, "")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	switch strings.ToLower(os.Args[1]) {
	case "rebuild":
		runRebuild(os.Args[2:])
	case "ingest":
		runIngest(os.Args[2:])
	case "initdb":
		runInitDB(os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func loadConfig(path string) config.Config {
	if path == "" {
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

func runRebuild(args []string) {
	fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to config file (optional)")
	start := fs.String("start", "", "Window start (RFC 3339)")
	stop := fs.String("stop", "", "Window stop (RFC 3339)")
	icao24 := fs.String("icao24", "", "Comma-separated transponder addresses")
	boundStr := fs.String("bound", "", "Bounding box as west,south,east,north")
	place := fs.String("place", "", "Airport or region code resolved to a bounding box")
	decoderName := fs.String("decoder", "cpr", "Decoding strategy")
	rollcall := fs.String("rollcall", "omit", "Rollcall handling: omit, join or append")
	output := fs.String("output", "", "Output file (default stdout)")
	format := fs.String("format", "json", "Output format: json or csv")
	pretty := fs.Bool("pretty", false, "Indent JSON output")
	_ = fs.Parse(args)

	tr, err := parseWindow(*start, *stop)
	if err != nil {
		log.Fatalf("rebuild: %v", err)
	}

	opts := rebuild.Options{
		Range:   tr,
		Decoder: *decoderName,
		Place:   *place,
	}
	if *icao24 != "" {
		opts.ICAO24 = strings.Split(*icao24, ",")
	}
	if *boundStr != "" {
		bound, err := parseBound(*boundStr)
		if err != nil {
			log.Fatalf("rebuild: %v", err)
		}
		opts.Bound = bound
	}
	switch *rollcall {
	case "omit":
		opts.Rollcall = rebuild.RollcallOmit
	case "join":
		opts.Rollcall = rebuild.RollcallJoin
	case "append":
		opts.Rollcall = rebuild.RollcallAppend
	default:
		log.Fatalf("rebuild: unknown rollcall mode %q", *rollcall)
	}

	cfg := loadConfig(*cfgPath)
	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	ch, err := source.OpenClickHouse(ctx, cfg.ClickHouse)
	if err != nil {
		log.Fatalf("rebuild: %v", err)
	}
	defer func() { _ = ch.Close() }()

	var src source.Source = ch
	if cfg.Cache.Enabled {
		cacheDB, err := cache.Open(cfg.Cache.Path, cfg.Cache.MaxAge)
		if err != nil {
			log.Fatalf("rebuild: %v", err)
		}
		defer func() { _ = cacheDB.Close() }()
		src = cache.Wrap(ch, cacheDB)
	}

	var resolver rebuild.Resolver
	if *place != "" {
		pg, err := airports.Open(ctx, cfg.Postgres)
		if err != nil {
			log.Fatalf("rebuild: %v", err)
		}
		defer pg.Close()
		resolver = pg
	}

	svc := rebuild.NewService(src, resolver)
	svs, err := svc.Rebuild(ctx, opts)
	if err != nil {
		log.Fatalf("rebuild: %v", err)
	}
	log.Printf("rebuild: %d state vectors", len(svs))

	var w io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("rebuild: %v", err)
		}
		defer f.Close()
		w = f
	}

	switch *format {
	case "json":
		err = writeJSON(w, svs, *pretty)
	case "csv":
		err = writeCSV(w, svs)
	default:
		log.Fatalf("rebuild: unknown format %q", *format)
	}
	if err != nil {
		log.Fatalf("rebuild: write output: %v", err)
	}
}

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to config file (optional)")
	_ = fs.Parse(args)

	cfg := loadConfig(*cfgPath)
	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	ch, err := source.OpenClickHouse(ctx, cfg.ClickHouse)
	if err != nil {
		log.Fatalf("ingest: %v", err)
	}
	defer func() { _ = ch.Close() }()

	consumer := ingest.NewConsumer(cfg.Ingest, ch)
	if err := consumer.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("ingest: %v", err)
	}
	log.Println("ingest: stopped")
}

func runInitDB(args []string) {
	fs := flag.NewFlagSet("initdb", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to config file (optional)")
	_ = fs.Parse(args)

	cfg := loadConfig(*cfgPath)
	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	ch, err := source.OpenClickHouse(ctx, cfg.ClickHouse)
	if err != nil {
		log.Fatalf("initdb: %v", err)
	}
	defer func() { _ = ch.Close() }()
	if err := ch.CreateSchema(ctx); err != nil {
		log.Fatalf("initdb: clickhouse: %v", err)
	}
	log.Println("initdb: clickhouse schema ready")

	pg, err := airports.Open(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("initdb: %v", err)
	}
	defer pg.Close()
	if err := pg.CreateSchema(ctx); err != nil {
		log.Fatalf("initdb: postgres: %v", err)
	}
	log.Println("initdb: postgres schema ready")
}

func parseWindow(start, stop string) (source.TimeRange, error) {
	if start == "" || stop == "" {
		return source.TimeRange{}, fmt.Errorf("both -start and -stop are required")
	}
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return source.TimeRange{}, fmt.Errorf("parse -start: %w", err)
	}
	e, err := time.Parse(time.RFC3339, stop)
	if err != nil {
		return source.TimeRange{}, fmt.Errorf("parse -stop: %w", err)
	}
	if !e.After(s) {
		return source.TimeRange{}, fmt.Errorf("-stop must be after -start")
	}
	return source.TimeRange{Start: s, Stop: e}, nil
}

func parseBound(s string) (*source.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bound must be west,south,east,north")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("parse bound: %w", err)
		}
		vals[i] = v
	}
	return &source.Bound{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}, nil
}

func writeJSON(w io.Writer, svs []frames.StateVector, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(svs)
}

func writeCSV(w io.Writer, svs []frames.StateVector) error {
	cw := csv.NewWriter(w)
	// The rollcall columns mirror the JSON payload, so neither format
	// loses fields relative to the other.
	header := []string{
		"icao24", "timestamp", "lat", "lon", "altitude", "onground",
		"groundspeed", "track", "vertical_rate", "geoaltitude", "callsign",
		"squawk", "bds",
		"selalt40mcp", "selalt40fms", "p40baro",
		"roll50", "trk50", "rtrk50", "gs50", "tas50",
		"hdg60", "ias60", "mach60", "vr60baro", "vr60ins",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	fmtFloat := func(v *float64) string {
		if v == nil {
			return ""
		}
		return strconv.FormatFloat(*v, 'f', -1, 64)
	}
	fmtBool := func(v *bool) string {
		if v == nil {
			return ""
		}
		return strconv.FormatBool(*v)
	}
	fmtString := func(v *string) string {
		if v == nil {
			return ""
		}
		return *v
	}

	for _, sv := range svs {
		rc := sv.Rollcall
		if rc == nil {
			rc = &frames.RollcallData{}
		}
		row := []string{
			sv.ICAO24,
			strconv.FormatFloat(sv.Time, 'f', -1, 64),
			fmtFloat(sv.Lat),
			fmtFloat(sv.Lon),
			fmtFloat(sv.Altitude),
			fmtBool(sv.OnGround),
			fmtFloat(sv.GroundSpeed),
			fmtFloat(sv.Track),
			fmtFloat(sv.VerticalRate),
			fmtFloat(sv.GeoAltitude),
			fmtString(sv.Callsign),
			fmtString(rc.Squawk),
			fmtString(rc.BDS),
			fmtFloat(rc.SelAltMCP),
			fmtFloat(rc.SelAltFMS),
			fmtFloat(rc.BaroSetting),
			fmtFloat(rc.Roll),
			fmtFloat(rc.TrueTrack),
			fmtFloat(rc.TrackRate),
			fmtFloat(rc.GroundSpeed),
			fmtFloat(rc.TrueAirspeed),
			fmtFloat(rc.MagneticHeading),
			fmtFloat(rc.IndicatedAirspeed),
			fmtFloat(rc.Mach),
			fmtFloat(rc.BaroVerticalRate),
			fmtFloat(rc.InertialVerticalRate),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
