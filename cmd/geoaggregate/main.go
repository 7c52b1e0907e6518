// Command geoaggregate turns a consultation linelist into weekly per-zone
// counts and writes them as CSV.
//
// Usage:
//
//	geoaggregate -o weekly.csv -g zones.geojson -m gastroenteric,respiratory \
//	  -a calendar-sunday -j left linelist.csv
//
// Settings not given as flags come from GEOAGG_* environment variables, an
// optional YAML file named by GEOAGG_CONFIG, and a .env file when present.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/geoaggregate/internal/adapter/csvout"
	kafkaadapter "github.com/couchcryptid/geoaggregate/internal/adapter/kafka"
	"github.com/couchcryptid/geoaggregate/internal/adapter/linelist"
	"github.com/couchcryptid/geoaggregate/internal/adapter/postgres"
	"github.com/couchcryptid/geoaggregate/internal/adapter/zonecache"
	"github.com/couchcryptid/geoaggregate/internal/adapter/zones"
	"github.com/couchcryptid/geoaggregate/internal/config"
	"github.com/couchcryptid/geoaggregate/internal/domain"
	"github.com/couchcryptid/geoaggregate/internal/observability"
	"github.com/couchcryptid/geoaggregate/internal/pipeline"
	"github.com/joho/godotenv"
)

type flags struct {
	output      string
	geo         string
	mpc         string
	align       string
	join        string
	metricsFile string
	input       string
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	f, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if f.geo != "" {
		cfg.GeoPath = f.geo
	}
	if f.metricsFile != "" {
		cfg.MetricsFile = f.metricsFile
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := run(ctx, cfg, f, logger, metrics)

	if cfg.MetricsFile != "" {
		if err := observability.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Error("failed to write metrics file", "path", cfg.MetricsFile, "error", err)
		}
	}
	if runErr != nil {
		logger.Error("aggregation failed", "error", runErr)
		os.Exit(1)
	}
}

func parseFlags(args []string) (flags, error) {
	var f flags
	set := flag.NewFlagSet("geoaggregate", flag.ContinueOnError)
	set.StringVar(&f.output, "output", "", "output CSV path (required)")
	set.StringVar(&f.output, "o", "", "shorthand for --output")
	set.StringVar(&f.geo, "geo", "", "GeoJSON zone file; embedded UK nations when empty")
	set.StringVar(&f.geo, "g", "", "shorthand for --geo")
	set.StringVar(&f.mpc, "mpc", "", "comma-separated categories to count")
	set.StringVar(&f.mpc, "m", "", "shorthand for --mpc")
	set.StringVar(&f.align, "align", "", "week alignment: rolling-from-start or calendar-sunday")
	set.StringVar(&f.align, "a", "", "shorthand for --align")
	set.StringVar(&f.join, "join", "", "join mode: inner or left")
	set.StringVar(&f.join, "j", "", "shorthand for --join")
	set.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")
	if err := set.Parse(args); err != nil {
		return f, err
	}

	if f.output == "" {
		set.Usage()
		return f, errors.New("missing required flag: --output")
	}
	if set.NArg() != 1 {
		set.Usage()
		return f, fmt.Errorf("expected one linelist path, got %d", set.NArg())
	}
	f.input = set.Arg(0)
	return f, nil
}

func run(ctx context.Context, cfg *config.Config, f flags, logger *slog.Logger, metrics *observability.Metrics) error {
	opts, err := cfg.AggregateOptions(domain.ParseCategories(f.mpc), f.join, f.align)
	if err != nil {
		return err
	}

	index, err := zones.LoadIndex(cfg.GeoPath, cfg.ZoneLabelField)
	if err != nil {
		return fmt.Errorf("load zones: %w", err)
	}

	// The CSV file goes last so a failed publish leaves no output behind.
	var sinks []pipeline.Sink
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		w := kafkaadapter.NewWriter(brokers, cfg.KafkaTopic, logger)
		defer closeWith(logger, "kafka writer", w.Close)
		sinks = append(sinks, pipeline.Sink{Name: "kafka", Loader: w})
	}
	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return err
		}
		defer closeWith(logger, "postgres", store.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, pipeline.Sink{Name: "postgres", Loader: store})
	}
	sinks = append(sinks, pipeline.Sink{Name: "csv", Loader: csvout.NewFileSink(f.output)})

	p := pipeline.New(sinks, logger, metrics)
	p.SetZones(zonecache.Wrap(index, cfg.ZoneCacheSize, metrics))

	report, err := p.Run(ctx, linelist.NewFileSource(f.input, linelist.ColumnsFrom(cfg)), opts)
	if err != nil {
		return err
	}
	logger.Info("weekly counts written",
		"output", f.output,
		"rows", len(report.Cells),
		"total_count", report.TotalCount(),
	)
	return nil
}

func closeWith(logger *slog.Logger, what string, fn func() error) {
	if err := fn(); err != nil {
		logger.Error(what+" close error", "error", err)
	}
}
