// Command geoaggregate-server serves weekly aggregation over HTTP. Each
// POST /v1/aggregate runs the pipeline on the uploaded linelist; reports are
// also published to Kafka and Postgres when those sinks are configured.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/geoaggregate/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/geoaggregate/internal/adapter/kafka"
	"github.com/couchcryptid/geoaggregate/internal/adapter/linelist"
	"github.com/couchcryptid/geoaggregate/internal/adapter/postgres"
	"github.com/couchcryptid/geoaggregate/internal/adapter/zonecache"
	"github.com/couchcryptid/geoaggregate/internal/adapter/zones"
	"github.com/couchcryptid/geoaggregate/internal/config"
	"github.com/couchcryptid/geoaggregate/internal/observability"
	"github.com/couchcryptid/geoaggregate/internal/pipeline"
	"github.com/joho/godotenv"
)

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

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sinks []pipeline.Sink
	var kafkaWriter *kafkaadapter.Writer
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		kafkaWriter = kafkaadapter.NewWriter(brokers, cfg.KafkaTopic, logger)
		sinks = append(sinks, pipeline.Sink{Name: "kafka", Loader: kafkaWriter})
		logger.Info("kafka sink enabled", "topic", cfg.KafkaTopic)
	}
	var store *postgres.Store
	if cfg.PostgresDSN != "" {
		store, err = postgres.Open(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			logger.Error("failed to connect postgres", "error", err)
			os.Exit(1)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare postgres schema", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, pipeline.Sink{Name: "postgres", Loader: store})
		logger.Info("postgres sink enabled")
	}

	p := pipeline.New(sinks, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, httpadapter.AggregateConfig{
		Columns:        linelist.ColumnsFrom(cfg),
		MaxUploadBytes: cfg.MaxUploadBytes,
		Options:        cfg.AggregateOptions,
	}, logger)

	// Start HTTP server. /readyz reports 503 until the zones below are loaded.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	index, zonesErr := zones.LoadIndex(cfg.GeoPath, cfg.ZoneLabelField)
	if zonesErr != nil {
		logger.Error("failed to load zones", "path", cfg.GeoPath, "error", zonesErr)
		stop()
	} else {
		p.SetZones(zonecache.Wrap(index, cfg.ZoneCacheSize, metrics))
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaWriter != nil {
		if err := kafkaWriter.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("postgres close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	if zonesErr != nil {
		os.Exit(1)
	}
}
