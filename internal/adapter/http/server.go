package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/geoaggregate/internal/adapter/csvout"
	"github.com/couchcryptid/geoaggregate/internal/adapter/linelist"
	"github.com/couchcryptid/geoaggregate/internal/domain"
	"github.com/couchcryptid/geoaggregate/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Runner executes one aggregation run. *pipeline.Pipeline satisfies it.
type Runner interface {
	ReadinessChecker
	Run(ctx context.Context, src pipeline.LinelistSource, opts domain.Options) (domain.WeeklyReport, error)
}

// OptionsFunc resolves per-request overrides into run options.
// config.Config.AggregateOptions has this shape.
type OptionsFunc func(categories []string, joinMode, alignment string) (domain.Options, error)

// AggregateConfig controls the upload endpoint.
type AggregateConfig struct {
	Columns        linelist.Columns
	MaxUploadBytes int64
	Options        OptionsFunc
}

// Server exposes the aggregation endpoint next to health, readiness, and metrics.
type Server struct {
	httpServer *http.Server
	runner     Runner
	agg        AggregateConfig
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and
// POST /v1/aggregate routes.
func NewServer(addr string, runner Runner, agg AggregateConfig, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		runner: runner,
		agg:    agg,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(runner))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /v1/aggregate", s.handleAggregate)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// handleAggregate reads a linelist CSV body and answers with the weekly
// counts CSV. Query parameters: mpc (comma-separated categories), align, join.
func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts, err := s.agg.Options(domain.ParseCategories(q.Get("mpc")), q.Get("join"), q.Get("align"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	body := r.Body
	if s.agg.MaxUploadBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.agg.MaxUploadBytes)
	}
	report, err := s.runner.Run(r.Context(), linelist.NewReaderSource(body, s.agg.Columns), opts)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("aggregate request failed", "error", err)
		}
		writeError(w, status, err)
		return
	}

	// Encode into a buffer first so an encoding failure can still become a 500.
	var buf bytes.Buffer
	if err := csvout.Encode(&buf, report); err != nil {
		s.logger.Error("encode weekly counts", "error", err, "run_id", report.RunID)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("X-Run-Id", report.RunID)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck // client went away
}

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, pipeline.ErrZonesNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrMalformedRecord),
		errors.Is(err, domain.ErrEmptyInput),
		errors.Is(err, domain.ErrConfiguration):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort health response
}
