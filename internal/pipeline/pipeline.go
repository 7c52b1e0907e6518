package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/geoaggregate/internal/domain"
	"github.com/couchcryptid/geoaggregate/internal/observability"
	"github.com/google/uuid"
)

// LinelistSource reads the whole linelist of one run.
type LinelistSource interface {
	Extract(ctx context.Context) (domain.Linelist, error)
}

// ReportLoader writes a finished report to a destination.
type ReportLoader interface {
	Load(ctx context.Context, report domain.WeeklyReport) error
}

// Sink is a named ReportLoader. The name labels logs and metrics.
type Sink struct {
	Name   string
	Loader ReportLoader
}

// ErrZonesNotLoaded is returned by Run before SetZones has been called.
var ErrZonesNotLoaded = errors.New("zones not loaded")

type zoneSet struct {
	locator domain.ZoneLocator
	count   int
}

// Pipeline runs batch extract-aggregate-load cycles against one zone set.
// Runs are independent and may execute concurrently.
type Pipeline struct {
	zones   atomic.Pointer[zoneSet]
	sinks   []Sink
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Pipeline delivering every report to all sinks in order.
func New(sinks []Sink, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		sinks:   sinks,
		logger:  logger,
		metrics: metrics,
	}
}

// SetZones installs the zone locator used by subsequent runs.
func (p *Pipeline) SetZones(zones domain.ZoneLocator) {
	n := len(zones.Labels())
	p.zones.Store(&zoneSet{locator: zones, count: n})
	p.metrics.ZonesLoaded.Set(float64(n))
	p.logger.Info("zones loaded", "count", n)
}

// CheckReadiness returns nil once zones are loaded.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if p.zones.Load() == nil {
		return ErrZonesNotLoaded
	}
	return nil
}

// Run extracts the linelist, aggregates it, and loads the report into every
// sink. The first failing stage or sink aborts the run.
func (p *Pipeline) Run(ctx context.Context, src LinelistSource, opts domain.Options) (domain.WeeklyReport, error) {
	zs := p.zones.Load()
	if zs == nil {
		return domain.WeeklyReport{}, ErrZonesNotLoaded
	}

	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)
	start := time.Now()
	p.metrics.PipelineActive.Inc()
	defer p.metrics.PipelineActive.Dec()

	report, err := p.run(ctx, logger, zs.locator, src, opts)
	p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.Runs.WithLabelValues("error").Inc()
		logger.Error("run failed", "error", err)
		return domain.WeeklyReport{}, err
	}
	report.RunID = runID

	if err := p.load(ctx, logger, report); err != nil {
		p.metrics.Runs.WithLabelValues("error").Inc()
		logger.Error("run failed", "error", err)
		return domain.WeeklyReport{}, err
	}

	p.metrics.Runs.WithLabelValues("success").Inc()
	logger.Info("run complete",
		"weekly_cells", len(report.Cells),
		"grid_cells", report.GridCells,
		"duration", time.Since(start),
	)
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, zones domain.ZoneLocator, src LinelistSource, opts domain.Options) (domain.WeeklyReport, error) {
	var linelist domain.Linelist
	err := p.stage(ctx, "extract", func() error {
		var err error
		linelist, err = src.Extract(ctx)
		return err
	})
	if err != nil {
		return domain.WeeklyReport{}, err
	}
	p.metrics.RecordsRead.Add(float64(len(linelist.Records)))
	logger.Info("linelist extracted",
		"records", len(linelist.Records),
		"species_tracked", linelist.SpeciesTracked,
	)

	var report domain.WeeklyReport
	err = p.stage(ctx, "aggregate", func() error {
		var err error
		report, err = domain.Aggregate(linelist, zones, opts)
		return err
	})
	if err != nil {
		return domain.WeeklyReport{}, err
	}

	p.metrics.RecordsJoined.WithLabelValues("assigned").Add(float64(report.Join.Assigned))
	p.metrics.RecordsJoined.WithLabelValues("unassigned").Add(float64(report.Join.Unassigned))
	p.metrics.RecordsJoined.WithLabelValues("dropped").Add(float64(report.Join.Dropped))
	p.metrics.WeeklyCells.Add(float64(len(report.Cells)))
	logger.Info("linelist aggregated",
		"assigned", report.Join.Assigned,
		"unassigned", report.Join.Unassigned,
		"dropped", report.Join.Dropped,
		"join_mode", opts.Join.Mode.String(),
		"alignment", opts.Alignment.String(),
	)
	return report, nil
}

// load delivers the report to each sink in order, stopping at the first failure.
func (p *Pipeline) load(ctx context.Context, logger *slog.Logger, report domain.WeeklyReport) error {
	return p.stage(ctx, "load", func() error {
		for _, s := range p.sinks {
			if err := s.Loader.Load(ctx, report); err != nil {
				p.metrics.SinkWrites.WithLabelValues(s.Name, "error").Inc()
				return fmt.Errorf("sink %s: %w", s.Name, err)
			}
			p.metrics.SinkWrites.WithLabelValues(s.Name, "success").Inc()
			logger.Debug("report loaded", "sink", s.Name)
		}
		return nil
	})
}

// stage times fn under the given stage label and wraps its error with the
// stage name. A cancelled context skips the stage.
func (p *Pipeline) stage(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	start := time.Now()
	err := fn()
	p.metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
