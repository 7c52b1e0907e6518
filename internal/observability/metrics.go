package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "geoaggregate"

// Metrics holds the Prometheus counters, histograms, and gauges for aggregation runs.
type Metrics struct {
	RecordsRead    prometheus.Counter
	RecordsJoined  *prometheus.CounterVec // labels: outcome={assigned,unassigned,dropped}
	WeeklyCells    prometheus.Counter
	Runs           *prometheus.CounterVec // labels: outcome={success,error}
	RunDuration    prometheus.Histogram
	StageDuration  *prometheus.HistogramVec // labels: stage={extract,aggregate,load}
	ZonesLoaded    prometheus.Gauge
	ZoneCache      *prometheus.CounterVec // labels: result={hit,miss}
	SinkWrites     *prometheus.CounterVec // labels: sink, outcome={success,error}
	PipelineActive prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_read_total",
			Help:      "Linelist records read from the source.",
		}),
		RecordsJoined: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_joined_total",
			Help:      "Records by spatial join outcome.",
		}, []string{"outcome"}),
		WeeklyCells: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weekly_cells_total",
			Help:      "Weekly cells emitted by completed runs.",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Aggregation runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete extract-aggregate-load run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each run stage.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 10},
		}, []string{"stage"}),
		ZonesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "zones_loaded",
			Help:      "Number of zones in the active zone index.",
		}),
		ZoneCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zone_cache_total",
			Help:      "Point lookup cache results.",
		}, []string{"result"}),
		SinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_writes_total",
			Help:      "Report deliveries by sink and outcome.",
		}, []string{"sink", "outcome"}),
		PipelineActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_active",
			Help:      "1 while a run is in progress.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RecordsRead,
		m.RecordsJoined,
		m.WeeklyCells,
		m.Runs,
		m.RunDuration,
		m.StageDuration,
		m.ZonesLoaded,
		m.ZoneCache,
		m.SinkWrites,
		m.PipelineActive,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// WriteTextfile dumps the default registry in the node_exporter textfile
// format, for batch runs that exit before any scrape.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
