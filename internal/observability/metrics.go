package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gpm_apd"

// Metrics holds the Prometheus counters, histograms, and gauges for a run.
type Metrics struct {
	DaysProcessed prometheus.Counter
	RunActive     prometheus.Gauge
	Stations      prometheus.Gauge

	// Acquisition metrics.
	ImagesResolved *prometheus.CounterVec // labels: mode={download,stream}, outcome={success,cached,error}
	FetchBytes     prometheus.Counter
	FetchDuration  prometheus.Histogram

	// Sampling metrics.
	SampleErrors  *prometheus.CounterVec // labels: kind={connectivity,decoding,sampling}
	DayDuration   prometheus.Histogram
	RowsPublished prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		DaysProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "days_processed_total",
			Help:      "Total days whose rows were flushed.",
		}),
		RunActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_active",
			Help:      "1 while a date range is being processed, 0 otherwise.",
		}),
		Stations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stations",
			Help:      "Number of stations sampled per image.",
		}),
		ImagesResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_resolved_total",
			Help:      "Image resolutions by acquisition mode and outcome.",
		}, []string{"mode", "outcome"}),
		FetchBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_bytes_total",
			Help:      "Bytes downloaded from the archive.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a single image download.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		SampleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_errors_total",
			Help:      "Window failures recorded in the error file, by kind.",
		}, []string{"kind"}),
		DayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "day_duration_seconds",
			Help:      "Duration of fetching and sampling one day.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		RowsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_published_total",
			Help:      "Output rows delivered to additional sinks.",
		}),
	}
}

// NewMetrics creates and registers all run metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.DaysProcessed,
		m.RunActive,
		m.Stations,
		m.ImagesResolved,
		m.FetchBytes,
		m.FetchDuration,
		m.SampleErrors,
		m.DayDuration,
		m.RowsPublished,
	}
}
