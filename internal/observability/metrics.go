package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hdd_momentum"

// Metrics holds the Prometheus counters, histograms, and gauges for the refresh engine.
type Metrics struct {
	Refreshes        *prometheus.CounterVec // labels: outcome={complete,partial,failed}
	RefreshDuration  prometheus.Histogram
	LastRefresh      prometheus.Gauge
	SchedulerRunning prometheus.Gauge

	// Composite state after the most recent refresh.
	CompositeTotal   prometheus.Gauge
	DeltaTotal       prometheus.Gauge
	CoveredWeight    prometheus.Gauge
	LocationsMissing prometheus.Gauge

	// Forecast provider metrics.
	ForecastRequests    *prometheus.CounterVec // labels: outcome={success,error}
	ForecastCache       *prometheus.CounterVec // labels: result={hit,miss}
	ForecastAPIDuration prometheus.Histogram

	// Climate index metrics.
	IndexRequests *prometheus.CounterVec // labels: indicator, outcome={success,error}

	// Archive and publishing.
	ArchiveWrites      *prometheus.CounterVec // labels: outcome={success,error,skipped}
	ArchiveCorrupt     prometheus.Gauge
	SnapshotsPublished prometheus.Counter
	PublishErrors      prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates metrics registered with reg. A nil reg leaves them
// unregistered. One-shot processes such as the CLI pass a private registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	if reg != nil {
		reg.MustRegister(m.collectors()...)
	}
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return NewMetricsWith(nil)
}

func newMetrics() *Metrics {
	return &Metrics{
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Refresh runs by outcome.",
		}, []string{"outcome"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a complete fetch-aggregate-compare-archive refresh.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		LastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_refresh_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running",
			Help:      "1 while the cycle scheduler is running, 0 otherwise.",
		}),
		CompositeTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "composite_total_hdd",
			Help:      "Weighted composite HDD total over the forecast horizon.",
		}),
		DeltaTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "delta_total_hdd",
			Help:      "Change in composite HDD total against the reference cycle.",
		}),
		CoveredWeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "covered_weight",
			Help:      "Sum of weights of locations that contributed to the last composite.",
		}),
		LocationsMissing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locations_missing",
			Help:      "Locations without a usable series in the last refresh.",
		}),
		ForecastRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_requests_total",
			Help:      "Forecast API requests by outcome.",
		}, []string{"outcome"}),
		ForecastCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_cache_total",
			Help:      "Forecast cache lookups by result.",
		}, []string{"result"}),
		ForecastAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forecast_api_duration_seconds",
			Help:      "Forecast API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		IndexRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_requests_total",
			Help:      "Climate index fetches by indicator and outcome.",
		}, []string{"indicator", "outcome"}),
		ArchiveWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_writes_total",
			Help:      "Archive writes by outcome.",
		}, []string{"outcome"}),
		ArchiveCorrupt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "archive_corrupt",
			Help:      "1 when the archive could not be read on its last load.",
		}),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_published_total",
			Help:      "Snapshot events written to Kafka.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Snapshot events that could not be written to Kafka.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Refreshes,
		m.RefreshDuration,
		m.LastRefresh,
		m.SchedulerRunning,
		m.CompositeTotal,
		m.DeltaTotal,
		m.CoveredWeight,
		m.LocationsMissing,
		m.ForecastRequests,
		m.ForecastCache,
		m.ForecastAPIDuration,
		m.IndexRequests,
		m.ArchiveWrites,
		m.ArchiveCorrupt,
		m.SnapshotsPublished,
		m.PublishErrors,
	}
}
