package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for ingestion, upstream calls and forecasting.
type Metrics struct {
	IngestionRunning prometheus.Gauge
	IngestionRuns    *prometheus.CounterVec // labels: outcome={success,error}
	IngestedRows     *prometheus.CounterVec // labels: outcome={processed,failed,dropped}
	Readings         *prometheus.CounterVec // labels: result={inserted,skipped}

	ClimateRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	ClimateAPIDuration prometheus.Histogram

	ForecastRequests *prometheus.CounterVec // labels: gateway, outcome={success,error}
}

// NewMetrics creates and registers all collectors with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.IngestionRunning,
		m.IngestionRuns,
		m.IngestedRows,
		m.Readings,
		m.ClimateRequests,
		m.ClimateAPIDuration,
		m.ForecastRequests,
	)
	return m
}

// NewMetricsForTesting creates unregistered collectors so tests can build as
// many instances as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		IngestionRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ghi",
			Name:      "ingestion_running",
			Help:      "1 while an ingestion run is in progress.",
		}),
		IngestionRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ghi",
			Name:      "ingestion_runs_total",
			Help:      "Ingestion runs by outcome.",
		}, []string{"outcome"}),
		IngestedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ghi",
			Name:      "ingestion_rows_total",
			Help:      "Source rows handled by ingestion, by outcome.",
		}, []string{"outcome"}),
		Readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ghi",
			Name:      "readings_total",
			Help:      "Readings offered to the store, by result.",
		}, []string{"result"}),
		ClimateRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ghi",
			Name:      "climate_requests_total",
			Help:      "Climate API requests by outcome.",
		}, []string{"outcome"}),
		ClimateAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ghi",
			Name:      "climate_api_duration_seconds",
			Help:      "Climate API request duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ForecastRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ghi",
			Name:      "forecast_requests_total",
			Help:      "Forecast gateway calls by gateway and outcome.",
		}, []string{"gateway", "outcome"}),
	}
}
