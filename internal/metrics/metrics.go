package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	LookupsTotal     *prometheus.CounterVec
	LookupDuration   *prometheus.HistogramVec
	LookupsInFlight  prometheus.Gauge
	LookupRetries    prometheus.Counter
	PoolCredentials  *prometheus.GaugeVec
	PoolUsagePercent prometheus.Gauge
	BulkBatchesTotal prometheus.Counter
	BulkKeywords     *prometheus.CounterVec
	BulkRetryPasses  prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		LookupsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rankwatch_lookups_total",
				Help: "Total keyword lookups by provider and outcome",
			},
			[]string{"provider", "status"},
		),
		LookupDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rankwatch_lookup_duration_seconds",
				Help:    "Lookup duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
		LookupsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rankwatch_lookups_in_flight",
				Help: "Lookups currently executing",
			},
		),
		LookupRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rankwatch_lookup_retries_total",
				Help: "Credential rotations within lookups",
			},
		),
		PoolCredentials: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rankwatch_pool_credentials",
				Help: "Credentials in the pool by status",
			},
			[]string{"status"},
		),
		PoolUsagePercent: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rankwatch_pool_usage_percent",
				Help: "Aggregate daily quota usage of the pool",
			},
		),
		BulkBatchesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rankwatch_bulk_batches_total",
				Help: "Bulk batches dispatched",
			},
		),
		BulkKeywords: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rankwatch_bulk_keywords_total",
				Help: "Bulk keywords by outcome",
			},
			[]string{"status"},
		),
		BulkRetryPasses: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rankwatch_bulk_retry_passes_total",
				Help: "Bulk retry passes executed",
			},
		),
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) RecordLookup(provider, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.LookupsTotal.WithLabelValues(provider, status).Inc()
	m.LookupDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func (m *Metrics) SetPoolGauges(active, exhausted, paused, errored int, usagePercent float64) {
	if m == nil {
		return
	}
	m.PoolCredentials.WithLabelValues("active").Set(float64(active))
	m.PoolCredentials.WithLabelValues("exhausted").Set(float64(exhausted))
	m.PoolCredentials.WithLabelValues("paused").Set(float64(paused))
	m.PoolCredentials.WithLabelValues("error").Set(float64(errored))
	m.PoolUsagePercent.Set(usagePercent)
}

func (m *Metrics) IncInFlight() {
	if m != nil {
		m.LookupsInFlight.Inc()
	}
}

func (m *Metrics) DecInFlight() {
	if m != nil {
		m.LookupsInFlight.Dec()
	}
}

func (m *Metrics) RecordRetry() {
	if m != nil {
		m.LookupRetries.Inc()
	}
}

func (m *Metrics) RecordBatch() {
	if m != nil {
		m.BulkBatchesTotal.Inc()
	}
}

func (m *Metrics) RecordBulkKeyword(status string) {
	if m != nil {
		m.BulkKeywords.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) RecordRetryPass() {
	if m != nil {
		m.BulkRetryPasses.Inc()
	}
}
