package usage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pikaboard/pikausage/internal/model"
)

// Metrics contains Prometheus metrics for report computation and caching.
type Metrics struct {
	scans        *prometheus.CounterVec
	scanDuration prometheus.Histogram
	sessionFiles prometheus.Gauge
	events       prometheus.Counter
	lines        *prometheus.CounterVec
	cache        *prometheus.CounterVec
	unpriced     *prometheus.CounterVec
	reportCost   prometheus.Gauge
}

// NewMetrics registers the usage collectors with reg.
// A nil registerer creates collectors without registering them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		scans: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pikausage_scans_total",
				Help: "Total number of full report recomputations",
			},
			[]string{"result"},
		),

		scanDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pikausage_scan_duration_seconds",
				Help:    "Time spent scanning, parsing and aggregating session logs",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),

		sessionFiles: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pikausage_session_files",
				Help: "Number of session files found by the last scan",
			},
		),

		events: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pikausage_usage_events_total",
				Help: "Total number of usage events parsed",
			},
		),

		lines: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pikausage_skipped_lines_total",
				Help: "Total number of log lines that produced no usage event",
			},
			[]string{"reason"},
		),

		cache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pikausage_cache_requests_total",
				Help: "Report cache lookups by outcome",
			},
			[]string{"outcome"},
		),

		unpriced: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pikausage_unpriced_tokens_total",
				Help: "Tokens counted without a price, by model key",
			},
			[]string{"model"},
		),

		reportCost: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pikausage_report_total_cost",
				Help: "Lifetime cost in the most recent report",
			},
		),
	}
}

// RecordScan records the outcome of one recomputation
func (m *Metrics) RecordScan(diag model.ScanDiagnostics, report *model.UsageReport, err error) {
	if m == nil {
		return
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	m.scans.WithLabelValues(result).Inc()
	m.scanDuration.Observe(diag.Duration.Seconds())

	if err != nil {
		return
	}

	m.sessionFiles.Set(float64(diag.Files))
	m.events.Add(float64(diag.Events))
	m.lines.WithLabelValues("malformed").Add(float64(diag.Malformed))
	m.lines.WithLabelValues("no_usage").Add(float64(diag.NonUsage))
	for key, tokens := range diag.Unpriced {
		m.unpriced.WithLabelValues(key).Add(float64(tokens))
	}
	if report != nil {
		m.reportCost.Set(report.Total.Cost)
	}
}

// RecordCache records a cache lookup: "hit", "miss" or "shared"
func (m *Metrics) RecordCache(outcome string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(outcome).Inc()
}
