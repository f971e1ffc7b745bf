package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	Scans            *prometheus.CounterVec
	EmailsScanned    prometheus.Counter
	ParseOutcomes    *prometheus.CounterVec
	MatchSources     *prometheus.CounterVec
	PaymentsCreated  prometheus.Counter
	Duplicates       prometheus.Counter
	Unmatched        prometheus.Counter
	AccountFailures  *prometheus.CounterVec
	NoticesResolved  prometheus.Counter
	ScanDuration     prometheus.Histogram
	LastScanUnixTime prometheus.Gauge
}

// NewMetrics registers the metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Scans: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_reconciler_scans_total",
			Help: "Scan runs by result (ok, failed, skipped)",
		}, []string{"result"}),
		EmailsScanned: f.NewCounter(prometheus.CounterOpts{
			Name: "payment_reconciler_emails_scanned_total",
			Help: "Unread processor emails fetched",
		}),
		ParseOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_reconciler_parse_outcomes_total",
			Help: "Parsed emails by outcome",
		}, []string{"outcome"}),
		MatchSources: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_reconciler_match_sources_total",
			Help: "Tenant matches by signal",
		}, []string{"source"}),
		PaymentsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "payment_reconciler_payments_created_total",
			Help: "Payments imported from email",
		}),
		Duplicates: f.NewCounter(prometheus.CounterOpts{
			Name: "payment_reconciler_duplicates_total",
			Help: "Parsed payments skipped as already recorded",
		}),
		Unmatched: f.NewCounter(prometheus.CounterOpts{
			Name: "payment_reconciler_unmatched_total",
			Help: "Parsed payments left for manual review",
		}),
		AccountFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_reconciler_account_failures_total",
			Help: "Mailbox accounts that failed during a scan",
		}, []string{"account"}),
		NoticesResolved: f.NewCounter(prometheus.CounterOpts{
			Name: "payment_reconciler_notices_resolved_total",
			Help: "Notices acknowledged after full payment",
		}),
		ScanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "payment_reconciler_scan_duration_seconds",
			Help:    "Time spent in a scan run",
			Buckets: prometheus.DefBuckets,
		}),
		LastScanUnixTime: f.NewGauge(prometheus.GaugeOpts{
			Name: "payment_reconciler_last_scan_timestamp_seconds",
			Help: "Completion time of the last successful scan",
		}),
	}
}

// ScanFinished records a completed run.
func (m *Metrics) ScanFinished(result string, started time.Time) {
	if m == nil {
		return
	}
	m.Scans.WithLabelValues(result).Inc()
	m.ScanDuration.Observe(time.Since(started).Seconds())
	if result == "ok" {
		m.LastScanUnixTime.SetToCurrentTime()
	}
}

// ObserveParse counts one parse outcome.
func (m *Metrics) ObserveParse(outcome string) {
	if m == nil {
		return
	}
	m.ParseOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveMatch counts one match by its source.
func (m *Metrics) ObserveMatch(source string) {
	if m == nil {
		return
	}
	m.MatchSources.WithLabelValues(source).Inc()
}

// ObserveCounts adds a run's totals.
func (m *Metrics) ObserveCounts(scanned, created, duplicates, unmatched int) {
	if m == nil {
		return
	}
	m.EmailsScanned.Add(float64(scanned))
	m.PaymentsCreated.Add(float64(created))
	m.Duplicates.Add(float64(duplicates))
	m.Unmatched.Add(float64(unmatched))
}

// AccountFailed counts a failed mailbox account.
func (m *Metrics) AccountFailed(accountID string) {
	if m == nil {
		return
	}
	m.AccountFailures.WithLabelValues(accountID).Inc()
}

// NoticesAcknowledged adds resolved notices.
func (m *Metrics) NoticesAcknowledged(n int) {
	if m == nil || n == 0 {
		return
	}
	m.NoticesResolved.Add(float64(n))
}
