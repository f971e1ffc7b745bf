package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveCounts(5, 2, 1, 1)
	m.ObserveParse("parsed")
	m.ObserveParse("parsed")
	m.AccountFailed("backup")
	m.NoticesAcknowledged(3)
	m.ScanFinished("ok", time.Now())

	assert.Equal(t, 5.0, testutil.ToFloat64(m.EmailsScanned))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PaymentsCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ParseOutcomes.WithLabelValues("parsed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AccountFailures.WithLabelValues("backup")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.NoticesResolved))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Scans.WithLabelValues("ok")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCounts(1, 1, 1, 1)
		m.ObserveParse("parsed")
		m.ObserveMatch("alias")
		m.AccountFailed("a")
		m.NoticesAcknowledged(1)
		m.ScanFinished("failed", time.Now())
	})
}
