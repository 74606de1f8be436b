package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Capture("registry", "captured")
	m.Capture("registry", "captured")
	m.Capture("file", "skipped")
	m.RestoreEntry("service", "ok")
	m.Restore("partial", 2*time.Second)
	m.Pruned(3, 7)
	m.Indexed(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.captures.WithLabelValues("registry", "captured")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.captures.WithLabelValues("file", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.restoreEntries.WithLabelValues("service", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.restores.WithLabelValues("partial")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.prunedBackups))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.prunedBlobs))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.indexed))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Capture("registry", "captured")
		m.RestoreEntry("file", "failed")
		m.Restore("success", time.Second)
		m.Pruned(1, 1)
		m.Indexed(1)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.Capture("power", "captured")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tweakguard_backup_captures_total{result="captured",section="power"} 1`)
}
