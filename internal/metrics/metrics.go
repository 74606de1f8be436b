// Package metrics exposes Prometheus counters for backup activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tweakguard"

// Metrics holds every collector on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	// captures counts capture calls.
	// Labels: section, result (captured, skipped, failed)
	captures *prometheus.CounterVec

	// restoreEntries counts restored entries.
	// Labels: section, status (ok, approximate, skipped, failed)
	restoreEntries *prometheus.CounterVec

	// restores counts whole restore runs.
	// Labels: result (success, partial, not_found)
	restores *prometheus.CounterVec

	restoreDuration prometheus.Histogram
	prunedBackups   prometheus.Counter
	prunedBlobs     prometheus.Counter
	indexed         prometheus.Counter
}

// New creates a Metrics with process and Go runtime collectors attached.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		captures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "captures_total",
			Help:      "Capture calls by section and result",
		}, []string{"section", "result"}),
		restoreEntries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "restore",
			Name:      "entries_total",
			Help:      "Restored entries by section and outcome",
		}, []string{"section", "status"}),
		restores: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "restore",
			Name:      "runs_total",
			Help:      "Restore runs by result",
		}, []string{"result"}),
		restoreDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "restore",
			Name:      "duration_seconds",
			Help:      "Wall time of a restore run",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		prunedBackups: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "pruned_backups_total",
			Help:      "Backup documents removed by retention pruning",
		}),
		prunedBlobs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "pruned_blobs_total",
			Help:      "Blob files and orphan blob directories removed by pruning",
		}),
		indexed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "documents_indexed_total",
			Help:      "Ledger documents written to the index",
		}),
	}
}

// Capture records one capture call.
func (m *Metrics) Capture(section, result string) {
	if m == nil {
		return
	}
	m.captures.WithLabelValues(section, result).Inc()
}

// RestoreEntry records the outcome of one restored entry.
func (m *Metrics) RestoreEntry(section, status string) {
	if m == nil {
		return
	}
	m.restoreEntries.WithLabelValues(section, status).Inc()
}

// Restore records a finished restore run.
func (m *Metrics) Restore(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.restores.WithLabelValues(result).Inc()
	m.restoreDuration.Observe(took.Seconds())
}

// Pruned records a retention pass.
func (m *Metrics) Pruned(backups, blobs int) {
	if m == nil {
		return
	}
	m.prunedBackups.Add(float64(backups))
	m.prunedBlobs.Add(float64(blobs))
}

// Indexed records documents written to the index.
func (m *Metrics) Indexed(n int) {
	if m == nil {
		return
	}
	m.indexed.Add(float64(n))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
