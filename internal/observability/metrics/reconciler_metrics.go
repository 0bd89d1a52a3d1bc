package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ReconcilerMetrics captures reconciliation loop health signals.
type ReconcilerMetrics struct {
	snapshotsApplied *prometheus.CounterVec
	snapshotsSkipped *prometheus.CounterVec
	watcherErrors    *prometheus.CounterVec
	watcherRestarts  *prometheus.CounterVec
}

var (
	reconcilerMetricsOnce sync.Once
	reconcilerMetrics     *ReconcilerMetrics
)

// Reconciler returns the singleton reconciler metrics registry.
func Reconciler() *ReconcilerMetrics {
	return ReconcilerWithConfig(Config{})
}

// ReconcilerWithConfig returns the singleton reconciler metrics registry using config labels.
func ReconcilerWithConfig(cfg Config) *ReconcilerMetrics {
	reconcilerMetricsOnce.Do(func() {
		reconcilerMetrics = newReconcilerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return reconcilerMetrics
}

// ResetReconcilerMetricsForTest resets the reconciler metrics singleton for tests.
func ResetReconcilerMetricsForTest() {
	reconcilerMetricsOnce = sync.Once{}
	reconcilerMetrics = nil
}

func newReconcilerMetrics(registerer prometheus.Registerer, cfg Config) *ReconcilerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "glowhub-portal"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &ReconcilerMetrics{
		snapshotsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "portal_reconciler_snapshots_applied_total",
			Help:        "Snapshots that produced a genuine state change.",
			ConstLabels: constLabels,
		}, []string{"collection"}),
		snapshotsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "portal_reconciler_snapshots_skipped_total",
			Help:        "Snapshots identical to local state, dropped before publish.",
			ConstLabels: constLabels,
		}, []string{"collection"}),
		watcherErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "portal_reconciler_watcher_errors_total",
			Help:        "Errors while rebuilding state from a snapshot.",
			ConstLabels: constLabels,
		}, []string{"collection"}),
		watcherRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "portal_reconciler_watcher_restarts_total",
			Help:        "Watcher goroutines restarted after a closed subscription.",
			ConstLabels: constLabels,
		}, []string{"collection"}),
	}

	registerer.MustRegister(m.snapshotsApplied, m.snapshotsSkipped, m.watcherErrors, m.watcherRestarts)
	return m
}

func (m *ReconcilerMetrics) SnapshotApplied(collection string) {
	if m == nil {
		return
	}
	m.snapshotsApplied.WithLabelValues(collection).Inc()
}

func (m *ReconcilerMetrics) SnapshotSkipped(collection string) {
	if m == nil {
		return
	}
	m.snapshotsSkipped.WithLabelValues(collection).Inc()
}

func (m *ReconcilerMetrics) WatcherError(collection string) {
	if m == nil {
		return
	}
	m.watcherErrors.WithLabelValues(collection).Inc()
}

func (m *ReconcilerMetrics) WatcherRestart(collection string) {
	if m == nil {
		return
	}
	m.watcherRestarts.WithLabelValues(collection).Inc()
}
