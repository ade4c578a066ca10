// Package metrics exposes store, lock, reconciliation and project-state
// instrumentation as prometheus collectors on a private registry.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Iron-Ham/worklog/internal/errors"
)

const namespace = "worklog"

// Metrics holds every worklog collector. It satisfies the observer
// interfaces of the session store, the project state cache and the
// reconciler.
type Metrics struct {
	registry *prometheus.Registry

	storeOps         *prometheus.CounterVec
	storeDuration    *prometheus.HistogramVec
	lockWait         *prometheus.HistogramVec
	indexRebuilds    prometheus.Counter
	indexEntries     prometheus.Gauge
	reconcileItems   *prometheus.CounterVec
	projectStateWrites *prometheus.CounterVec
}

// New registers the collectors on a fresh registry along with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Session store operations by operation and result.",
		}, []string{"op", "result"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Session store operation latency.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"op"}),
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent blocked waiting for a record lock.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"kind"}),
		indexRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_rebuilds_total",
			Help:      "Full rebuilds of the session index.",
		}),
		indexEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_entries",
			Help:      "Entries in the session index after the last rebuild.",
		}),
		reconcileItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_items_total",
			Help:      "Items handled by reconciliation passes.",
		}, []string{"job", "result"}),
		projectStateWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "project_state_writes_total",
			Help:      "Project state recomputes by whether the file was rewritten.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.storeOps,
		m.storeDuration,
		m.lockWait,
		m.indexRebuilds,
		m.indexEntries,
		m.reconcileItems,
		m.projectStateWrites,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// OperationDone records one session store operation.
func (m *Metrics) OperationDone(op string, elapsed time.Duration, err error) {
	m.storeOps.WithLabelValues(op, result(err)).Inc()
	m.storeDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// LockWaited records time spent waiting on a lock of the given kind.
func (m *Metrics) LockWaited(kind string, waited time.Duration) {
	m.lockWait.WithLabelValues(kind).Observe(waited.Seconds())
}

// IndexRebuilt records a full index rebuild.
func (m *Metrics) IndexRebuilt(entries int) {
	m.indexRebuilds.Inc()
	m.indexEntries.Set(float64(entries))
}

// ItemReconciled records one item handled by a reconciliation pass.
func (m *Metrics) ItemReconciled(job, res string) {
	m.reconcileItems.WithLabelValues(job, res).Inc()
}

// ProjectStateWritten records a project state recompute.
func (m *Metrics) ProjectStateWritten(written bool) {
	res := "unchanged"
	if written {
		res = "written"
	}
	m.projectStateWrites.WithLabelValues(res).Inc()
}

// result labels an operation by its error code: "ok", "not_found",
// "validation_error" and so on.
func result(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(errors.Code(err))
}
