// Package metrics exposes the gateway's Prometheus counters/histograms,
// following the global-registry-singleton shape of
// plugin/chat_apps/metrics/metrics.go but backed by
// prometheus/client_golang vectors instead of a hand-rolled counter
// struct, since this spec's domain actually has a /metrics surface to
// serve them from (internal/ingress).
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the gateway's process-wide metrics collection.
type Registry struct {
	WebhookReceived   prometheus.Counter
	WebhookRejected   *prometheus.CounterVec // labeled by rejection reason
	JobsSubmitted     prometheus.Counter
	JobsRejected      prometheus.Counter
	DispatchDuration  prometheus.Histogram
	ScheduledDispatched *prometheus.CounterVec // labeled by action type
	ScheduledFailed     *prometheus.CounterVec
	ChildSpawned      prometheus.Counter
	ChildSpawnRejected prometheus.Counter
}

var (
	once   sync.Once
	global *Registry
)

// Global returns the process-wide Registry, registering its collectors
// with prometheus.DefaultRegisterer exactly once.
func Global() *Registry {
	once.Do(func() {
		global = New(prometheus.DefaultRegisterer)
	})
	return global
}

// New builds a Registry and registers its collectors against reg. Tests
// should pass a fresh prometheus.NewRegistry() to avoid collisions with
// the global default registerer.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		WebhookReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kvrtbot",
			Subsystem: "ingress",
			Name:      "webhook_received_total",
			Help:      "Total webhook requests accepted for parsing.",
		}),
		WebhookRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvrtbot",
			Subsystem: "ingress",
			Name:      "webhook_rejected_total",
			Help:      "Total webhook requests rejected, by reason.",
		}, []string{"reason"}),
		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kvrtbot",
			Subsystem: "workerpool",
			Name:      "jobs_submitted_total",
			Help:      "Total jobs successfully submitted to the worker pool.",
		}),
		JobsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kvrtbot",
			Subsystem: "workerpool",
			Name:      "jobs_rejected_total",
			Help:      "Total job submissions rejected (pool full or closed).",
		}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kvrtbot",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Time spent dispatching one command through the command layer.",
			Buckets:   prometheus.DefBuckets,
		}),
		ScheduledDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvrtbot",
			Subsystem: "scheduler",
			Name:      "dispatched_total",
			Help:      "Total scheduled actions dispatched, by type.",
		}, []string{"type"}),
		ScheduledFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvrtbot",
			Subsystem: "scheduler",
			Name:      "failed_total",
			Help:      "Total scheduled action dispatch failures, by type.",
		}, []string{"type"}),
		ChildSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kvrtbot",
			Subsystem: "childproc",
			Name:      "spawned_total",
			Help:      "Total external handler processes spawned.",
		}),
		ChildSpawnRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kvrtbot",
			Subsystem: "childproc",
			Name:      "spawn_rejected_total",
			Help:      "Total spawn requests that failed (active-set full or process start error).",
		}),
	}

	reg.MustRegister(
		r.WebhookReceived, r.WebhookRejected,
		r.JobsSubmitted, r.JobsRejected,
		r.DispatchDuration,
		r.ScheduledDispatched, r.ScheduledFailed,
		r.ChildSpawned, r.ChildSpawnRejected,
	)
	return r
}
