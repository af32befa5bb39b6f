// Package prom provides a Prometheus-backed Observer for the coro
// runtime. It tracks scope and task lifecycle counters, live/suspended
// task gauges and task durations, suitable for scraping alongside the
// rest of a process's metrics.
package prom

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/NetPo4ki/go-coro/coro"
)

// Observer exports runtime lifecycle events as Prometheus metrics. It
// implements coro.Observer and is safe for concurrent use.
type Observer struct {
	scopesCreated   prometheus.Counter
	scopesCancelled prometheus.Counter
	scopeCloseWait  prometheus.Histogram

	tasksLaunched  prometheus.Counter
	tasksFinished  *prometheus.CounterVec
	liveTasks      prometheus.Gauge
	suspendedTasks prometheus.Gauge
	transitions    *prometheus.CounterVec
	taskDuration   prometheus.Histogram
}

// New creates an Observer and registers its metrics with reg.
func New(reg prometheus.Registerer) *Observer {
	f := promauto.With(reg)
	return &Observer{
		scopesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "coro_scopes_created_total",
			Help: "Number of scopes created.",
		}),
		scopesCancelled: f.NewCounter(prometheus.CounterOpts{
			Name: "coro_scopes_cancelled_total",
			Help: "Number of scopes cancelled.",
		}),
		scopeCloseWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "coro_scope_close_wait_seconds",
			Help:    "Time spent in Close waiting for tasks to terminate.",
			Buckets: prometheus.DefBuckets,
		}),
		tasksLaunched: f.NewCounter(prometheus.CounterOpts{
			Name: "coro_tasks_launched_total",
			Help: "Number of tasks launched.",
		}),
		tasksFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coro_tasks_finished_total",
			Help: "Number of tasks finished, by outcome.",
		}, []string{"outcome"}),
		liveTasks: f.NewGauge(prometheus.GaugeOpts{
			Name: "coro_tasks_live",
			Help: "Number of tasks launched and not yet terminal.",
		}),
		suspendedTasks: f.NewGauge(prometheus.GaugeOpts{
			Name: "coro_tasks_suspended",
			Help: "Number of tasks parked at a suspend point.",
		}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coro_task_transitions_total",
			Help: "Number of task state transitions, by edge.",
		}, []string{"from", "to"}),
		taskDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "coro_task_duration_seconds",
			Help:    "Wall time from first run to terminal state.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (o *Observer) ScopeCreated()        { o.scopesCreated.Inc() }
func (o *Observer) ScopeCancelled(error) { o.scopesCancelled.Inc() }

func (o *Observer) ScopeClosed(wait time.Duration) {
	o.scopeCloseWait.Observe(wait.Seconds())
}

func (o *Observer) TaskLaunched(uint64) {
	o.tasksLaunched.Inc()
	o.liveTasks.Inc()
}

func (o *Observer) TaskStateChanged(_ uint64, from, to coro.State) {
	o.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

func (o *Observer) TaskSuspended(uint64) { o.suspendedTasks.Inc() }
func (o *Observer) TaskResumed(uint64)   { o.suspendedTasks.Dec() }

func (o *Observer) TaskFinished(_ uint64, dur time.Duration, err error, panicked bool) {
	o.liveTasks.Dec()
	o.taskDuration.Observe(dur.Seconds())
	o.tasksFinished.WithLabelValues(outcome(err, panicked)).Inc()
}

func outcome(err error, panicked bool) string {
	switch {
	case panicked:
		return "panicked"
	case err == nil:
		return "completed"
	case errors.Is(err, coro.Canceled):
		return "cancelled"
	default:
		return "failed"
	}
}
