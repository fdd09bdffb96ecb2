// Package metrics provides Prometheus metrics for command runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cmdpanel"

var (
	runsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "runs",
		Name:      "started_total",
		Help:      "Total command runs that spawned a process",
	})

	runsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "runs",
		Name:      "finished_total",
		Help:      "Total command runs that reached a terminal result",
	}, []string{"result"})

	runsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "runs",
		Name:      "active",
		Help:      "Command runs currently registered as running or stopping",
	})

	logLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "log",
		Name:      "lines_total",
		Help:      "Total log lines persisted",
	}, []string{"source"})

	storeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "errors_total",
		Help:      "Total failed store writes from the process manager",
	}, []string{"op"})
)

// Store operations counted by StoreError.
const (
	OpLogLine   = "log_line"
	OpRunResult = "run_result"
)

// RunStarted counts a spawned run.
func RunStarted() {
	runsStarted.Inc()
	runsActive.Inc()
}

// RunFinished counts a run reaching a terminal result. Spawn failures pass
// spawned=false so the active gauge is left alone.
func RunFinished(result string, spawned bool) {
	runsFinished.WithLabelValues(result).Inc()
	if spawned {
		runsActive.Dec()
	}
}

// LogLine counts a persisted log line.
func LogLine(source string) {
	logLines.WithLabelValues(source).Inc()
}

// StoreError counts a failed store write.
func StoreError(op string) {
	storeErrors.WithLabelValues(op).Inc()
}
