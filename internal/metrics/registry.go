// Package metrics provides Prometheus metrics for the collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all Prometheus metrics for the service.
type Registry struct {
	// Sweep metrics
	SweepsTotal   prometheus.Counter
	SweepDuration prometheus.Histogram
	PollerRunning prometheus.Gauge

	// Sample metrics
	SamplesTotal *prometheus.CounterVec

	// Device metrics
	DevicePolls  *prometheus.CounterVec
	DeviceErrors *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	return &Registry{
		SweepsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "collector",
			Subsystem: "polling",
			Name:      "sweeps_total",
			Help:      "Total number of completed poll sweeps",
		}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "collector",
			Subsystem: "polling",
			Name:      "sweep_duration_seconds",
			Help:      "Poll sweep duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		PollerRunning: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "collector",
			Subsystem: "polling",
			Name:      "running",
			Help:      "Whether the poller loop is currently running (1) or stopped (0)",
		}),
		SamplesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collector",
			Subsystem: "samples",
			Name:      "stored_total",
			Help:      "Total number of samples appended to the store",
		}, []string{"quality"}),
		DevicePolls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collector",
			Subsystem: "polling",
			Name:      "device_polls_total",
			Help:      "Total number of per-device polls",
		}, []string{"device_id", "protocol"}),
		DeviceErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collector",
			Subsystem: "polling",
			Name:      "device_errors_total",
			Help:      "Total number of per-device poll errors",
		}, []string{"device_id", "error_type"}),
	}
}
