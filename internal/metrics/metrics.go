// Package metrics exposes Prometheus collectors for the install pipeline.
// A Collector observes build state transitions; its registry can be served
// over HTTP or written to a node-exporter textfile when the run ends.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/specialistvlad/formulago/internal/build"
)

// Collector records pipeline metrics.
type Collector struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	installs      *prometheus.CounterVec
	currentStage  *prometheus.GaugeVec
}

// New creates a Collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "formulago_stage_duration_seconds",
				Help:    "Time spent in each install pipeline stage.",
				Buckets: []float64{0.1, 1, 10, 60, 300, 900, 1800, 3600, 7200},
			},
			[]string{"stage"},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formulago_stage_failures_total",
				Help: "Number of installs that failed, by failing stage.",
			},
			[]string{"stage"},
		),
		installs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formulago_installs_total",
				Help: "Number of finished installs, by result.",
			},
			[]string{"result"},
		),
		currentStage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "formulago_current_stage",
				Help: "Set to 1 for the stage the pipeline is currently in.",
			},
			[]string{"stage"},
		),
	}
	c.registry.MustRegister(c.stageDuration, c.stageFailures, c.installs, c.currentStage)
	return c
}

// Registry returns the registry holding all collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Transition implements build.Observer.
func (c *Collector) Transition(_ context.Context, from, to build.State, elapsed time.Duration, _ error) {
	c.stageDuration.WithLabelValues(string(from)).Observe(elapsed.Seconds())
	c.currentStage.WithLabelValues(string(from)).Set(0)
	c.currentStage.WithLabelValues(string(to)).Set(1)

	switch to {
	case build.StateFailed:
		c.stageFailures.WithLabelValues(string(from)).Inc()
		c.installs.WithLabelValues("failed").Inc()
	case build.StateVerified:
		c.installs.WithLabelValues("verified").Inc()
	}
}

// WriteTextfile writes the current metric values in the text exposition
// format, for the node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
