package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	graphsStarted  prometheus.Counter
	graphsFinished *prometheus.CounterVec
	stepsExecuted  *prometheus.CounterVec
	stepRetries    prometheus.Counter
	activeGraphs   prometheus.Gauge
	graphDuration  *prometheus.HistogramVec
	stepDuration   *prometheus.HistogramVec
}

// NewCollector creates a new Prometheus metrics collector
func NewCollector() *Collector {
	return &Collector{
		graphsStarted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "taozen_graphs_started_total",
				Help: "Total number of graph runs started",
			},
		),
		graphsFinished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taozen_graphs_finished_total",
				Help: "Total number of graph runs finished by terminal status",
			},
			[]string{"status"},
		),
		stepsExecuted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taozen_steps_executed_total",
				Help: "Total number of steps executed by terminal status",
			},
			[]string{"status"},
		),
		stepRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "taozen_step_retries_total",
				Help: "Total number of step retry attempts",
			},
		),
		activeGraphs: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "taozen_active_graphs",
				Help: "Number of graphs currently running",
			},
		),
		graphDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taozen_graph_duration_seconds",
				Help:    "Graph run duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
		stepDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taozen_step_duration_seconds",
				Help:    "Step execution duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"status"},
		),
	}
}

// RecordGraphStarted records the start of a graph run
func (c *Collector) RecordGraphStarted() {
	c.graphsStarted.Inc()
}

// RecordGraphFinished records a graph run reaching a terminal status
func (c *Collector) RecordGraphFinished(status string, duration time.Duration) {
	c.graphsFinished.WithLabelValues(status).Inc()
	c.graphDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordStepExecuted records a step reaching a terminal status
func (c *Collector) RecordStepExecuted(status string, duration time.Duration) {
	c.stepsExecuted.WithLabelValues(status).Inc()
	c.stepDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordStepRetried records a retry attempt for a step
func (c *Collector) RecordStepRetried() {
	c.stepRetries.Inc()
}

// SetActiveGraphs sets the number of currently running graphs
func (c *Collector) SetActiveGraphs(count int) {
	c.activeGraphs.Set(float64(count))
}
