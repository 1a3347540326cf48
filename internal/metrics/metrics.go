// Package metrics exposes simulation counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"contagion/internal/engine"
	"contagion/internal/simtime"
)

const namespace = "contagion"

// Collector implements engine.Metrics and the run level counters.
type Collector struct {
	events     *prometheus.CounterVec
	clock      prometheus.Gauge
	infections prometheus.Counter
	deaths     prometheus.Counter
	runs       *prometheus.CounterVec
	duration   prometheus.Histogram
}

var _ engine.Metrics = (*Collector)(nil)

// New registers the collectors on reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Simulation events activated, by kind.",
		}, []string{"kind"}),
		clock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clock_minutes",
			Help:      "Simulation clock of the current run.",
		}),
		infections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "infections_total",
			Help:      "Infections started, initial infections included.",
		}),
		deaths: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deaths_total",
			Help:      "People who died of the disease.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs, by status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of finished runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}
	for _, col := range []prometheus.Collector{c.events, c.clock, c.infections, c.deaths, c.runs, c.duration} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	for _, k := range engine.Kinds {
		c.events.WithLabelValues(k.String())
	}
	return c, nil
}

func (c *Collector) EventProcessed(k engine.Kind) { c.events.WithLabelValues(k.String()).Inc() }
func (c *Collector) ClockAdvanced(t simtime.Time) { c.clock.Set(float64(t)) }
func (c *Collector) Infected()                    { c.infections.Inc() }
func (c *Collector) Died()                        { c.deaths.Inc() }

// RunFinished counts a finished run and its wall time.
func (c *Collector) RunFinished(status string, d time.Duration) {
	c.runs.WithLabelValues(status).Inc()
	c.duration.Observe(d.Seconds())
}
