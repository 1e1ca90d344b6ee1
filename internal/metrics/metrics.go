// Package metrics records Prometheus metrics for fix workflow runs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jacklau/sonarfix/internal/fix"
	"github.com/jacklau/sonarfix/internal/workflow"
)

const namespace = "sonarfix"

// Metrics holds the workflow collectors. It implements workflow.Observer.
type Metrics struct {
	registry *prometheus.Registry

	// GenerationsTotal counts model requests by sampling mode.
	// Labels: mode (exploratory, deterministic)
	GenerationsTotal *prometheus.CounterVec

	// RunsTotal counts finished invocations by outcome.
	// Labels: outcome (done, validation, generation, store, retry_exhausted)
	RunsTotal *prometheus.CounterVec

	// RepairAttempts observes how many repairs each run needed.
	RepairAttempts prometheus.Histogram

	// RunDurationSeconds observes wall time per invocation.
	// Labels: outcome
	RunDurationSeconds *prometheus.HistogramVec
}

var _ workflow.Observer = (*Metrics)(nil)

// New creates Metrics registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		GenerationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Model completions requested, by sampling mode.",
		}, []string{"mode"}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished fix invocations, by outcome.",
		}, []string{"outcome"}),
		RepairAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "repair_attempts",
			Help:      "Repair attempts consumed per invocation.",
			Buckets:   prometheus.LinearBuckets(0, 1, workflow.MaxRepairsLimit+1),
		}),
		RunDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time per fix invocation.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.GenerationsTotal, m.RunsTotal, m.RepairAttempts, m.RunDurationSeconds)
	return m
}

// Generation implements workflow.Observer.
func (m *Metrics) Generation(mode fix.SamplingMode) {
	m.GenerationsTotal.WithLabelValues(mode.String()).Inc()
}

// Finished implements workflow.Observer.
func (m *Metrics) Finished(outcome string, repairs int, d time.Duration) {
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RepairAttempts.Observe(float64(repairs))
	m.RunDurationSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for callers that add collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Summary returns the run counts by outcome, for end-of-batch reporting.
func (m *Metrics) Summary() map[string]int {
	out := make(map[string]int)
	families, err := m.registry.Gather()
	if err != nil {
		return out
	}
	for _, mf := range families {
		if mf.GetName() != namespace+"_runs_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "outcome" {
					out[lp.GetValue()] = int(metric.GetCounter().GetValue())
				}
			}
		}
	}
	return out
}

// FormatSummary renders Summary as "outcome=count" pairs in a fixed order.
func FormatSummary(s map[string]int) string {
	order := []string{"done", "validation", "generation", "store", "retry_exhausted"}
	var out []byte
	for _, k := range order {
		n, ok := s[k]
		if !ok {
			continue
		}
		if len(out) > 0 {
			out = append(out, ' ')
		}
		out = append(out, k...)
		out = append(out, '=')
		out = strconv.AppendInt(out, int64(n), 10)
	}
	return string(out)
}
