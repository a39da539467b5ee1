package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for provisioning runs.
type Metrics struct {
	config MetricsConfig

	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	lastRun       prometheus.Gauge
	lastRunOK     prometheus.Gauge
	steps         *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	policyFinding *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	namespace := cfg.Namespace
	buckets := cfg.StepBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Provisioning runs by terminal status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of provisioning runs",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last run finished",
			},
		),
		lastRunOK: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_success",
				Help:      "1 if the last run completed, 0 if it aborted",
			},
		),
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Evaluated steps by outcome",
			},
			[]string{"step", "outcome"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Time spent checking and applying a step",
				Buckets:   buckets,
			},
			[]string{"step"},
		),
		policyFinding: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_findings_total",
				Help:      "Policy violations and warnings by severity",
			},
			[]string{"severity"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.runs, m.runDuration, m.lastRun, m.lastRunOK, m.steps, m.stepDuration, m.policyFinding,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return m, nil
}

// RecordStep records one evaluated step.
func (m *Metrics) RecordStep(stepID, outcome string, duration time.Duration) {
	m.steps.WithLabelValues(stepID, outcome).Inc()
	m.stepDuration.WithLabelValues(stepID).Observe(duration.Seconds())
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(status string, duration time.Duration, finished time.Time, success bool) {
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(duration.Seconds())
	m.lastRun.Set(float64(finished.Unix()))
	if success {
		m.lastRunOK.Set(1)
	} else {
		m.lastRunOK.Set(0)
	}
}

// RecordPolicyFindings adds n findings of severity.
func (m *Metrics) RecordPolicyFindings(severity string, n int) {
	if n > 0 {
		m.policyFinding.WithLabelValues(severity).Add(float64(n))
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes every metric to path for the node_exporter textfile
// collector. An empty path uses the configured one; no path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		path = m.config.TextfilePath
	}
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
