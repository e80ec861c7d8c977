package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog/log"
)

// Metrics collects run metrics for one CLI invocation and pushes them to a
// Pushgateway when one is configured. With no gateway every method is a
// no-op, so call sites never need to branch.
type Metrics struct {
	pushURL  string
	registry *prometheus.Registry

	phasesExecuted *prometheus.CounterVec
	backupsCreated prometheus.Counter
	restores       *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
}

// NewMetrics creates the collector. pushURL may be empty to disable.
func NewMetrics(pushURL string) *Metrics {
	m := &Metrics{pushURL: pushURL}
	if pushURL == "" {
		return m
	}

	m.registry = prometheus.NewRegistry()

	m.phasesExecuted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caravel",
		Name:      "phases_executed_total",
		Help:      "Pipeline phases executed, by phase and status.",
	}, []string{"phase", "status"})

	m.backupsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "caravel",
		Name:      "backups_created_total",
		Help:      "Snapshots created.",
	})

	m.restores = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caravel",
		Name:      "restores_total",
		Help:      "Rollback restores performed, by status.",
	}, []string{"status"})

	m.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "caravel",
		Name:      "run_duration_seconds",
		Help:      "Duration of top-level operations.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"operation"})

	m.registry.MustRegister(m.phasesExecuted, m.backupsCreated, m.restores, m.runDuration)
	return m
}

// ObservePhase records one executed phase.
func (m *Metrics) ObservePhase(phase, status string) {
	if m.registry == nil {
		return
	}
	m.phasesExecuted.WithLabelValues(phase, status).Inc()
}

// ObserveBackup records a created snapshot.
func (m *Metrics) ObserveBackup() {
	if m.registry == nil {
		return
	}
	m.backupsCreated.Inc()
}

// ObserveRestore records a rollback restore.
func (m *Metrics) ObserveRestore(status string) {
	if m.registry == nil {
		return
	}
	m.restores.WithLabelValues(status).Inc()
}

// ObserveRunDuration records a top-level operation's duration.
func (m *Metrics) ObserveRunDuration(operation string, d time.Duration) {
	if m.registry == nil {
		return
	}
	m.runDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// Push sends the collected metrics to the Pushgateway. A push failure is
// logged, never fatal: metrics must not fail a deployment.
func (m *Metrics) Push(job string) {
	if m.registry == nil {
		return
	}
	if err := push.New(m.pushURL, job).Gatherer(m.registry).Push(); err != nil {
		log.Warn().Err(err).Str("gateway", m.pushURL).Msg("metrics push failed")
	}
}
