// Package health runs the fixed, ordered list of independent checks against
// a deployed target and aggregates them into a report. Checks never
// short-circuit: the report's value is diagnosing which layer is broken, so
// every check executes even when earlier ones fail.
package health

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/caravel-ops/caravel/pkg/telemetry"
)

// UtilizationThreshold is the fixed unhealthy threshold (percent) for the
// disk and memory checks.
const UtilizationThreshold = 80

// Result is the outcome of one independent check. Results are not
// persisted; they live only inside the report.
type Result struct {
	// Check is the check name.
	Check string `json:"check"`

	// Passed is the boolean outcome.
	Passed bool `json:"passed"`

	// Detail is the human-readable diagnostic.
	Detail string `json:"detail"`
}

// Check is one independent probe of the target.
type Check interface {
	// Name identifies the check in the report.
	Name() string

	// Run executes the check. Failures are expressed in the Result, not
	// as errors: a check that cannot run is a failed check.
	Run(ctx context.Context) Result
}

// Report is the aggregate outcome of a full health run.
type Report struct {
	// Target is the host the checks ran against.
	Target string `json:"target"`

	// Results holds every check outcome in the fixed check order.
	Results []Result `json:"results"`

	// Passed and Failed are the aggregate counts.
	Passed int `json:"passed"`
	Failed int `json:"failed"`

	// StartedAt and Duration time the run.
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Healthy reports whether every check passed.
func (r *Report) Healthy() bool {
	return r.Failed == 0
}

// PredominantlyFailing reports whether more checks failed than passed. The
// verify phase escalates only such reports; isolated failures are left for
// the operator to read.
func (r *Report) PredominantlyFailing() bool {
	return r.Failed > r.Passed
}

// Aggregator runs an ordered, fixed list of checks.
type Aggregator struct {
	target string
	checks []Check
	log    zerolog.Logger
}

// NewAggregator creates an aggregator for the given target and check list.
// The slice order is the report order.
func NewAggregator(target string, checks []Check) *Aggregator {
	return &Aggregator{target: target, checks: checks, log: telemetry.ComponentLogger("health")}
}

// Run executes every check in order, regardless of earlier failures, and
// returns the full report.
func (a *Aggregator) Run(ctx context.Context) *Report {
	report := &Report{
		Target:    a.target,
		Results:   make([]Result, 0, len(a.checks)),
		StartedAt: time.Now(),
	}

	for _, check := range a.checks {
		result := check.Run(ctx)

		if result.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Results = append(report.Results, result)

		a.log.Debug().
			Str("check", result.Check).
			Bool("passed", result.Passed).
			Str("detail", result.Detail).
			Msg("health check completed")
	}

	report.Duration = time.Since(report.StartedAt)

	a.log.Info().
		Str("target", a.target).
		Int("passed", report.Passed).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("health report complete")

	return report
}
