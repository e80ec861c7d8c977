package telemetry

import (
	"testing"
	"time"
)

func TestMetricsDisabledIsNoOp(t *testing.T) {
	m := NewMetrics("")

	// Every method must be safe with no gateway configured.
	m.ObservePhase("provision", "executed")
	m.ObserveBackup()
	m.ObserveRestore("succeeded")
	m.ObserveRunDuration("deploy", 3*time.Second)
	m.Push("caravel_deploy")
}

func TestMetricsCollect(t *testing.T) {
	m := NewMetrics("http://pushgateway.example.com:9091")

	m.ObservePhase("provision", "executed")
	m.ObservePhase("provision", "executed")
	m.ObservePhase("configure", "failed")
	m.ObserveBackup()
	m.ObserveRestore("degraded")
	m.ObserveRunDuration("deploy", 42*time.Second)

	families, err := m.registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	counts := make(map[string]int)
	for _, mf := range families {
		counts[mf.GetName()] = len(mf.GetMetric())
	}

	if counts["caravel_phases_executed_total"] != 2 {
		t.Errorf("phase series = %d, want 2 (two label combinations)", counts["caravel_phases_executed_total"])
	}
	if counts["caravel_backups_created_total"] != 1 {
		t.Errorf("backup series = %d, want 1", counts["caravel_backups_created_total"])
	}
	if counts["caravel_restores_total"] != 1 {
		t.Errorf("restore series = %d, want 1", counts["caravel_restores_total"])
	}
	if counts["caravel_run_duration_seconds"] != 1 {
		t.Errorf("duration series = %d, want 1", counts["caravel_run_duration_seconds"])
	}
}
