package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestOutboxMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewOutboxMetrics(reg)
	metrics.ObserveBatch(250 * time.Millisecond)
	metrics.IncPublished("booking_confirmed")
	metrics.IncFailed("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "outbox_published_total", map[string]string{"event_type": "booking_confirmed"}); err != nil {
		t.Fatalf("fetch published: %v", err)
	} else if got != 1 {
		t.Fatalf("expected published=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "outbox_failed_total", map[string]string{"event_type": "unknown"}); err != nil {
		t.Fatalf("fetch failed: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failed=1, got %f", got)
	}
	mf := findMetricFamily(mfs, "outbox_batch_duration_seconds")
	if mf == nil || mf.GetMetric()[0].GetHistogram().GetSampleSum() <= 0 {
		t.Fatalf("expected batch duration to be observed")
	}
}

func TestLedgerMetricsCountsByOperationAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewLedgerMetrics(reg)
	metrics.IncAttempt("createExperience", "rate_limited")
	metrics.IncAttempt("createExperience", "rate_limited")
	metrics.IncAttempt("createExperience", OutcomeSuccess)
	metrics.ObserveRetryDelay("createExperience", 2*time.Second)
	metrics.ObserveRetryDelay("createExperience", 4*time.Second)
	metrics.IncProvisioning("funded")
	metrics.IncReconcile("event", "mirrored")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "ledger_submission_attempts_total", map[string]string{"operation": "createExperience", "outcome": "rate_limited"}); err != nil {
		t.Fatalf("fetch attempts: %v", err)
	} else if got != 2 {
		t.Fatalf("expected 2 rate limited attempts, got %f", got)
	}
	mf := findMetricFamily(mfs, "ledger_submission_retry_delay_seconds")
	if mf == nil {
		t.Fatal("retry delay histogram missing")
	}
	if sum := mf.GetMetric()[0].GetHistogram().GetSampleSum(); sum != 6 {
		t.Fatalf("expected 6s of retry delay, got %f", sum)
	}
	if got, err := fetchCounterValue(mfs, "wallet_provisioning_total", map[string]string{"status": "funded"}); err != nil || got != 1 {
		t.Fatalf("expected funded provisioning=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "catalog_reconcile_total", map[string]string{"derivation": "event", "outcome": "mirrored"}); err != nil || got != 1 {
		t.Fatalf("expected reconcile=1, got %f (%v)", got, err)
	}
}

func TestNilLedgerMetricsIsNoop(t *testing.T) {
	var metrics *LedgerMetrics
	metrics.IncAttempt("bookExperience", OutcomeSuccess)
	metrics.ObserveRetryDelay("bookExperience", time.Second)
	NewLedgerMetrics(nil).IncProvisioning("error")
}

func TestMaintenanceMetricsCountsRunsAndPrunedRows(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMaintenanceMetrics(reg)
	metrics.ObserveRun("outbox-retention", "success", time.Second)
	metrics.AddPruned("outbox-retention", 12)
	metrics.AddPruned("outbox-retention", 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "maintenance_task_runs_total", map[string]string{"task": "outbox-retention", "outcome": "success"}); err != nil || got != 1 {
		t.Fatalf("expected one run, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "maintenance_rows_pruned_total", map[string]string{"task": "outbox-retention"}); err != nil || got != 12 {
		t.Fatalf("expected 12 pruned rows, got %f (%v)", got, err)
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
