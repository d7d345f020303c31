package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.ObserveRun("log-retention", 250*time.Millisecond, nil)
	m.ObserveRun("log-retention", 100*time.Millisecond, errors.New("boom"))
	m.ObserveRun("snapshot-warm", time.Second, errors.New("redis down"))
	m.IncSkipped()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	for _, tc := range []struct {
		job, outcome string
		want         float64
	}{
		{"log-retention", outcomeSuccess, 1},
		{"log-retention", outcomeFailure, 1},
		{"snapshot-warm", outcomeFailure, 1},
	} {
		got, err := fetchRunCount(mfs, tc.job, tc.outcome)
		if err != nil {
			t.Fatalf("%s/%s: %v", tc.job, tc.outcome, err)
		}
		if got != tc.want {
			t.Fatalf("%s/%s: expected %v, got %v", tc.job, tc.outcome, tc.want, got)
		}
	}

	if got, err := fetchHistogramSum(mfs, "cron_job_duration_seconds", "job", "log-retention"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got < 0.3 {
		t.Fatalf("expected both runs in duration sum, got %f", got)
	}

	if got, err := fetchGaugeValue(mfs, "cron_job_last_success_timestamp_seconds", "job", "log-retention"); err != nil {
		t.Fatalf("fetch last success: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected last success timestamp, got %f", got)
	}
	if _, err := fetchGaugeValue(mfs, "cron_job_last_success_timestamp_seconds", "job", "snapshot-warm"); err == nil {
		t.Fatal("failed job must not record a last success")
	}

	skipped := findMetricFamily(mfs, "cron_cycles_skipped")
	if skipped == nil || skipped.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected one skipped cycle, got %v", skipped)
	}
}

func TestNilCronJobMetricsIsSafe(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveRun("job", time.Second, nil)
	m.IncSkipped()

	unregistered := NewCronJobMetrics(nil)
	unregistered.ObserveRun("", time.Second, errors.New("boom"))
	unregistered.IncSkipped()
}

func fetchRunCount(mfs []*dto.MetricFamily, job, outcome string) (float64, error) {
	mf := findMetricFamily(mfs, "cron_job_runs")
	if mf == nil {
		return 0, errMetricNotFound("cron_job_runs")
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), "job", job) && matchesLabel(metric.GetLabel(), "outcome", outcome) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("no run count for job=%s outcome=%s", job, outcome)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, errMetricNotFound(name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, errMetricNotFound(name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func errMetricNotFound(name string) error {
	return fmt.Errorf("metric %q not found", name)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
