package metrics

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestLicensingMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLicensingMetrics(reg)

	m.CodeIssued("device_activation", "sent")
	m.CodeIssued("device_activation", "sent")
	m.Verification("device_activation", "too_many_attempts")
	m.LicenseProvisioned("payment")
	m.MultiDeviceFlagged()
	m.WebhookEvent("checkout.session.completed", "")
	m.ObserveRequest("/api/license/validate", http.StatusOK, 20*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "wdir_verification_codes_issued_total", "outcome", "sent"); err != nil || got != 2 {
		t.Fatalf("expected codes issued=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "wdir_verification_attempts_total", "outcome", "too_many_attempts"); err != nil || got != 1 {
		t.Fatalf("expected verification=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "wdir_licenses_provisioned_total", "source", "payment"); err != nil || got != 1 {
		t.Fatalf("expected provisioned=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "wdir_webhook_events_total", "outcome", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected blank outcome normalized, got %f (%v)", got, err)
	}
	if mf := findMetricFamily(mfs, "wdir_multi_device_flags_total"); mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected flag counter=1")
	}
	if mf := findMetricFamily(mfs, "wdir_http_request_duration_seconds"); mf == nil {
		t.Fatalf("expected request histogram")
	} else if !matchesLabel(mf.GetMetric()[0].GetLabel(), "status", "2xx") {
		t.Fatalf("expected 2xx status class")
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *LicensingMetrics
	m.CodeIssued("x", "y")
	m.Verification("x", "y")
	m.LicenseProvisioned("x")
	m.MultiDeviceFlagged()
	m.WebhookEvent("x", "y")
	m.ObserveRequest("x", 200, time.Second)

	unregistered := NewLicensingMetrics(nil)
	unregistered.CodeIssued("x", "y")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
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

func TestCronJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	job := "verification-code-cleanup"
	m.ObserveDuration(job, 250*time.Millisecond)
	m.IncSuccess(job)
	m.IncFailure(job)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "wdir_cron_job_success_total", "job", job); err != nil || got != 1 {
		t.Fatalf("expected success=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "wdir_cron_job_failure_total", "job", job); err != nil || got != 1 {
		t.Fatalf("expected failure=1, got %f (%v)", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "wdir_cron_job_duration_seconds", "job", job); err != nil || got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f (%v)", got, err)
	}
}

func TestNilCronJobMetricsIsNoop(t *testing.T) {
	var m *CronJobMetrics
	m.IncSuccess("x")
	m.IncFailure("x")
	m.ObserveDuration("x", time.Second)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}
