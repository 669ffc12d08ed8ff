package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LicensingMetrics tracks the verification and provisioning outcomes the
// service reports to Prometheus. A nil receiver is a no-op.
type LicensingMetrics struct {
	codesIssued   *prometheus.CounterVec
	verifications *prometheus.CounterVec
	provisioned   *prometheus.CounterVec
	flagsRaised   prometheus.Counter
	webhookEvents *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// NewLicensingMetrics registers the collectors on reg.
func NewLicensingMetrics(reg prometheus.Registerer) *LicensingMetrics {
	if reg == nil {
		return &LicensingMetrics{}
	}
	m := &LicensingMetrics{
		codesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wdir_verification_codes_issued_total",
			Help: "Verification code requests by flow and outcome.",
		}, []string{"flow", "outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wdir_verification_attempts_total",
			Help: "Verification attempts by flow and outcome.",
		}, []string{"flow", "outcome"}),
		provisioned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wdir_licenses_provisioned_total",
			Help: "Licenses created by source.",
		}, []string{"source"}),
		flagsRaised: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wdir_multi_device_flags_total",
			Help: "Licenses newly flagged for multi-device use.",
		}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wdir_webhook_events_total",
			Help: "Payment webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wdir_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status class.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
	reg.MustRegister(m.codesIssued, m.verifications, m.provisioned, m.flagsRaised, m.webhookEvents, m.httpDuration)
	return m
}

func (m *LicensingMetrics) CodeIssued(flow, outcome string) {
	if m == nil || m.codesIssued == nil {
		return
	}
	m.codesIssued.WithLabelValues(normalizeLabel(flow), normalizeLabel(outcome)).Inc()
}

func (m *LicensingMetrics) Verification(flow, outcome string) {
	if m == nil || m.verifications == nil {
		return
	}
	m.verifications.WithLabelValues(normalizeLabel(flow), normalizeLabel(outcome)).Inc()
}

func (m *LicensingMetrics) LicenseProvisioned(source string) {
	if m == nil || m.provisioned == nil {
		return
	}
	m.provisioned.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *LicensingMetrics) MultiDeviceFlagged() {
	if m == nil || m.flagsRaised == nil {
		return
	}
	m.flagsRaised.Inc()
}

func (m *LicensingMetrics) WebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObserveRequest records how long a request to route took.
func (m *LicensingMetrics) ObserveRequest(route string, status int, duration time.Duration) {
	if m == nil || m.httpDuration == nil {
		return
	}
	m.httpDuration.WithLabelValues(normalizeLabel(route), statusClass(status)).Observe(duration.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "unknown"
	}
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
