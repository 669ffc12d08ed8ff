package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/wdir-license-backend/internal/devices"
	"github.com/angelmondragon/wdir-license-backend/internal/licenses"
	"github.com/angelmondragon/wdir-license-backend/pkg/config"
	"github.com/angelmondragon/wdir-license-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/wdir-license-backend/pkg/errors"
)

type stubLicenseClient struct {
	activatedKey string
	device       *devices.DeviceInfo
	validation   *licenses.ValidationResult
	err          error
}

func (s *stubLicenseClient) Activate(ctx context.Context, licenseKey string, device *devices.DeviceInfo) (*models.License, error) {
	s.activatedKey = licenseKey
	s.device = device
	if s.err != nil {
		return nil, s.err
	}
	return sampleLicense(), nil
}

func (s *stubLicenseClient) Validate(ctx context.Context, licenseKey string) (*licenses.ValidationResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.validation, nil
}

func (s *stubLicenseClient) Refresh(ctx context.Context, email, deviceID string) (*licenses.Summary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &licenses.Summary{LicenseKey: "ABCD-EFGH-JKLM-NPQR", InspectorName: "Ada Inspector"}, nil
}

type stubUsageReporter struct {
	period string
	count  int
}

func (s *stubUsageReporter) ReportUsage(ctx context.Context, email, period string, count int) (*models.UsageStat, error) {
	s.period = period
	s.count = count
	return &models.UsageStat{Period: period, ReportCount: count, LastReportedAt: time.Now()}, nil
}

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

func TestLicenseActivateWithoutDevice(t *testing.T) {
	svc := &stubLicenseClient{}
	resp := postJSON(LicenseActivate(svc, nil), `{"license_key":"abcd-efgh-jklm-npqr"}`)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.device != nil {
		t.Fatalf("expected no device, got %+v", svc.device)
	}
	if svc.activatedKey == "" {
		t.Fatal("expected key to reach the service")
	}
}

func TestLicenseActivateRejectsMalformedKey(t *testing.T) {
	svc := &stubLicenseClient{}
	resp := postJSON(LicenseActivate(svc, nil), `{"license_key":"OOOO-1111-IIII-0000"}`)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.activatedKey != "" {
		t.Fatal("malformed key must not reach the service")
	}
}

func TestLicenseActivateMapsExpired(t *testing.T) {
	svc := &stubLicenseClient{err: pkgerrors.New(pkgerrors.CodeExpired, "license has expired")}
	resp := postJSON(LicenseActivate(svc, nil), `{"license_key":"ABCD-EFGH-JKLM-NPQR","device_info":{"device_id":"ipad-1"}}`)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if svc.device == nil || svc.device.DeviceID != "ipad-1" {
		t.Fatalf("expected device info passed through, got %+v", svc.device)
	}
}

func TestLicenseValidateReportsInactive(t *testing.T) {
	svc := &stubLicenseClient{validation: &licenses.ValidationResult{IsActive: false, Reason: "expired"}}
	resp := postJSON(LicenseValidate(svc, nil), `{"license_key":"ABCD-EFGH-JKLM-NPQR"}`)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"is_active":false`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestLicenseRefreshNotFound(t *testing.T) {
	svc := &stubLicenseClient{err: pkgerrors.New(pkgerrors.CodeNotFound, "device not registered")}
	resp := postJSON(LicenseRefresh(svc, nil), `{"email":"inspector@example.com","device_id":"ipad-1"}`)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestUsageReportAcceptsZero(t *testing.T) {
	svc := &stubUsageReporter{count: -1}
	resp := postJSON(UsageReport(svc, nil), `{"email":"inspector@example.com","period":"2026-10","report_count":0}`)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.count != 0 || svc.period != "2026-10" {
		t.Fatalf("unexpected report %q/%d", svc.period, svc.count)
	}
}

func TestUsageReportRejectsNegative(t *testing.T) {
	svc := &stubUsageReporter{}
	resp := postJSON(UsageReport(svc, nil), `{"email":"inspector@example.com","period":"2026-10","report_count":-4}`)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestHealthReadyReportsDependencyFailure(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	handler := HealthReady(cfg, nil, map[string]Pinger{
		"db":    stubPinger{},
		"redis": stubPinger{err: errors.New("connection refused")},
	})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	if resp.Header().Get("X-WDIR-Env") != "test" {
		t.Fatalf("missing env header")
	}
}

func TestHealthReadyAllUp(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	handler := HealthReady(cfg, nil, map[string]Pinger{"db": stubPinger{}})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"db":"up"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}
