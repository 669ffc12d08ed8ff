package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/wdir-license-backend/pkg/logger"
	"github.com/angelmondragon/wdir-license-backend/pkg/metrics"
)

func TestLoggingRecordsRoutePatternAndStatus(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})
	reg := prometheus.NewRegistry()
	m := metrics.NewLicensingMetrics(reg)

	r := chi.NewRouter()
	r.Use(Logging(logg, m))
	r.Get("/api/admin/licenses/{licenseID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/licenses/abc", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rec.Code)
	}
	out := buf.String()
	if !strings.Contains(out, "request.complete") || !strings.Contains(out, `"status":418`) {
		t.Fatalf("expected completion log with status, got %s", out)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var found bool
	for _, mf := range mfs {
		if mf.GetName() != "wdir_http_request_duration_seconds" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "route" && label.GetValue() == "/api/admin/licenses/{licenseID}" {
					found = true
				}
			}
		}
	}
	if !found {
		t.Fatal("expected histogram labelled with the route pattern")
	}
}
