package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSAllowsConfiguredOrigins(t *testing.T) {
	handler := CORS("https://staging.wdirapp.com/")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cases := map[string]bool{
		"https://wdirapp.com":         true,
		"https://staging.wdirapp.com": true,
		"https://evil.example":        false,
	}
	for origin, allowed := range cases {
		req := httptest.NewRequest(http.MethodOptions, "/api/license/validate", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		got := rec.Header().Get("Access-Control-Allow-Origin")
		if allowed && got != origin {
			t.Fatalf("%s: expected allow origin header, got %q", origin, got)
		}
		if !allowed && got != "" {
			t.Fatalf("%s: expected no allow origin header, got %q", origin, got)
		}
	}
}
