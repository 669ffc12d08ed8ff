package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/wdir-license-backend/pkg/auth/session"
	"github.com/angelmondragon/wdir-license-backend/pkg/config"
)

type stubVerifier struct {
	principal *session.Principal
	err       error
	token     string
}

func (s *stubVerifier) Verify(ctx context.Context, token string) (*session.Principal, error) {
	s.token = token
	if s.err != nil {
		return nil, s.err
	}
	return s.principal, nil
}

func adminConfig(emails ...string) config.AdminConfig {
	return config.AdminConfig{Emails: emails}
}

func TestAdminAuthAcceptsAllowlistedSession(t *testing.T) {
	verifier := &stubVerifier{principal: &session.Principal{Email: "ops@wdirapp.com", SessionID: "sid", ExpiresAt: time.Now().Add(time.Hour)}}
	var seen *session.Principal
	var seenToken string
	handler := AdminAuth(verifier, adminConfig("ops@wdirapp.com"), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AdminFromContext(r.Context())
		seenToken = AdminTokenFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/licenses", nil)
	req.Header.Set("Authorization", "Bearer tok-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if verifier.token != "tok-123" || seenToken != "tok-123" {
		t.Fatalf("token not propagated: %q / %q", verifier.token, seenToken)
	}
	if seen == nil || seen.SessionID != "sid" {
		t.Fatalf("principal not injected: %+v", seen)
	}
}

func TestAdminAuthRejections(t *testing.T) {
	cases := []struct {
		name     string
		header   string
		verifier *stubVerifier
		want     int
	}{
		{name: "missing header", header: "", verifier: &stubVerifier{}, want: http.StatusUnauthorized},
		{name: "invalid session", header: "Bearer bad", verifier: &stubVerifier{err: session.ErrInvalidSession}, want: http.StatusUnauthorized},
		{name: "store failure", header: "Bearer tok", verifier: &stubVerifier{err: errors.New("redis down")}, want: http.StatusServiceUnavailable},
		{name: "removed from allowlist", header: "Bearer tok", verifier: &stubVerifier{principal: &session.Principal{Email: "former@wdirapp.com"}}, want: http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := AdminAuth(tc.verifier, adminConfig("ops@wdirapp.com"), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not run")
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/admin/licenses", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestRequestIDReplacesInvalidIDs(t *testing.T) {
	handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get(requestIDHeader) != "abc-123" {
		t.Fatalf("expected caller id to be kept, got %q", rec.Header().Get(requestIDHeader))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "has space")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got == "has space" || got == "" {
		t.Fatalf("expected a fresh id, got %q", got)
	}
}

func TestRecovererWritesInternalError(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
