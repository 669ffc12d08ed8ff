package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/wdir-license-backend/pkg/config"
	"github.com/angelmondragon/wdir-license-backend/pkg/db/dbtest"
	"github.com/angelmondragon/wdir-license-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/wdir-license-backend/pkg/errors"
	"github.com/angelmondragon/wdir-license-backend/pkg/mailer"
	"gorm.io/gorm"
)

type stubMailer struct {
	sent []mailer.Message
	err  error
}

func (s *stubMailer) Send(_ context.Context, msg mailer.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type stubLicenses struct {
	license *models.License
	err     error
}

func (s stubLicenses) FindByEmail(context.Context, string) (*models.License, error) {
	return s.license, s.err
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

type fixture struct {
	svc    Service
	repo   *Repository
	mail   *stubMailer
	clock  *clock
	policy Policy
}

func newFixture(t *testing.T, code string) *fixture {
	t.Helper()
	return newSequenceFixture(t, code)
}

// newSequenceFixture hands out codes in order, repeating the last one.
func newSequenceFixture(t *testing.T, codes ...string) *fixture {
	t.Helper()
	next := 0
	nextCode := func() (string, error) {
		code := codes[next]
		if next < len(codes)-1 {
			next++
		}
		return code, nil
	}
	repo := NewRepository(dbtest.Open(t))
	mail := &stubMailer{}
	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc, err := NewService(ServiceParams{
		Repo:   repo,
		Mailer: mail,
		Config: config.VerificationConfig{
			CodeTTL:       10 * time.Minute,
			RequestWindow: time.Hour,
			RequestLimit:  5,
			CodePepper:    "pepper",
		},
		NewCode: nextCode,
		Now:     clk.Now,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	active := stubLicenses{license: &models.License{IsActive: true}}
	return &fixture{
		svc:    svc,
		repo:   repo,
		mail:   mail,
		clock:  clk,
		policy: DeviceActivationPolicy(active, 3),
	}
}

func expectCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if !pkgerrors.IsCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestRequestCodeRateLimitWindow(t *testing.T) {
	f := newFixture(t, "123456")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := f.svc.RequestCode(ctx, f.policy, "inspector@example.com"); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		f.clock.now = f.clock.now.Add(time.Minute)
	}
	expectCode(t, f.svc.RequestCode(ctx, f.policy, "Inspector@Example.com "), pkgerrors.CodeRateLimit)
	if len(f.mail.sent) != 5 {
		t.Fatalf("expected 5 emails, got %d", len(f.mail.sent))
	}

	f.clock.now = f.clock.now.Add(61 * time.Minute)
	if err := f.svc.RequestCode(ctx, f.policy, "inspector@example.com"); err != nil {
		t.Fatalf("expected request after window to pass: %v", err)
	}
}

func TestRequestCodeStoresDigestOnly(t *testing.T) {
	f := newFixture(t, "042917")
	ctx := context.Background()

	if err := f.svc.RequestCode(ctx, f.policy, "  Inspector@Example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	var stored models.VerificationCode
	if err := f.repo.db.First(&stored).Error; err != nil {
		t.Fatalf("load code: %v", err)
	}
	if stored.Email != "inspector@example.com" {
		t.Fatalf("expected normalized email, got %q", stored.Email)
	}
	if stored.CodeHash == "042917" || stored.CodeHash == "" {
		t.Fatalf("expected hashed code, got %q", stored.CodeHash)
	}
	if !stored.ExpiresAt.Equal(f.clock.now.Add(10 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", stored.ExpiresAt)
	}
	if got := f.mail.sent[0].To; got != "inspector@example.com" {
		t.Fatalf("unexpected recipient %q", got)
	}
}

func TestRequestCodeDeletesRowWhenDispatchFails(t *testing.T) {
	f := newFixture(t, "123456")
	f.mail.err = errors.New("sendgrid down")

	err := f.svc.RequestCode(context.Background(), f.policy, "inspector@example.com")
	expectCode(t, err, pkgerrors.CodeDependency)

	count, err := f.repo.CountSince(context.Background(), "inspector@example.com", f.clock.now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected undelivered code to be removed, found %d", count)
	}
}

func TestRequestCodeAuthorization(t *testing.T) {
	f := newFixture(t, "123456")
	ctx := context.Background()

	expectCode(t, f.svc.RequestCode(ctx, f.policy, "   "), pkgerrors.CodeValidation)

	missing := DeviceActivationPolicy(stubLicenses{err: gorm.ErrRecordNotFound}, 3)
	expectCode(t, f.svc.RequestCode(ctx, missing, "nobody@example.com"), pkgerrors.CodeNotFound)

	inactive := AppLoginPolicy(stubLicenses{license: &models.License{IsActive: false}}, 0)
	expectCode(t, f.svc.RequestCode(ctx, inactive, "revoked@example.com"), pkgerrors.CodeForbidden)

	admin := AdminLoginPolicy(config.AdminConfig{Emails: []string{"ops@wdirapp.com"}}, 0)
	expectCode(t, f.svc.RequestCode(ctx, admin, "intruder@example.com"), pkgerrors.CodeUnauthorized)
	if err := f.svc.RequestCode(ctx, admin, "OPS@wdirapp.com"); err != nil {
		t.Fatalf("expected allowlisted admin to receive a code: %v", err)
	}
	if len(f.mail.sent) != 1 {
		t.Fatalf("expected only the admin email to be sent, got %d", len(f.mail.sent))
	}
}

func TestVerifyCodeTooManyAttempts(t *testing.T) {
	f := newFixture(t, "123456")
	ctx := context.Background()

	if err := f.svc.RequestCode(ctx, f.policy, "inspector@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	for i := 0; i < 3; i++ {
		_, err := f.svc.VerifyCode(ctx, f.policy, "inspector@example.com", "654321")
		expectCode(t, err, pkgerrors.CodeInvalidCode)
	}
	_, err := f.svc.VerifyCode(ctx, f.policy, "inspector@example.com", "123456")
	expectCode(t, err, pkgerrors.CodeTooManyAttempts)
}

func TestVerifyCodeAttemptsCoverOlderOutstandingCodes(t *testing.T) {
	f := newSequenceFixture(t, "111111", "222222")
	ctx := context.Background()

	if err := f.svc.RequestCode(ctx, f.policy, "inspector@example.com"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	f.clock.now = f.clock.now.Add(time.Minute)
	if err := f.svc.RequestCode(ctx, f.policy, "inspector@example.com"); err != nil {
		t.Fatalf("resend: %v", err)
	}
	for i := 0; i < 3; i++ {
		_, err := f.svc.VerifyCode(ctx, f.policy, "inspector@example.com", "999999")
		expectCode(t, err, pkgerrors.CodeInvalidCode)
	}

	_, err := f.svc.VerifyCode(ctx, f.policy, "inspector@example.com", "111111")
	expectCode(t, err, pkgerrors.CodeTooManyAttempts)
	_, err = f.svc.VerifyCode(ctx, f.policy, "inspector@example.com", "222222")
	expectCode(t, err, pkgerrors.CodeTooManyAttempts)
}

func TestVerifyCodeKeepsCodeWhenLicenseDeactivated(t *testing.T) {
	f := newFixture(t, "123456")
	ctx := context.Background()
	license := &models.License{IsActive: true}
	policy := DeviceActivationPolicy(stubLicenses{license: license}, 3)

	if err := f.svc.RequestCode(ctx, policy, "inspector@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	license.IsActive = false
	_, err := f.svc.VerifyCode(ctx, policy, "inspector@example.com", "123456")
	expectCode(t, err, pkgerrors.CodeForbidden)

	license.IsActive = true
	record, err := f.svc.VerifyCode(ctx, policy, "inspector@example.com", "123456")
	if err != nil {
		t.Fatalf("expected the unconsumed code to still verify: %v", err)
	}
	if !record.Consumed {
		t.Fatalf("expected consumed record, got %+v", record)
	}
}

func TestVerifyCodeConsumesOnce(t *testing.T) {
	f := newFixture(t, "123456")
	ctx := context.Background()
	appLogin := AppLoginPolicy(stubLicenses{license: &models.License{IsActive: true}}, 0)

	if err := f.svc.RequestCode(ctx, appLogin, "inspector@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	record, err := f.svc.VerifyCode(ctx, appLogin, "Inspector@example.com", "123456")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !record.Consumed || record.ConsumedAt == nil {
		t.Fatalf("expected consumed record, got %+v", record)
	}

	_, err = f.svc.VerifyCode(ctx, appLogin, "inspector@example.com", "123456")
	expectCode(t, err, pkgerrors.CodeInvalidCode)
}

func TestVerifyCodeFlowsAreIsolated(t *testing.T) {
	f := newFixture(t, "123456")
	ctx := context.Background()
	appLogin := AppLoginPolicy(stubLicenses{license: &models.License{IsActive: true}}, 0)

	if err := f.svc.RequestCode(ctx, appLogin, "inspector@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	_, err := f.svc.VerifyCode(ctx, f.policy, "inspector@example.com", "123456")
	expectCode(t, err, pkgerrors.CodeInvalidCode)

	if _, err := f.svc.VerifyCode(ctx, appLogin, "inspector@example.com", "123456"); err != nil {
		t.Fatalf("expected app login code to still be valid: %v", err)
	}
}

func TestVerifyCodeExpired(t *testing.T) {
	f := newFixture(t, "123456")
	ctx := context.Background()

	if err := f.svc.RequestCode(ctx, f.policy, "inspector@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	f.clock.now = f.clock.now.Add(10 * time.Minute)
	_, err := f.svc.VerifyCode(ctx, f.policy, "inspector@example.com", "123456")
	expectCode(t, err, pkgerrors.CodeExpired)
}

func TestVerifyCodeUncappedPolicyIgnoresAttempts(t *testing.T) {
	f := newFixture(t, "123456")
	ctx := context.Background()
	appLogin := AppLoginPolicy(stubLicenses{license: &models.License{IsActive: true}}, 0)

	if err := f.svc.RequestCode(ctx, appLogin, "inspector@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	for i := 0; i < 5; i++ {
		_, err := f.svc.VerifyCode(ctx, appLogin, "inspector@example.com", "000000")
		expectCode(t, err, pkgerrors.CodeInvalidCode)
	}
	if _, err := f.svc.VerifyCode(ctx, appLogin, "inspector@example.com", "123456"); err != nil {
		t.Fatalf("expected uncapped policy to accept the correct code: %v", err)
	}
}
