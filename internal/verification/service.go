package verification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/wdir-license-backend/pkg/config"
	"github.com/angelmondragon/wdir-license-backend/pkg/db"
	"github.com/angelmondragon/wdir-license-backend/pkg/db/models"
	"github.com/angelmondragon/wdir-license-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wdir-license-backend/pkg/errors"
	"github.com/angelmondragon/wdir-license-backend/pkg/logger"
	"github.com/angelmondragon/wdir-license-backend/pkg/mailer"
	"github.com/angelmondragon/wdir-license-backend/pkg/metrics"
	"github.com/angelmondragon/wdir-license-backend/pkg/security"
	"github.com/google/uuid"
)

const invalidCodeMessage = "invalid verification code"

type codesRepository interface {
	Create(ctx context.Context, code *models.VerificationCode) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountSince(ctx context.Context, email string, since time.Time) (int64, error)
	FindLatestMatch(ctx context.Context, email string, flow enums.VerificationFlow, codeHash string) (*models.VerificationCode, error)
	IncrementOutstandingAttempts(ctx context.Context, email string, flow enums.VerificationFlow, now time.Time) (int64, error)
	Consume(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// Service issues and redeems one-time email codes.
type Service interface {
	RequestCode(ctx context.Context, policy Policy, email string) error
	VerifyCode(ctx context.Context, policy Policy, email, code string) (*models.VerificationCode, error)
}

// ServiceParams groups the service dependencies.
type ServiceParams struct {
	Repo    codesRepository
	Mailer  mailer.Dispatcher
	Config  config.VerificationConfig
	Metrics *metrics.LicensingMetrics
	Logger  *logger.Logger
	// NewCode overrides code generation.
	NewCode func() (string, error)
	// Now overrides the clock.
	Now func() time.Time
}

type service struct {
	repo    codesRepository
	mailer  mailer.Dispatcher
	cfg     config.VerificationConfig
	metrics *metrics.LicensingMetrics
	logg    *logger.Logger
	newCode func() (string, error)
	now     func() time.Time
}

// NewService builds a verification service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("verification repository required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	if strings.TrimSpace(params.Config.CodePepper) == "" {
		return nil, fmt.Errorf("code pepper required")
	}
	cfg := params.Config
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = security.CodeTTL
	}
	if cfg.RequestWindow <= 0 {
		cfg.RequestWindow = time.Hour
	}
	if cfg.RequestLimit <= 0 {
		cfg.RequestLimit = 5
	}
	newCode := params.NewCode
	if newCode == nil {
		newCode = security.GenerateVerificationCode
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:    params.Repo,
		mailer:  params.Mailer,
		cfg:     cfg,
		metrics: params.Metrics,
		logg:    params.Logger,
		newCode: newCode,
		now:     func() time.Time { return now().UTC() },
	}, nil
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *service) RequestCode(ctx context.Context, policy Policy, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if s.logg != nil {
		ctx = s.logg.WithFlow(s.logg.WithEmail(ctx, email), policy.Flow.String())
	}

	if policy.Authorizer != nil {
		if err := policy.Authorizer.Authorize(ctx, email); err != nil {
			s.metrics.CodeIssued(policy.Flow.String(), "unauthorized")
			return err
		}
	}

	now := s.now()
	recent, err := s.repo.CountSince(ctx, email, now.Add(-s.cfg.RequestWindow))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count recent codes")
	}
	if recent >= int64(s.cfg.RequestLimit) {
		s.metrics.CodeIssued(policy.Flow.String(), "rate_limited")
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many code requests, try again later")
	}

	code, err := s.newCode()
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate verification code")
	}
	record := &models.VerificationCode{
		Email:     email,
		CodeHash:  security.HashVerificationCode(s.cfg.CodePepper, email, code),
		Flow:      policy.Flow,
		ExpiresAt: now.Add(s.cfg.CodeTTL),
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store verification code")
	}

	if err := s.mailer.Send(ctx, mailer.VerificationCodeEmail(email, code, s.cfg.CodeTTL)); err != nil {
		if delErr := s.repo.Delete(ctx, record.ID); delErr != nil && s.logg != nil {
			s.logg.Error(ctx, "failed to remove undelivered verification code", delErr)
		}
		s.metrics.CodeIssued(policy.Flow.String(), "dispatch_failed")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to send verification email")
	}

	s.metrics.CodeIssued(policy.Flow.String(), "sent")
	if s.logg != nil {
		s.logg.Info(ctx, "verification code sent")
	}
	return nil
}

func (s *service) VerifyCode(ctx context.Context, policy Policy, email, code string) (*models.VerificationCode, error) {
	email = NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and code are required")
	}

	record, err := s.repo.FindLatestMatch(ctx, email, policy.Flow, security.HashVerificationCode(s.cfg.CodePepper, email, code))
	if err != nil {
		if !db.IsNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup verification code")
		}
		if policy.TrackAttempts {
			if _, incErr := s.repo.IncrementOutstandingAttempts(ctx, email, policy.Flow, s.now()); incErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, incErr, "record failed attempt")
			}
		}
		return nil, s.reject(policy, "invalid", pkgerrors.New(pkgerrors.CodeInvalidCode, invalidCodeMessage))
	}

	now := s.now()
	if policy.attemptsExhausted(record.Attempts) {
		return nil, s.reject(policy, "too_many_attempts", pkgerrors.New(pkgerrors.CodeTooManyAttempts, "too many failed attempts, request a new code"))
	}
	if record.IsExpired(now) {
		return nil, s.reject(policy, "expired", pkgerrors.New(pkgerrors.CodeExpired, "verification code has expired"))
	}
	if policy.Authorizer != nil {
		if err := policy.Authorizer.Authorize(ctx, email); err != nil {
			return nil, s.reject(policy, "unauthorized", err)
		}
	}

	won, err := s.repo.Consume(ctx, record.ID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume verification code")
	}
	if !won {
		return nil, s.reject(policy, "raced", pkgerrors.New(pkgerrors.CodeInvalidCode, invalidCodeMessage))
	}

	record.Consumed = true
	record.ConsumedAt = &now
	s.metrics.Verification(policy.Flow.String(), "verified")
	return record, nil
}

func (s *service) reject(policy Policy, outcome string, err error) error {
	s.metrics.Verification(policy.Flow.String(), outcome)
	return err
}
