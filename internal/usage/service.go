package usage

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/wdir-license-backend/pkg/db"
	"github.com/angelmondragon/wdir-license-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/wdir-license-backend/pkg/errors"
	"github.com/google/uuid"
)

// HistoryPeriods is how many months ListUsage returns.
const HistoryPeriods = 12

var periodRe = regexp.MustCompile(`^\d{4}-\d{2}$`)

type usageRepository interface {
	Upsert(ctx context.Context, stat *models.UsageStat) error
	ListRecent(ctx context.Context, licenseID uuid.UUID, limit int) ([]models.UsageStat, error)
}

type licenseLookup interface {
	FindByEmail(ctx context.Context, email string) (*models.License, error)
}

// Service records the monthly report counts apps submit.
type Service interface {
	ReportUsage(ctx context.Context, email, period string, count int) (*models.UsageStat, error)
	ListUsage(ctx context.Context, licenseID uuid.UUID) ([]models.UsageStat, error)
}

type service struct {
	repo     usageRepository
	licenses licenseLookup
	now      func() time.Time
}

// NewService builds a usage service.
func NewService(repo usageRepository, licenses licenseLookup, now func() time.Time) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("usage repository required")
	}
	if licenses == nil {
		return nil, fmt.Errorf("license lookup required")
	}
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     repo,
		licenses: licenses,
		now:      func() time.Time { return now().UTC() },
	}, nil
}

// FormatPeriod renders t as a YYYY-MM period.
func FormatPeriod(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// ValidatePeriod reports whether period is a YYYY-MM value with a real month.
func ValidatePeriod(period string) bool {
	if !periodRe.MatchString(period) {
		return false
	}
	month, err := strconv.Atoi(period[5:])
	return err == nil && month >= 1 && month <= 12
}

func (s *service) ReportUsage(ctx context.Context, email, period string, count int) (*models.UsageStat, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	period = strings.TrimSpace(period)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if !ValidatePeriod(period) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid period format, use YYYY-MM")
	}
	if count < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "report_count must not be negative")
	}

	license, err := s.licenses.FindByEmail(ctx, email)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "license not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup license")
	}
	if !license.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "license is not active")
	}

	now := s.now()
	stat := &models.UsageStat{
		LicenseID:      license.ID,
		Period:         period,
		ReportCount:    count,
		LastReportedAt: now,
		CreatedAt:      now,
	}
	if err := s.repo.Upsert(ctx, stat); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record usage")
	}
	return stat, nil
}

func (s *service) ListUsage(ctx context.Context, licenseID uuid.UUID) ([]models.UsageStat, error) {
	rows, err := s.repo.ListRecent(ctx, licenseID, HistoryPeriods)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list usage")
	}
	return rows, nil
}
