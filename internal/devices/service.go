package devices

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/wdir-license-backend/pkg/config"
	"github.com/angelmondragon/wdir-license-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/wdir-license-backend/pkg/errors"
	"github.com/angelmondragon/wdir-license-backend/pkg/logger"
	"github.com/angelmondragon/wdir-license-backend/pkg/mailer"
	"github.com/angelmondragon/wdir-license-backend/pkg/metrics"
	"github.com/google/uuid"
)

type devicesRepository interface {
	Register(ctx context.Context, device *models.Device) (*models.Device, error)
	ListByLicense(ctx context.Context, licenseID uuid.UUID, activeOnly bool) ([]models.Device, error)
	FindByDeviceID(ctx context.Context, deviceID string) ([]models.Device, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	SetDeviceCount(ctx context.Context, licenseID uuid.UUID, count int) error
	FlagMultiDevice(ctx context.Context, licenseID uuid.UUID, at time.Time) (bool, error)
}

// DeviceInfo identifies the installation a client reports.
type DeviceInfo struct {
	DeviceID    string
	DeviceModel string
	OSVersion   string
}

// FlagResult describes one recomputation of the multi-device flag.
type FlagResult struct {
	RecentDevices int
	Flagged       bool
	// Alerted is true only for the call that raised the flag.
	Alerted bool
}

// Service binds devices to licenses and watches for licenses shared across
// too many devices.
type Service interface {
	BindDevice(ctx context.Context, license *models.License, info DeviceInfo) (*models.Device, error)
	RecomputeMultiDeviceFlag(ctx context.Context, license *models.License) (*FlagResult, error)
	ListDevices(ctx context.Context, licenseID uuid.UUID) ([]models.Device, error)
	ListActiveDevices(ctx context.Context, licenseID uuid.UUID) ([]models.Device, error)
	FindRegistrations(ctx context.Context, deviceID string) ([]models.Device, error)
	TouchDevice(ctx context.Context, id uuid.UUID) error
}

// ServiceParams groups the engine dependencies.
type ServiceParams struct {
	Repo       devicesRepository
	Mailer     mailer.Dispatcher
	Licensing  config.LicensingConfig
	AlertEmail string
	Metrics    *metrics.LicensingMetrics
	Logger     *logger.Logger
	Now        func() time.Time
}

type service struct {
	repo       devicesRepository
	mailer     mailer.Dispatcher
	cfg        config.LicensingConfig
	alertEmail string
	metrics    *metrics.LicensingMetrics
	logg       *logger.Logger
	now        func() time.Time
}

// NewService builds the device engine.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("device repository required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	cfg := params.Licensing
	if cfg.MultiDeviceThreshold <= 0 {
		cfg.MultiDeviceThreshold = 3
	}
	if cfg.DeviceLookbackMonths <= 0 {
		cfg.DeviceLookbackMonths = 12
	}
	if cfg.AlertDeviceLimit <= 0 {
		cfg.AlertDeviceLimit = 5
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:       params.Repo,
		mailer:     params.Mailer,
		cfg:        cfg,
		alertEmail: strings.TrimSpace(params.AlertEmail),
		metrics:    params.Metrics,
		logg:       params.Logger,
		now:        func() time.Time { return now().UTC() },
	}, nil
}

func (s *service) BindDevice(ctx context.Context, license *models.License, info DeviceInfo) (*models.Device, error) {
	if license == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "license not found")
	}
	deviceID := strings.TrimSpace(info.DeviceID)
	if deviceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "device_id is required")
	}

	now := s.now()
	device := &models.Device{
		LicenseID:        license.ID,
		DeviceID:         deviceID,
		DeviceModel:      optional(info.DeviceModel),
		OSVersion:        optional(info.OSVersion),
		FirstActivatedAt: now,
		LastUsedAt:       now,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	stored, err := s.repo.Register(ctx, device)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "register device")
	}
	if license.ActivatedAt == nil {
		license.ActivatedAt = &now
	}
	return stored, nil
}

func (s *service) RecomputeMultiDeviceFlag(ctx context.Context, license *models.License) (*FlagResult, error) {
	if license == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "license not found")
	}
	active, err := s.repo.ListByLicense(ctx, license.ID, true)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list devices")
	}

	now := s.now()
	cutoff := now.AddDate(0, -s.cfg.DeviceLookbackMonths, 0)
	recent := 0
	for _, d := range active {
		if d.LastUsedAt.After(cutoff) {
			recent++
		}
	}

	if err := s.repo.SetDeviceCount(ctx, license.ID, recent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store device count")
	}
	license.DeviceCount = recent

	result := &FlagResult{RecentDevices: recent, Flagged: license.FlaggedMultiDevice}
	if recent < s.cfg.MultiDeviceThreshold || license.FlaggedMultiDevice {
		return result, nil
	}

	won, err := s.repo.FlagMultiDevice(ctx, license.ID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag license")
	}
	license.FlaggedMultiDevice = true
	result.Flagged = true
	if !won {
		return result, nil
	}

	s.metrics.MultiDeviceFlagged()
	result.Alerted = true
	s.sendAlert(ctx, license, recent, active)
	return result, nil
}

func (s *service) sendAlert(ctx context.Context, license *models.License, count int, devices []models.Device) {
	if s.logg != nil {
		ctx = s.logg.WithLicenseID(ctx, license.ID.String())
	}
	if s.alertEmail == "" {
		if s.logg != nil {
			s.logg.Warn(ctx, "license flagged for multi-device use but no alert email is configured")
		}
		return
	}

	if len(devices) > s.cfg.AlertDeviceLimit {
		devices = devices[:s.cfg.AlertDeviceLimit]
	}
	rows := make([]mailer.AlertDevice, 0, len(devices))
	for _, d := range devices {
		row := mailer.AlertDevice{DeviceID: d.DeviceID, LastUsedAt: d.LastUsedAt}
		if d.DeviceModel != nil {
			row.DeviceName = *d.DeviceModel
		}
		rows = append(rows, row)
	}

	msg := mailer.MultiDeviceAlertEmail(s.alertEmail, license.LicenseKey, license.Email, license.CompanyName, count, rows)
	if err := s.mailer.Send(ctx, msg); err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "failed to send multi-device alert", err)
		}
		return
	}
	if s.logg != nil {
		s.logg.Info(ctx, "multi-device alert sent")
	}
}

func (s *service) ListDevices(ctx context.Context, licenseID uuid.UUID) ([]models.Device, error) {
	rows, err := s.repo.ListByLicense(ctx, licenseID, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list devices")
	}
	return rows, nil
}

func (s *service) ListActiveDevices(ctx context.Context, licenseID uuid.UUID) ([]models.Device, error) {
	rows, err := s.repo.ListByLicense(ctx, licenseID, true)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list devices")
	}
	return rows, nil
}

func (s *service) FindRegistrations(ctx context.Context, deviceID string) ([]models.Device, error) {
	rows, err := s.repo.FindByDeviceID(ctx, strings.TrimSpace(deviceID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup device")
	}
	return rows, nil
}

func (s *service) TouchDevice(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Touch(ctx, id, s.now()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update device")
	}
	return nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
