package licenses

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/wdir-license-backend/internal/devices"
	"github.com/angelmondragon/wdir-license-backend/pkg/db"
	"github.com/angelmondragon/wdir-license-backend/pkg/db/models"
	"github.com/angelmondragon/wdir-license-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wdir-license-backend/pkg/errors"
	"github.com/angelmondragon/wdir-license-backend/pkg/logger"
	"github.com/angelmondragon/wdir-license-backend/pkg/mailer"
	"github.com/angelmondragon/wdir-license-backend/pkg/metrics"
	pkgpagination "github.com/angelmondragon/wdir-license-backend/pkg/pagination"
	"github.com/angelmondragon/wdir-license-backend/pkg/security"
	"github.com/google/uuid"
)

const (
	reasonDeactivated = "license has been deactivated or revoked"
	reasonExpired     = "license has expired"
)

// ErrKeyGenerationExhausted is returned when no unused license key was found
// within the attempt budget.
var ErrKeyGenerationExhausted = pkgerrors.New(pkgerrors.CodeInternal, "failed to generate unique license key")

type licensesRepository interface {
	Create(ctx context.Context, license *models.License) error
	ExistsByKey(ctx context.Context, key string) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.License, error)
	FindByKey(ctx context.Context, key string) (*models.License, error)
	FindByEmail(ctx context.Context, email string) (*models.License, error)
	FindByStripeSession(ctx context.Context, sessionID string) (*models.License, error)
	List(ctx context.Context, opts listQuery) ([]models.License, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	MarkValidated(ctx context.Context, id uuid.UUID, at time.Time, activate bool) error
}

type deviceEngine interface {
	BindDevice(ctx context.Context, license *models.License, info devices.DeviceInfo) (*models.Device, error)
	RecomputeMultiDeviceFlag(ctx context.Context, license *models.License) (*devices.FlagResult, error)
	ListActiveDevices(ctx context.Context, licenseID uuid.UUID) ([]models.Device, error)
	FindRegistrations(ctx context.Context, deviceID string) ([]models.Device, error)
	TouchDevice(ctx context.Context, id uuid.UUID) error
}

// Service exposes license provisioning, administration and the client
// activation/validation surface.
type Service interface {
	CreateLicense(ctx context.Context, input CreateLicenseInput) (*models.License, error)
	ProvisionFromPayment(ctx context.Context, payment PaymentConfirmation) (*ProvisionResult, error)
	ListLicenses(ctx context.Context, params ListParams) (*ListResult, error)
	GetLicense(ctx context.Context, id uuid.UUID) (*models.License, error)
	UpdateLicense(ctx context.Context, id uuid.UUID, input UpdateLicenseInput) (*models.License, error)
	Activate(ctx context.Context, licenseKey string, device *devices.DeviceInfo) (*models.License, error)
	Validate(ctx context.Context, licenseKey string) (*ValidationResult, error)
	Refresh(ctx context.Context, email, deviceID string) (*Summary, error)
	ConfirmDeviceActivation(ctx context.Context, email string, device *devices.DeviceInfo) (*DeviceActivation, error)
	ConfirmAppLogin(ctx context.Context, email, deviceID string) (*Summary, error)
}

// CreateLicenseInput holds the fields an administrator supplies.
type CreateLicenseInput struct {
	Email                string
	CompanyName          string
	CompanyPhone         string
	CompanyLicenseNumber string
	InspectorName        string
	InspectorLicense     string
	LicenseType          string
	ExpiresAt            *time.Time
	AdminNotes           string
}

// PaymentConfirmation is the checkout data a completed payment carries.
type PaymentConfirmation struct {
	SessionID            string
	PaymentIntentID      string
	CustomerID           string
	Email                string
	CompanyName          string
	CompanyPhone         string
	CompanyLicenseNumber string
	InspectorName        string
	InspectorLicense     string
}

type ProvisionResult struct {
	License *models.License
	Created bool
}

// UpdateLicenseInput carries the administrator-editable fields. Nil fields
// are left untouched; ClearExpiry removes an expiry.
type UpdateLicenseInput struct {
	IsActive    *bool
	AdminNotes  *string
	ExpiresAt   *time.Time
	ClearExpiry bool
}

type ValidationResult struct {
	IsActive  bool       `json:"is_active"`
	ExpiresAt *time.Time `json:"expires_at"`
	Reason    string     `json:"reason,omitempty"`
}

// Summary is the license view the app shows after sign-in.
type Summary struct {
	LicenseKey           string  `json:"license_key"`
	CompanyName          string  `json:"company_name"`
	CompanyLicenseNumber *string `json:"company_license_number"`
	InspectorName        string  `json:"inspector_name"`
	InspectorLicense     string  `json:"inspector_license"`
}

type DeviceActivation struct {
	License *models.License
	Devices []models.Device
}

// ServiceParams groups the license service dependencies.
type ServiceParams struct {
	Repo        licensesRepository
	Devices     deviceEngine
	Mailer      mailer.Dispatcher
	KeyAttempts int
	Metrics     *metrics.LicensingMetrics
	Logger      *logger.Logger
	NewKey      func() (string, error)
	Now         func() time.Time
}

type service struct {
	repo        licensesRepository
	devices     deviceEngine
	mailer      mailer.Dispatcher
	keyAttempts int
	metrics     *metrics.LicensingMetrics
	logg        *logger.Logger
	newKey      func() (string, error)
	now         func() time.Time
}

// NewService builds a license service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("license repository required")
	}
	if params.Devices == nil {
		return nil, fmt.Errorf("device engine required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	attempts := params.KeyAttempts
	if attempts <= 0 {
		attempts = 10
	}
	newKey := params.NewKey
	if newKey == nil {
		newKey = security.GenerateLicenseKey
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:        params.Repo,
		devices:     params.Devices,
		mailer:      params.Mailer,
		keyAttempts: attempts,
		metrics:     params.Metrics,
		logg:        params.Logger,
		newKey:      newKey,
		now:         func() time.Time { return now().UTC() },
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func missingFields(fields map[string]string, order ...string) []string {
	var missing []string
	for _, name := range order {
		if strings.TrimSpace(fields[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

func (s *service) CreateLicense(ctx context.Context, input CreateLicenseInput) (*models.License, error) {
	missing := missingFields(map[string]string{
		"email":             input.Email,
		"company_name":      input.CompanyName,
		"inspector_name":    input.InspectorName,
		"inspector_license": input.InspectorLicense,
	}, "email", "company_name", "inspector_name", "inspector_license")
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "missing required fields").
			WithDetails(map[string]any{"missing": missing})
	}
	licenseType, err := enums.ParseLicenseType(input.LicenseType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid license_type")
	}

	now := s.now()
	license := &models.License{
		Email:                normalizeEmail(input.Email),
		CompanyName:          strings.TrimSpace(input.CompanyName),
		CompanyPhone:         optional(input.CompanyPhone),
		CompanyLicenseNumber: optional(input.CompanyLicenseNumber),
		InspectorName:        strings.TrimSpace(input.InspectorName),
		InspectorLicense:     strings.TrimSpace(input.InspectorLicense),
		LicenseType:          licenseType,
		IsActive:             true,
		ExpiresAt:            input.ExpiresAt,
		AdminNotes:           optional(input.AdminNotes),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.insertWithUniqueKey(ctx, license); err != nil {
		return nil, asServiceError(err, "create license")
	}

	s.metrics.LicenseProvisioned(enums.ProvisionSourceAdmin.String())
	s.sendWelcome(ctx, license)
	return license, nil
}

func (s *service) ProvisionFromPayment(ctx context.Context, payment PaymentConfirmation) (*ProvisionResult, error) {
	sessionID := strings.TrimSpace(payment.SessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id is required")
	}

	existing, err := s.repo.FindByStripeSession(ctx, sessionID)
	if err == nil {
		return &ProvisionResult{License: existing, Created: false}, nil
	}
	if !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup license by checkout session")
	}

	missing := missingFields(map[string]string{
		"email":             payment.Email,
		"company_name":      payment.CompanyName,
		"inspector_name":    payment.InspectorName,
		"inspector_license": payment.InspectorLicense,
	}, "email", "company_name", "inspector_name", "inspector_license")
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout metadata incomplete").
			WithDetails(map[string]any{"missing": missing})
	}

	now := s.now()
	license := &models.License{
		Email:                 normalizeEmail(payment.Email),
		CompanyName:           strings.TrimSpace(payment.CompanyName),
		CompanyPhone:          optional(payment.CompanyPhone),
		CompanyLicenseNumber:  optional(payment.CompanyLicenseNumber),
		InspectorName:         strings.TrimSpace(payment.InspectorName),
		InspectorLicense:      strings.TrimSpace(payment.InspectorLicense),
		LicenseType:           enums.LicenseTypeIndividual,
		IsActive:              true,
		StripeSessionID:       &sessionID,
		StripePaymentIntentID: optional(payment.PaymentIntentID),
		StripeCustomerID:      optional(payment.CustomerID),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.insertWithUniqueKey(ctx, license); err != nil {
		if db.IsUniqueViolation(err, models.LicenseStripeSessionUnique) {
			existing, findErr := s.repo.FindByStripeSession(ctx, sessionID)
			if findErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload provisioned license")
			}
			return &ProvisionResult{License: existing, Created: false}, nil
		}
		return nil, asServiceError(err, "create license")
	}

	s.metrics.LicenseProvisioned(enums.ProvisionSourcePayment.String())
	s.sendWelcome(ctx, license)
	return &ProvisionResult{License: license, Created: true}, nil
}

// insertWithUniqueKey assigns a fresh key and inserts the license, retrying
// key collisions within the attempt budget. Other unique violations are
// returned raw so callers can tell which constraint fired.
func (s *service) insertWithUniqueKey(ctx context.Context, license *models.License) error {
	for attempt := 0; attempt < s.keyAttempts; attempt++ {
		key, err := s.newKey()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate license key")
		}
		exists, err := s.repo.ExistsByKey(ctx, key)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check license key")
		}
		if exists {
			continue
		}

		license.LicenseKey = key
		err = s.repo.Create(ctx, license)
		if err == nil {
			return nil
		}
		if db.IsUniqueViolation(err, models.LicenseKeyUnique) {
			continue
		}
		if db.IsUniqueViolation(err, db.UniqueConstraint{}) {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create license")
	}
	return ErrKeyGenerationExhausted
}

func asServiceError(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	if db.IsUniqueViolation(err, db.UniqueConstraint{}) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func (s *service) sendWelcome(ctx context.Context, license *models.License) {
	if s.logg != nil {
		ctx = s.logg.WithLicenseID(ctx, license.ID.String())
	}
	msg := mailer.LicenseWelcomeEmail(license.Email, license.InspectorName, license.CompanyName, license.LicenseKey)
	if err := s.mailer.Send(ctx, msg); err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "failed to send license welcome email", err)
		}
		return
	}
	if s.logg != nil {
		s.logg.Info(ctx, "license issued")
	}
}

func (s *service) ListLicenses(ctx context.Context, params ListParams) (*ListResult, error) {
	cursor, err := pkgpagination.Decode(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pkgpagination.Clamp(params.Limit)

	rows, err := s.repo.List(ctx, listQuery{
		limit:       limit + 1,
		cursor:      cursor,
		search:      normalizeSearch(params.Search),
		flaggedOnly: params.FlaggedOnly,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list licenses")
	}

	result := &ListResult{}
	result.Items, result.Cursor = pkgpagination.Page(rows, limit, func(l models.License) pkgpagination.Cursor {
		return pkgpagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})
	if result.Items == nil {
		result.Items = []models.License{}
	}
	return result, nil
}

func (s *service) GetLicense(ctx context.Context, id uuid.UUID) (*models.License, error) {
	license, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "license not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load license")
	}
	return license, nil
}

func (s *service) UpdateLicense(ctx context.Context, id uuid.UUID, input UpdateLicenseInput) (*models.License, error) {
	updates := map[string]any{}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if input.AdminNotes != nil {
		updates["admin_notes"] = optional(*input.AdminNotes)
	}
	switch {
	case input.ClearExpiry:
		updates["expires_at"] = nil
	case input.ExpiresAt != nil:
		updates["expires_at"] = input.ExpiresAt.UTC()
	}
	if len(updates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no fields to update")
	}
	updates["updated_at"] = s.now()

	if err := s.repo.Update(ctx, id, updates); err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "license not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update license")
	}
	return s.GetLicense(ctx, id)
}

func (s *service) findByKey(ctx context.Context, licenseKey string) (*models.License, error) {
	key := security.NormalizeLicenseKey(licenseKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "license_key is required")
	}
	license, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invalid license key")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup license")
	}
	return license, nil
}

func (s *service) Activate(ctx context.Context, licenseKey string, device *devices.DeviceInfo) (*models.License, error) {
	license, err := s.findByKey(ctx, licenseKey)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !license.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "license has been deactivated")
	}
	if license.IsExpired(now) {
		return nil, pkgerrors.New(pkgerrors.CodeExpired, reasonExpired)
	}

	if err := s.repo.MarkValidated(ctx, license.ID, now, true); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "activate license")
	}
	if device != nil && strings.TrimSpace(device.DeviceID) != "" {
		if err := s.bindAndRecompute(ctx, license, *device); err != nil {
			return nil, err
		}
	}
	return s.GetLicense(ctx, license.ID)
}

func (s *service) Validate(ctx context.Context, licenseKey string) (*ValidationResult, error) {
	license, err := s.findByKey(ctx, licenseKey)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !license.IsActive {
		return &ValidationResult{IsActive: false, ExpiresAt: license.ExpiresAt, Reason: reasonDeactivated}, nil
	}
	if license.IsExpired(now) {
		return &ValidationResult{IsActive: false, ExpiresAt: license.ExpiresAt, Reason: reasonExpired}, nil
	}
	if err := s.repo.MarkValidated(ctx, license.ID, now, false); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp license validation")
	}
	return &ValidationResult{IsActive: true, ExpiresAt: license.ExpiresAt}, nil
}

func (s *service) Refresh(ctx context.Context, email, deviceID string) (*Summary, error) {
	email = normalizeEmail(email)
	deviceID = strings.TrimSpace(deviceID)
	if email == "" || deviceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and device_id are required")
	}

	registrations, err := s.devices.FindRegistrations(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if len(registrations) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "device not registered")
	}

	for _, reg := range registrations {
		license, err := s.repo.FindByID(ctx, reg.LicenseID)
		if err != nil {
			if db.IsNotFound(err) {
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load license")
		}
		if !license.IsActive || normalizeEmail(license.Email) != email {
			continue
		}
		if err := s.devices.TouchDevice(ctx, reg.ID); err != nil {
			return nil, err
		}
		return summarize(license), nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active license found")
}

// ConfirmDeviceActivation finishes a device activation sign-in once the code
// has been redeemed.
func (s *service) ConfirmDeviceActivation(ctx context.Context, email string, device *devices.DeviceInfo) (*DeviceActivation, error) {
	license, err := s.activeLicenseForEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if device != nil && strings.TrimSpace(device.DeviceID) != "" {
		if _, err := s.devices.BindDevice(ctx, license, *device); err != nil {
			return nil, err
		}
	}
	if _, err := s.devices.RecomputeMultiDeviceFlag(ctx, license); err != nil {
		return nil, err
	}
	active, err := s.devices.ListActiveDevices(ctx, license.ID)
	if err != nil {
		return nil, err
	}
	return &DeviceActivation{License: license, Devices: active}, nil
}

// ConfirmAppLogin finishes an app sign-in once the code has been redeemed.
func (s *service) ConfirmAppLogin(ctx context.Context, email, deviceID string) (*Summary, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "device_id is required")
	}
	license, err := s.activeLicenseForEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.bindAndRecompute(ctx, license, devices.DeviceInfo{DeviceID: deviceID}); err != nil {
		return nil, err
	}
	return summarize(license), nil
}

func (s *service) activeLicenseForEmail(ctx context.Context, email string) (*models.License, error) {
	license, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "license not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup license")
	}
	if !license.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "license is not active")
	}
	return license, nil
}

func (s *service) bindAndRecompute(ctx context.Context, license *models.License, device devices.DeviceInfo) error {
	if _, err := s.devices.BindDevice(ctx, license, device); err != nil {
		return err
	}
	_, err := s.devices.RecomputeMultiDeviceFlag(ctx, license)
	return err
}

func summarize(license *models.License) *Summary {
	return &Summary{
		LicenseKey:           license.LicenseKey,
		CompanyName:          license.CompanyName,
		CompanyLicenseNumber: license.CompanyLicenseNumber,
		InspectorName:        license.InspectorName,
		InspectorLicense:     license.InspectorLicense,
	}
}
