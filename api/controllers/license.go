package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/wdir-license-backend/api/responses"
	"github.com/angelmondragon/wdir-license-backend/api/validators"
	"github.com/angelmondragon/wdir-license-backend/internal/devices"
	"github.com/angelmondragon/wdir-license-backend/internal/licenses"
	"github.com/angelmondragon/wdir-license-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/wdir-license-backend/pkg/errors"
	"github.com/angelmondragon/wdir-license-backend/pkg/logger"
)

type licenseClient interface {
	Activate(ctx context.Context, licenseKey string, device *devices.DeviceInfo) (*models.License, error)
	Validate(ctx context.Context, licenseKey string) (*licenses.ValidationResult, error)
	Refresh(ctx context.Context, email, deviceID string) (*licenses.Summary, error)
}

type licenseActivateRequest struct {
	LicenseKey string             `json:"license_key" validate:"required,license_key"`
	DeviceInfo *deviceInfoRequest `json:"device_info"`
}

// LicenseActivate activates a license key from the app, optionally binding
// the reporting device.
func LicenseActivate(svc licenseClient, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		var body licenseActivateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		license, err := svc.Activate(r.Context(), body.LicenseKey, body.DeviceInfo.toInfo())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, licenseResponseFromModel(license))
	}
}

type licenseValidateRequest struct {
	LicenseKey string `json:"license_key" validate:"required,max=64"`
}

// LicenseValidate reports whether a key is currently usable. Inactive and
// expired licenses are a 200 with is_active=false.
func LicenseValidate(svc licenseClient, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		var body licenseValidateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Validate(r.Context(), body.LicenseKey)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

type licenseRefreshRequest struct {
	Email    string `json:"email" validate:"required,max=320"`
	DeviceID string `json:"device_id" validate:"required,max=255"`
}

// LicenseRefresh re-reads the license display fields for a registered device.
func LicenseRefresh(svc licenseClient, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		var body licenseRefreshRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.Refresh(r.Context(), body.Email, body.DeviceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, summary)
	}
}
