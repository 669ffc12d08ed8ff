package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/wdir-license-backend/api/responses"
	"github.com/angelmondragon/wdir-license-backend/api/validators"
	"github.com/angelmondragon/wdir-license-backend/internal/licenses"
	"github.com/angelmondragon/wdir-license-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/wdir-license-backend/pkg/errors"
	"github.com/angelmondragon/wdir-license-backend/pkg/logger"
	"github.com/angelmondragon/wdir-license-backend/pkg/pagination"
)

const maxNotesLen = 4000

type licenseAdmin interface {
	CreateLicense(ctx context.Context, input licenses.CreateLicenseInput) (*models.License, error)
	ListLicenses(ctx context.Context, params licenses.ListParams) (*licenses.ListResult, error)
	GetLicense(ctx context.Context, id uuid.UUID) (*models.License, error)
	UpdateLicense(ctx context.Context, id uuid.UUID, input licenses.UpdateLicenseInput) (*models.License, error)
}

type deviceLister interface {
	ListDevices(ctx context.Context, licenseID uuid.UUID) ([]models.Device, error)
}

type usageLister interface {
	ListUsage(ctx context.Context, licenseID uuid.UUID) ([]models.UsageStat, error)
}

type licenseListResponse struct {
	Items      []adminLicenseResponse `json:"items"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

// AdminLicenseList returns licenses newest first with cursor pagination.
func AdminLicenseList(svc licenseAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		flaggedOnly, err := validators.ParseQueryBool(r, "flagged", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := r.URL.Query()

		result, err := svc.ListLicenses(r.Context(), licenses.ListParams{
			Params: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(query.Get("cursor")),
			},
			Search:      validators.SanitizeString(query.Get("search"), 255),
			FlaggedOnly: flaggedOnly,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]adminLicenseResponse, 0, len(result.Items))
		for i := range result.Items {
			items = append(items, adminLicenseResponseFromModel(&result.Items[i]))
		}
		responses.WriteSuccess(w, licenseListResponse{Items: items, NextCursor: result.Cursor})
	}
}

type licenseCreateRequest struct {
	Email                string     `json:"email" validate:"required,max=320"`
	CompanyName          string     `json:"company_name" validate:"required,max=255"`
	CompanyPhone         string     `json:"company_phone" validate:"max=50"`
	CompanyLicenseNumber string     `json:"company_license_number" validate:"max=100"`
	InspectorName        string     `json:"inspector_name" validate:"required,max=255"`
	InspectorLicense     string     `json:"inspector_license" validate:"required,max=100"`
	LicenseType          string     `json:"license_type" validate:"omitempty,oneof=individual team"`
	ExpiresAt            *time.Time `json:"expires_at"`
	AdminNotes           string     `json:"admin_notes"`
}

func (r licenseCreateRequest) toInput() licenses.CreateLicenseInput {
	return licenses.CreateLicenseInput{
		Email:                r.Email,
		CompanyName:          r.CompanyName,
		CompanyPhone:         r.CompanyPhone,
		CompanyLicenseNumber: r.CompanyLicenseNumber,
		InspectorName:        r.InspectorName,
		InspectorLicense:     r.InspectorLicense,
		LicenseType:          r.LicenseType,
		ExpiresAt:            r.ExpiresAt,
		AdminNotes:           validators.SanitizeString(r.AdminNotes, maxNotesLen),
	}
}

// AdminLicenseCreate issues a license by hand.
func AdminLicenseCreate(svc licenseAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		var payload licenseCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.CreateLicense(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, adminLicenseResponseFromModel(created))
	}
}

// AdminLicenseGet returns one license.
func AdminLicenseGet(svc licenseAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		id, err := licenseIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		license, err := svc.GetLicense(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, adminLicenseResponseFromModel(license))
	}
}

type licenseUpdateRequest struct {
	IsActive    *bool      `json:"is_active"`
	AdminNotes  *string    `json:"admin_notes"`
	ExpiresAt   *time.Time `json:"expires_at"`
	ClearExpiry bool       `json:"clear_expiry"`
}

// AdminLicenseUpdate changes activation state, notes or expiry.
func AdminLicenseUpdate(svc licenseAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "license service unavailable"))
			return
		}

		id, err := licenseIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload licenseUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := licenses.UpdateLicenseInput{
			IsActive:    payload.IsActive,
			ExpiresAt:   payload.ExpiresAt,
			ClearExpiry: payload.ClearExpiry,
		}
		if payload.AdminNotes != nil {
			notes := validators.SanitizeString(*payload.AdminNotes, maxNotesLen)
			input.AdminNotes = &notes
		}

		updated, err := svc.UpdateLicense(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithLicenseID(r.Context(), id.String()), "admin.license.updated")
		}
		responses.WriteSuccess(w, adminLicenseResponseFromModel(updated))
	}
}

// AdminLicenseDevices lists every device bound to a license.
func AdminLicenseDevices(svc deviceLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "device service unavailable"))
			return
		}

		id, err := licenseIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.ListDevices(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, deviceResponsesFromModels(items))
	}
}

// AdminLicenseUsage lists the most recent usage periods for a license.
func AdminLicenseUsage(svc usageLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "usage service unavailable"))
			return
		}

		id, err := licenseIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stats, err := svc.ListUsage(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]usageResponse, 0, len(stats))
		for i := range stats {
			out = append(out, usageResponseFromModel(&stats[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func licenseIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "licenseID"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid license id")
	}
	return id, nil
}
