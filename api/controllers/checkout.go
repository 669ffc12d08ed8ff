package controllers

import (
	"net/http"

	"github.com/angelmondragon/wdir-license-backend/api/responses"
	"github.com/angelmondragon/wdir-license-backend/api/validators"
	"github.com/angelmondragon/wdir-license-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/wdir-license-backend/pkg/errors"
	"github.com/angelmondragon/wdir-license-backend/pkg/logger"
)

type checkoutCreateRequest struct {
	Email                string `json:"email" validate:"required,email,max=320"`
	CompanyName          string `json:"company_name" validate:"required,max=255"`
	CompanyPhone         string `json:"company_phone" validate:"max=50"`
	CompanyLicenseNumber string `json:"company_license_number" validate:"max=100"`
	InspectorName        string `json:"inspector_name" validate:"required,max=255"`
	InspectorLicense     string `json:"inspector_license" validate:"required,max=100"`
}

// CheckoutCreateSession opens a hosted payment page for a new license.
func CheckoutCreateSession(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout unavailable"))
			return
		}

		var body checkoutCreateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sess, err := svc.CreateSession(r.Context(), checkout.PurchaseInput{
			Email:                body.Email,
			CompanyName:          body.CompanyName,
			CompanyPhone:         body.CompanyPhone,
			CompanyLicenseNumber: body.CompanyLicenseNumber,
			InspectorName:        body.InspectorName,
			InspectorLicense:     body.InspectorLicense,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, sess)
	}
}

// CheckoutSessionSummary backs the purchase confirmation page.
func CheckoutSessionSummary(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout unavailable"))
			return
		}

		summary, err := svc.GetSummary(r.Context(), r.URL.Query().Get("session_id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, summary)
	}
}
