package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/wdir-license-backend/api/responses"
	"github.com/angelmondragon/wdir-license-backend/api/validators"
	"github.com/angelmondragon/wdir-license-backend/internal/devices"
	"github.com/angelmondragon/wdir-license-backend/internal/licenses"
	"github.com/angelmondragon/wdir-license-backend/internal/verification"
	"github.com/angelmondragon/wdir-license-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/wdir-license-backend/pkg/errors"
	"github.com/angelmondragon/wdir-license-backend/pkg/logger"
)

const codeSentMessage = "verification code sent to your email"

type codeVerifier interface {
	RequestCode(ctx context.Context, policy verification.Policy, email string) error
	VerifyCode(ctx context.Context, policy verification.Policy, email, code string) (*models.VerificationCode, error)
}

type deviceActivator interface {
	ConfirmDeviceActivation(ctx context.Context, email string, device *devices.DeviceInfo) (*licenses.DeviceActivation, error)
}

type appLoginConfirmer interface {
	ConfirmAppLogin(ctx context.Context, email, deviceID string) (*licenses.Summary, error)
}

type requestCodeRequest struct {
	Email string `json:"email" validate:"required,max=320"`
}

// RequestCode issues a one-time code under the given policy.
func RequestCode(verifier codeVerifier, policy verification.Policy, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if verifier == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "verification service unavailable"))
			return
		}

		var body requestCodeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := verifier.RequestCode(r.Context(), policy, body.Email); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, messageResponse{Message: codeSentMessage})
	}
}

type deviceVerifyRequest struct {
	Email      string             `json:"email" validate:"required,max=320"`
	Code       string             `json:"code" validate:"required,otp"`
	DeviceInfo *deviceInfoRequest `json:"device_info"`
}

type deviceActivationResponse struct {
	License licenseResponse  `json:"license"`
	Devices []deviceResponse `json:"devices"`
}

// DeviceVerifyCode redeems a device activation code, binds the reporting
// device and returns the license with its active devices.
func DeviceVerifyCode(verifier codeVerifier, policy verification.Policy, svc deviceActivator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if verifier == nil || svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "verification service unavailable"))
			return
		}

		var body deviceVerifyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if _, err := verifier.VerifyCode(r.Context(), policy, body.Email, body.Code); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ConfirmDeviceActivation(r.Context(), body.Email, body.DeviceInfo.toInfo())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, deviceActivationResponse{
			License: licenseResponseFromModel(result.License),
			Devices: deviceResponsesFromModels(result.Devices),
		})
	}
}

type appVerifyRequest struct {
	Email    string `json:"email" validate:"required,max=320"`
	Code     string `json:"code" validate:"required,otp"`
	DeviceID string `json:"device_id" validate:"required,max=255"`
}

// AppVerifyCode redeems an app login code and returns the license display
// fields the app keeps locally.
func AppVerifyCode(verifier codeVerifier, policy verification.Policy, svc appLoginConfirmer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if verifier == nil || svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "verification service unavailable"))
			return
		}

		var body appVerifyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if _, err := verifier.VerifyCode(r.Context(), policy, body.Email, body.Code); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.ConfirmAppLogin(r.Context(), body.Email, body.DeviceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, summary)
	}
}
