package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/wdir-license-backend/api/middleware"
	"github.com/angelmondragon/wdir-license-backend/api/responses"
	"github.com/angelmondragon/wdir-license-backend/api/validators"
	"github.com/angelmondragon/wdir-license-backend/internal/verification"
	"github.com/angelmondragon/wdir-license-backend/pkg/auth/session"
	pkgerrors "github.com/angelmondragon/wdir-license-backend/pkg/errors"
	"github.com/angelmondragon/wdir-license-backend/pkg/logger"
)

type adminSessions interface {
	Create(ctx context.Context, email string) (string, *session.Principal, error)
	Revoke(ctx context.Context, token string) error
}

type adminLoginRequest struct {
	Email string `json:"email" validate:"required,max=320"`
	Code  string `json:"code" validate:"omitempty,otp"`
}

type adminLoginResponse struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AdminLogin is a two-step endpoint: without a code it mails one to an
// allowlisted address, with a code it redeems it and opens a session.
func AdminLogin(verifier codeVerifier, policy verification.Policy, sessions adminSessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if verifier == nil || sessions == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin auth unavailable"))
			return
		}

		var body adminLoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if strings.TrimSpace(body.Code) == "" {
			if err := verifier.RequestCode(r.Context(), policy, body.Email); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, messageResponse{Message: codeSentMessage})
			return
		}

		if policy.Authorizer != nil {
			if err := policy.Authorizer.Authorize(r.Context(), verification.NormalizeEmail(body.Email)); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		redeemed, err := verifier.VerifyCode(r.Context(), policy, body.Email, body.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		token, principal, err := sessions.Create(r.Context(), redeemed.Email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create admin session"))
			return
		}

		if logg != nil {
			ctx := logg.WithField(r.Context(), "admin_session", principal.SessionID)
			logg.Info(ctx, "admin.login")
		}

		responses.WriteSuccess(w, adminLoginResponse{
			Token:     token,
			Email:     principal.Email,
			ExpiresAt: principal.ExpiresAt,
		})
	}
}

// AdminLogout revokes the session that authenticated the request.
func AdminLogout(sessions adminSessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessions == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin auth unavailable"))
			return
		}

		token := middleware.AdminTokenFromContext(r.Context())
		if token == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		if err := sessions.Revoke(r.Context(), token); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke admin session"))
			return
		}

		responses.WriteSuccess(w, messageResponse{Message: "logged out"})
	}
}
