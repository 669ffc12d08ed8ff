package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/wdir-license-backend/api/responses"
	"github.com/angelmondragon/wdir-license-backend/pkg/auth/session"
	"github.com/angelmondragon/wdir-license-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/wdir-license-backend/pkg/errors"
	"github.com/angelmondragon/wdir-license-backend/pkg/logger"
)

// AdminAuth validates the bearer session token and checks that the session
// owner is still on the admin allowlist.
func AdminAuth(verifier session.Verifier, admins config.AdminConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			principal, err := verifier.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, session.ErrInvalidSession) {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid or expired session"))
					return
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session"))
				return
			}

			if !admins.IsAdmin(principal.Email) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin access revoked"))
				return
			}

			ctx := WithAdmin(r.Context(), principal, token)
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"admin_session": principal.SessionID,
					"admin_hash":    logger.HashEmail(principal.Email),
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from the Authorization header. A bare token
// without the scheme is accepted.
func BearerToken(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}
