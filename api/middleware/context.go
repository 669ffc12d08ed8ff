package middleware

import (
	"context"

	"github.com/angelmondragon/wdir-license-backend/pkg/auth/session"
)

type contextKey string

const (
	ctxAdmin contextKey = "admin_principal"
	ctxToken contextKey = "admin_token"
)

// AdminFromContext returns the admin principal resolved by AdminAuth.
func AdminFromContext(ctx context.Context) *session.Principal {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxAdmin).(*session.Principal); ok {
		return v
	}
	return nil
}

// AdminTokenFromContext returns the raw bearer token that authenticated the request.
func AdminTokenFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxToken).(string); ok {
		return v
	}
	return ""
}

// WithAdmin injects the principal and its token into the context.
func WithAdmin(ctx context.Context, principal *session.Principal, token string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxAdmin, principal)
	return context.WithValue(ctx, ctxToken, token)
}
