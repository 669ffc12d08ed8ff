package verification

import (
	"context"

	"github.com/angelmondragon/wdir-license-backend/pkg/config"
	"github.com/angelmondragon/wdir-license-backend/pkg/db"
	"github.com/angelmondragon/wdir-license-backend/pkg/db/models"
	"github.com/angelmondragon/wdir-license-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wdir-license-backend/pkg/errors"
)

// Authorizer decides whether an email may receive a code for a policy.
type Authorizer interface {
	Authorize(ctx context.Context, email string) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, email string) error

func (f AuthorizerFunc) Authorize(ctx context.Context, email string) error {
	return f(ctx, email)
}

// Policy selects the flow a code belongs to and how failed attempts count.
//
// Codes for policies that track attempts charge every miss to all outstanding
// codes for the email; a matched code whose attempts reached MaxAttempts is
// refused even when correct. MaxAttempts of zero disables the cap. The
// Authorizer runs both when a code is issued and before one is consumed.
type Policy struct {
	Flow          enums.VerificationFlow
	TrackAttempts bool
	MaxAttempts   int
	Authorizer    Authorizer
}

type licenseLookup interface {
	FindByEmail(ctx context.Context, email string) (*models.License, error)
}

// AdminLoginPolicy issues console login codes to allowlisted addresses.
func AdminLoginPolicy(admin config.AdminConfig, maxAttempts int) Policy {
	return Policy{
		Flow:        enums.VerificationFlowAdminLogin,
		MaxAttempts: maxAttempts,
		Authorizer: AuthorizerFunc(func(_ context.Context, email string) error {
			if !admin.IsAdmin(email) {
				return pkgerrors.New(pkgerrors.CodeUnauthorized, "email is not authorized for admin access")
			}
			return nil
		}),
	}
}

// AppLoginPolicy issues app sign-in codes to holders of an active license.
func AppLoginPolicy(licenses licenseLookup, maxAttempts int) Policy {
	return Policy{
		Flow:        enums.VerificationFlowAppLogin,
		MaxAttempts: maxAttempts,
		Authorizer:  activeLicenseAuthorizer(licenses),
	}
}

// DeviceActivationPolicy issues device activation codes to holders of an
// active license and counts failed attempts.
func DeviceActivationPolicy(licenses licenseLookup, maxAttempts int) Policy {
	return Policy{
		Flow:          enums.VerificationFlowDeviceActivation,
		TrackAttempts: true,
		MaxAttempts:   maxAttempts,
		Authorizer:    activeLicenseAuthorizer(licenses),
	}
}

func activeLicenseAuthorizer(licenses licenseLookup) Authorizer {
	return AuthorizerFunc(func(ctx context.Context, email string) error {
		license, err := licenses.FindByEmail(ctx, email)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "no license found for this email")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup license")
		}
		if !license.IsActive {
			return pkgerrors.New(pkgerrors.CodeForbidden, "license is not active")
		}
		return nil
	})
}

func (p Policy) attemptsExhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}
