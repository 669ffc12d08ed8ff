package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/wdir-license-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/wdir-license-backend/api/controllers/webhooks"
	"github.com/angelmondragon/wdir-license-backend/api/middleware"
	"github.com/angelmondragon/wdir-license-backend/internal/checkout"
	"github.com/angelmondragon/wdir-license-backend/internal/devices"
	"github.com/angelmondragon/wdir-license-backend/internal/licenses"
	"github.com/angelmondragon/wdir-license-backend/internal/usage"
	"github.com/angelmondragon/wdir-license-backend/internal/verification"
	"github.com/angelmondragon/wdir-license-backend/pkg/auth/session"
	"github.com/angelmondragon/wdir-license-backend/pkg/config"
	"github.com/angelmondragon/wdir-license-backend/pkg/db/models"
	"github.com/angelmondragon/wdir-license-backend/pkg/logger"
	"github.com/angelmondragon/wdir-license-backend/pkg/metrics"
	"github.com/angelmondragon/wdir-license-backend/pkg/redis"
)

type sessionManager interface {
	session.Verifier
	Create(ctx context.Context, email string) (string, *session.Principal, error)
	Revoke(ctx context.Context, token string) error
}

type licenseLookup interface {
	FindByEmail(ctx context.Context, email string) (*models.License, error)
}

type signingSecretProvider interface {
	SigningSecret() string
}

// Dependencies carries everything the HTTP surface is wired to.
type Dependencies struct {
	DB           controllers.Pinger
	Redis        controllers.Pinger
	RateLimiter  redis.RateLimiter
	Sessions     sessionManager
	Verification verification.Service
	Licenses     licenses.Service
	LicenseIndex licenseLookup
	Devices      devices.Service
	Usage        usage.Service
	Checkout     checkout.Service

	StripeWebhook webhookcontrollers.StripeWebhookService
	StripeGuard   webhookcontrollers.StripeEventGuard
	StripeClient  signingSecretProvider

	Metrics  *metrics.LicensingMetrics
	Gatherer prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.Metrics),
		middleware.CORS(cfg.App.BaseURL),
	)

	codePolicy := middleware.NewRateLimitPolicy("code", cfg.AuthRateLimit.CodeWindow, cfg.AuthRateLimit.CodeIPLimit)
	adminPolicy := middleware.NewRateLimitPolicy("admin_login", cfg.AuthRateLimit.CodeWindow, cfg.AuthRateLimit.CodeIPLimit)
	codeLimit := middleware.RateLimit(codePolicy, deps.RateLimiter, logg)

	devicePolicy := verification.DeviceActivationPolicy(deps.LicenseIndex, cfg.Verification.DeviceMaxAttempts)
	appPolicy := verification.AppLoginPolicy(deps.LicenseIndex, cfg.Verification.AppLoginMaxAttempts)
	adminLoginPolicy := verification.AdminLoginPolicy(cfg.Admin, cfg.Verification.AdminMaxAttempts)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(codeLimit)
		r.Post("/request-code", controllers.RequestCode(deps.Verification, devicePolicy, logg))
		r.Post("/verify-code", controllers.DeviceVerifyCode(deps.Verification, devicePolicy, deps.Licenses, logg))
	})

	r.Route("/api/verify", func(r chi.Router) {
		r.Use(codeLimit)
		r.Post("/request", controllers.RequestCode(deps.Verification, appPolicy, logg))
		r.Post("/confirm", controllers.AppVerifyCode(deps.Verification, appPolicy, deps.Licenses, logg))
	})

	r.Route("/api/license", func(r chi.Router) {
		r.Post("/activate", controllers.LicenseActivate(deps.Licenses, logg))
		r.Post("/validate", controllers.LicenseValidate(deps.Licenses, logg))
		r.Post("/refresh", controllers.LicenseRefresh(deps.Licenses, logg))
	})

	r.Post("/api/usage/report", controllers.UsageReport(deps.Usage, logg))

	r.Route("/api/checkout", func(r chi.Router) {
		r.Post("/create-session", controllers.CheckoutCreateSession(deps.Checkout, logg))
		r.Get("/session", controllers.CheckoutSessionSummary(deps.Checkout, logg))
	})

	r.Route("/api/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.StripeClient, deps.StripeGuard, logg))
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.With(middleware.RateLimit(adminPolicy, deps.RateLimiter, logg)).
			Post("/auth/login", controllers.AdminLogin(deps.Verification, adminLoginPolicy, deps.Sessions, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminAuth(deps.Sessions, cfg.Admin, logg))
			r.Post("/auth/logout", controllers.AdminLogout(deps.Sessions, logg))

			r.Route("/licenses", func(r chi.Router) {
				r.Get("/", controllers.AdminLicenseList(deps.Licenses, logg))
				r.Post("/", controllers.AdminLicenseCreate(deps.Licenses, logg))
				r.Get("/{licenseID}", controllers.AdminLicenseGet(deps.Licenses, logg))
				r.Patch("/{licenseID}", controllers.AdminLicenseUpdate(deps.Licenses, logg))
				r.Get("/{licenseID}/devices", controllers.AdminLicenseDevices(deps.Devices, logg))
				r.Get("/{licenseID}/usage", controllers.AdminLicenseUsage(deps.Usage, logg))
			})
		})
	})

	return r
}
