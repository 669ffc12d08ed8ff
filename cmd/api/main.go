package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/wdir-license-backend/api"
	"github.com/angelmondragon/wdir-license-backend/api/routes"
	"github.com/angelmondragon/wdir-license-backend/internal/checkout"
	"github.com/angelmondragon/wdir-license-backend/internal/devices"
	"github.com/angelmondragon/wdir-license-backend/internal/licenses"
	"github.com/angelmondragon/wdir-license-backend/internal/usage"
	"github.com/angelmondragon/wdir-license-backend/internal/verification"
	stripewebhook "github.com/angelmondragon/wdir-license-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/wdir-license-backend/pkg/auth/session"
	"github.com/angelmondragon/wdir-license-backend/pkg/config"
	"github.com/angelmondragon/wdir-license-backend/pkg/db"
	"github.com/angelmondragon/wdir-license-backend/pkg/logger"
	"github.com/angelmondragon/wdir-license-backend/pkg/mailer"
	"github.com/angelmondragon/wdir-license-backend/pkg/metrics"
	"github.com/angelmondragon/wdir-license-backend/pkg/migrate"
	"github.com/angelmondragon/wdir-license-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/wdir-license-backend/pkg/stripe"
)

const (
	shutdownTimeout   = 15 * time.Second
	webhookGuardScope = "stripe-webhook"
	serviceName       = "api"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	licensingMetrics := metrics.NewLicensingMetrics(registry)

	dispatcher, err := mailer.New(cfg.Sendgrid, cfg.App, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create mailer", err)
		os.Exit(1)
	}

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	licenseRepo := licenses.NewRepository(dbClient.DB())

	verificationService, err := verification.NewService(verification.ServiceParams{
		Repo:    verification.NewRepository(dbClient.DB()),
		Mailer:  dispatcher,
		Config:  cfg.Verification,
		Metrics: licensingMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create verification service", err)
		os.Exit(1)
	}

	deviceService, err := devices.NewService(devices.ServiceParams{
		Repo:       devices.NewRepository(dbClient.DB()),
		Mailer:     dispatcher,
		Licensing:  cfg.Licensing,
		AlertEmail: cfg.Alerts.AdminEmail,
		Metrics:    licensingMetrics,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create device service", err)
		os.Exit(1)
	}

	licenseService, err := licenses.NewService(licenses.ServiceParams{
		Repo:        licenseRepo,
		Devices:     deviceService,
		Mailer:      dispatcher,
		KeyAttempts: cfg.Licensing.KeyAttempts,
		Metrics:     licensingMetrics,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create license service", err)
		os.Exit(1)
	}

	usageService, err := usage.NewService(usage.NewRepository(dbClient.DB()), licenseRepo, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create usage service", err)
		os.Exit(1)
	}

	deps := routes.Dependencies{
		DB:           dbClient,
		Redis:        redisClient,
		RateLimiter:  redisClient,
		Sessions:     sessionManager,
		Verification: verificationService,
		Licenses:     licenseService,
		LicenseIndex: licenseRepo,
		Devices:      deviceService,
		Usage:        usageService,
		Metrics:      licensingMetrics,
		Gatherer:     registry,
	}

	if err := wireStripe(cfg, logg, licenseService, licensingMetrics, redisClient, &deps); err != nil {
		logg.Error(context.Background(), "failed to wire stripe", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := api.NewServer(addr, routes.NewRouter(cfg, logg, deps))

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}

// wireStripe attaches checkout and the payment webhook when Stripe keys are
// configured. Without them those routes answer 500 and the rest of the API
// still serves.
func wireStripe(cfg *config.Config, logg *logger.Logger, licenseService licenses.Service, m *metrics.LicensingMetrics, redisClient *redis.Client, deps *routes.Dependencies) error {
	ctx := context.Background()
	if cfg.Stripe.APIKey == "" {
		logg.Warn(ctx, "stripe api key not configured; checkout and payment webhook disabled")
		return nil
	}

	client, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return err
	}

	checkoutService, err := checkout.NewService(client, cfg.App.BaseURL, cfg.Stripe.SuccessPath, cfg.Stripe.CancelPath)
	if err != nil {
		return err
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Licenses: licenseService,
		Metrics:  m,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	guard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Stripe.EventTTL(), webhookGuardScope)
	if err != nil {
		return err
	}

	deps.Checkout = checkoutService
	deps.StripeClient = client
	deps.StripeWebhook = webhookService
	deps.StripeGuard = guard
	return nil
}
