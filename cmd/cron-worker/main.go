package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/wdir-license-backend/internal/cron"
	"github.com/angelmondragon/wdir-license-backend/internal/devices"
	"github.com/angelmondragon/wdir-license-backend/internal/licenses"
	"github.com/angelmondragon/wdir-license-backend/internal/verification"
	"github.com/angelmondragon/wdir-license-backend/pkg/config"
	"github.com/angelmondragon/wdir-license-backend/pkg/db"
	"github.com/angelmondragon/wdir-license-backend/pkg/logger"
	"github.com/angelmondragon/wdir-license-backend/pkg/mailer"
	"github.com/angelmondragon/wdir-license-backend/pkg/metrics"
	"github.com/angelmondragon/wdir-license-backend/pkg/migrate"
	"github.com/angelmondragon/wdir-license-backend/pkg/redis"
)

const (
	serviceName   = "cron-worker"
	lockKeyFormat = "wdir:cron-worker:lock:%s"
)

func main() {
	once := flag.Bool("once", false, "run a single maintenance cycle and exit")
	flag.Parse()

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

	dispatcher, err := mailer.New(cfg.Sendgrid, cfg.App, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create mailer", err)
		os.Exit(1)
	}

	licensingMetrics := metrics.NewLicensingMetrics(prometheus.DefaultRegisterer)
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

	codeCleanup, err := cron.NewCodeCleanupJob(cron.CodeCleanupJobParams{
		Logger:     logg,
		Repository: verification.NewRepository(dbClient.DB()),
		Retention:  cfg.Cron.CodeRetention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create code cleanup job", err)
		os.Exit(1)
	}

	deviceCounts, err := cron.NewDeviceCountJob(cron.DeviceCountJobParams{
		Logger:    logg,
		Licenses:  licenses.NewRepository(dbClient.DB()),
		Devices:   deviceService,
		BatchSize: cfg.Cron.DeviceCountBatch,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create device count job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Jobs:     []cron.Job{codeCleanup, deviceCounts},
		Locker:   lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Cron.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	if *once {
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "maintenance cycle failed", err)
			os.Exit(1)
		}
		return
	}

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
