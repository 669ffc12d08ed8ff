package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/wdir-license-backend/internal/devices"
	"github.com/angelmondragon/wdir-license-backend/pkg/db/models"
	"github.com/angelmondragon/wdir-license-backend/pkg/logger"
)

const defaultDeviceCountBatch = 200

type DeviceCountJobParams struct {
	Logger    *logger.Logger
	Licenses  licensePager
	Devices   flagRecomputer
	BatchSize int
}

type licensePager interface {
	ListWithDevices(ctx context.Context, after uuid.UUID, limit int) ([]models.License, error)
}

type flagRecomputer interface {
	RecomputeMultiDeviceFlag(ctx context.Context, license *models.License) (*devices.FlagResult, error)
}

// NewDeviceCountJob recomputes the rolling device count of every license
// with registered devices so counts drop as devices age out of the lookback
// window. Flags are never cleared here.
func NewDeviceCountJob(params DeviceCountJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Licenses == nil {
		return nil, fmt.Errorf("license repository required")
	}
	if params.Devices == nil {
		return nil, fmt.Errorf("device service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultDeviceCountBatch
	}
	return &deviceCountJob{
		logg:     params.Logger,
		licenses: params.Licenses,
		devices:  params.Devices,
		batch:    batch,
	}, nil
}

type deviceCountJob struct {
	logg     *logger.Logger
	licenses licensePager
	devices  flagRecomputer
	batch    int
}

func (j *deviceCountJob) Name() string { return "device-count-refresh" }

func (j *deviceCountJob) Run(ctx context.Context) error {
	var (
		after    uuid.UUID
		scanned  int
		changed  int
		failures int
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := j.licenses.ListWithDevices(ctx, after, j.batch)
		if err != nil {
			return fmt.Errorf("list licenses: %w", err)
		}
		for i := range page {
			license := &page[i]
			before := license.DeviceCount
			if _, err := j.devices.RecomputeMultiDeviceFlag(ctx, license); err != nil {
				failures++
				j.logg.Error(j.logg.WithLicenseID(ctx, license.ID.String()), "device count refresh failed", err)
				continue
			}
			if license.DeviceCount != before {
				changed++
			}
		}
		scanned += len(page)
		if len(page) < j.batch {
			break
		}
		after = page[len(page)-1].ID
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"licenses_scanned": scanned,
		"counts_changed":   changed,
		"failures":         failures,
	})
	j.logg.Info(logCtx, "device count refresh complete")
	if failures > 0 {
		return fmt.Errorf("device count refresh: %d licenses failed", failures)
	}
	return nil
}
