package devices

import (
	"context"
	"time"

	"github.com/angelmondragon/wdir-license-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists device registrations and the license columns derived
// from them.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a device repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Register upserts the device and stamps the license's activated_at on its
// first binding, in one transaction. An existing (license_id, device_id) row
// only has last_used_at and the supplied descriptive columns refreshed.
func (r *Repository) Register(ctx context.Context, device *models.Device) (*models.Device, error) {
	updates := map[string]any{
		"last_used_at": device.LastUsedAt,
		"updated_at":   device.LastUsedAt,
	}
	if device.DeviceModel != nil {
		updates["device_model"] = *device.DeviceModel
	}
	if device.OSVersion != nil {
		updates["os_version"] = *device.OSVersion
	}

	var stored models.Device
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "license_id"}, {Name: "device_id"}},
			DoUpdates: clause.Assignments(updates),
		}).Create(device).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.License{}).
			Where("id = ? AND activated_at IS NULL", device.LicenseID).
			UpdateColumn("activated_at", device.LastUsedAt).Error; err != nil {
			return err
		}
		return tx.Where("license_id = ? AND device_id = ?", device.LicenseID, device.DeviceID).
			First(&stored).Error
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// ListByLicense returns the devices of a license, most recently used first.
func (r *Repository) ListByLicense(ctx context.Context, licenseID uuid.UUID, activeOnly bool) ([]models.Device, error) {
	query := r.db.WithContext(ctx).Where("license_id = ?", licenseID)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var rows []models.Device
	if err := query.Order("last_used_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FindByDeviceID returns every registration of a hardware id.
func (r *Repository) FindByDeviceID(ctx context.Context, deviceID string) ([]models.Device, error) {
	var rows []models.Device
	if err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("last_used_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{"last_used_at": at, "updated_at": at}).Error
}

func (r *Repository) SetDeviceCount(ctx context.Context, licenseID uuid.UUID, count int) error {
	return r.db.WithContext(ctx).
		Model(&models.License{}).
		Where("id = ?", licenseID).
		UpdateColumn("device_count", count).Error
}

// FlagMultiDevice sets flagged_multi_device if it is still unset. The boolean
// reports whether this call made the transition.
func (r *Repository) FlagMultiDevice(ctx context.Context, licenseID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.License{}).
		Where("id = ? AND flagged_multi_device = ?", licenseID, false).
		UpdateColumns(map[string]any{"flagged_multi_device": true, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
