package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/wdir-license-backend/pkg/db"
)

var DeviceLicenseUnique = db.UniqueConstraint{
	Name:   "devices_license_id_device_id_key",
	Table:  "devices",
	Column: "license_id",
}

// Device is a physical installation bound to a license.
type Device struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	LicenseID        uuid.UUID `gorm:"column:license_id;type:uuid;not null"`
	DeviceID         string    `gorm:"column:device_id;not null"`
	DeviceModel      *string   `gorm:"column:device_model"`
	OSVersion        *string   `gorm:"column:os_version"`
	FirstActivatedAt time.Time `gorm:"column:first_activated_at;not null"`
	LastUsedAt       time.Time `gorm:"column:last_used_at;not null"`
	IsActive         bool      `gorm:"column:is_active;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Device) TableName() string { return "devices" }

func (d *Device) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
