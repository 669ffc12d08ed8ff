package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UsageStat is the report count a license submitted for one YYYY-MM period.
type UsageStat struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	LicenseID      uuid.UUID `gorm:"column:license_id;type:uuid;not null"`
	Period         string    `gorm:"column:period;not null"`
	ReportCount    int       `gorm:"column:report_count;not null"`
	LastReportedAt time.Time `gorm:"column:last_reported_at;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (UsageStat) TableName() string { return "usage_stats" }

func (u *UsageStat) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
