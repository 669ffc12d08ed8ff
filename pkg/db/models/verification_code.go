package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/wdir-license-backend/pkg/enums"
)

// VerificationCode is a single issued one-time code. Only a digest of the
// code is stored.
type VerificationCode struct {
	ID         uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	Email      string                 `gorm:"column:email;not null"`
	CodeHash   string                 `gorm:"column:code_hash;not null"`
	Flow       enums.VerificationFlow `gorm:"column:flow;not null"`
	ExpiresAt  time.Time              `gorm:"column:expires_at;not null"`
	Attempts   int                    `gorm:"column:attempts;not null"`
	Consumed   bool                   `gorm:"column:consumed;not null"`
	ConsumedAt *time.Time             `gorm:"column:consumed_at"`
	CreatedAt  time.Time              `gorm:"column:created_at;not null"`
}

func (VerificationCode) TableName() string { return "verification_codes" }

func (v *VerificationCode) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// IsExpired reports whether the code can no longer be redeemed at now.
func (v VerificationCode) IsExpired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}
