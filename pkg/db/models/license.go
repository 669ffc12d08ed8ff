package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/wdir-license-backend/pkg/db"
	"github.com/angelmondragon/wdir-license-backend/pkg/enums"
)

var (
	LicenseKeyUnique = db.UniqueConstraint{
		Name:   "licenses_license_key_key",
		Table:  "licenses",
		Column: "license_key",
	}
	LicenseStripeSessionUnique = db.UniqueConstraint{
		Name:   "licenses_stripe_session_id_key",
		Table:  "licenses",
		Column: "stripe_session_id",
	}
)

// License is an entitlement for one inspector, identified by its license key
// and the email it was issued to.
type License struct {
	ID                    uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	LicenseKey            string            `gorm:"column:license_key;not null;unique"`
	Email                 string            `gorm:"column:email;not null"`
	CompanyName           string            `gorm:"column:company_name;not null"`
	CompanyPhone          *string           `gorm:"column:company_phone"`
	CompanyLicenseNumber  *string           `gorm:"column:company_license_number"`
	InspectorName         string            `gorm:"column:inspector_name;not null"`
	InspectorLicense      string            `gorm:"column:inspector_license;not null"`
	LicenseType           enums.LicenseType `gorm:"column:license_type;not null;default:'individual'"`
	IsActive              bool              `gorm:"column:is_active;not null"`
	ActivatedAt           *time.Time        `gorm:"column:activated_at"`
	ExpiresAt             *time.Time        `gorm:"column:expires_at"`
	LastValidatedAt       *time.Time        `gorm:"column:last_validated_at"`
	FlaggedMultiDevice    bool              `gorm:"column:flagged_multi_device;not null"`
	DeviceCount           int               `gorm:"column:device_count;not null"`
	AdminNotes            *string           `gorm:"column:admin_notes"`
	StripeSessionID       *string           `gorm:"column:stripe_session_id;unique"`
	StripePaymentIntentID *string           `gorm:"column:stripe_payment_intent_id"`
	StripeCustomerID      *string           `gorm:"column:stripe_customer_id"`
	CreatedAt             time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (License) TableName() string { return "licenses" }

func (l *License) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// IsExpired reports whether the license carries an expiry that is not after now.
func (l License) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}
