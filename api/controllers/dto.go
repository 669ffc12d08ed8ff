package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/wdir-license-backend/internal/devices"
	"github.com/angelmondragon/wdir-license-backend/pkg/db/models"
	"github.com/angelmondragon/wdir-license-backend/pkg/enums"
)

type deviceInfoRequest struct {
	DeviceID    string `json:"device_id" validate:"required,max=255"`
	DeviceModel string `json:"device_model" validate:"max=255"`
	OSVersion   string `json:"os_version" validate:"max=100"`
}

func (d *deviceInfoRequest) toInfo() *devices.DeviceInfo {
	if d == nil {
		return nil
	}
	return &devices.DeviceInfo{
		DeviceID:    d.DeviceID,
		DeviceModel: d.DeviceModel,
		OSVersion:   d.OSVersion,
	}
}

// licenseResponse is the license as shown to the license holder.
type licenseResponse struct {
	ID                   uuid.UUID         `json:"id"`
	LicenseKey           string            `json:"license_key"`
	Email                string            `json:"email"`
	CompanyName          string            `json:"company_name"`
	CompanyPhone         *string           `json:"company_phone"`
	CompanyLicenseNumber *string           `json:"company_license_number"`
	InspectorName        string            `json:"inspector_name"`
	InspectorLicense     string            `json:"inspector_license"`
	LicenseType          enums.LicenseType `json:"license_type"`
	IsActive             bool              `json:"is_active"`
	ActivatedAt          *time.Time        `json:"activated_at"`
	ExpiresAt            *time.Time        `json:"expires_at"`
	LastValidatedAt      *time.Time        `json:"last_validated_at"`
	CreatedAt            time.Time         `json:"created_at"`
}

func licenseResponseFromModel(m *models.License) licenseResponse {
	return licenseResponse{
		ID:                   m.ID,
		LicenseKey:           m.LicenseKey,
		Email:                m.Email,
		CompanyName:          m.CompanyName,
		CompanyPhone:         m.CompanyPhone,
		CompanyLicenseNumber: m.CompanyLicenseNumber,
		InspectorName:        m.InspectorName,
		InspectorLicense:     m.InspectorLicense,
		LicenseType:          m.LicenseType,
		IsActive:             m.IsActive,
		ActivatedAt:          m.ActivatedAt,
		ExpiresAt:            m.ExpiresAt,
		LastValidatedAt:      m.LastValidatedAt,
		CreatedAt:            m.CreatedAt,
	}
}

// adminLicenseResponse adds the operator-only fields.
type adminLicenseResponse struct {
	licenseResponse
	FlaggedMultiDevice    bool      `json:"flagged_multi_device"`
	DeviceCount           int       `json:"device_count"`
	AdminNotes            *string   `json:"admin_notes"`
	StripeSessionID       *string   `json:"stripe_session_id"`
	StripePaymentIntentID *string   `json:"stripe_payment_intent_id"`
	StripeCustomerID      *string   `json:"stripe_customer_id"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func adminLicenseResponseFromModel(m *models.License) adminLicenseResponse {
	return adminLicenseResponse{
		licenseResponse:       licenseResponseFromModel(m),
		FlaggedMultiDevice:    m.FlaggedMultiDevice,
		DeviceCount:           m.DeviceCount,
		AdminNotes:            m.AdminNotes,
		StripeSessionID:       m.StripeSessionID,
		StripePaymentIntentID: m.StripePaymentIntentID,
		StripeCustomerID:      m.StripeCustomerID,
		UpdatedAt:             m.UpdatedAt,
	}
}

type deviceResponse struct {
	ID               uuid.UUID `json:"id"`
	DeviceID         string    `json:"device_id"`
	DeviceModel      *string   `json:"device_model"`
	OSVersion        *string   `json:"os_version"`
	FirstActivatedAt time.Time `json:"first_activated_at"`
	LastUsedAt       time.Time `json:"last_used_at"`
	IsActive         bool      `json:"is_active"`
}

func deviceResponsesFromModels(items []models.Device) []deviceResponse {
	out := make([]deviceResponse, 0, len(items))
	for _, d := range items {
		out = append(out, deviceResponse{
			ID:               d.ID,
			DeviceID:         d.DeviceID,
			DeviceModel:      d.DeviceModel,
			OSVersion:        d.OSVersion,
			FirstActivatedAt: d.FirstActivatedAt,
			LastUsedAt:       d.LastUsedAt,
			IsActive:         d.IsActive,
		})
	}
	return out
}

type usageResponse struct {
	Period         string    `json:"period"`
	ReportCount    int       `json:"report_count"`
	LastReportedAt time.Time `json:"last_reported_at"`
}

func usageResponseFromModel(u *models.UsageStat) usageResponse {
	return usageResponse{
		Period:         u.Period,
		ReportCount:    u.ReportCount,
		LastReportedAt: u.LastReportedAt,
	}
}

type messageResponse struct {
	Message string `json:"message"`
}
