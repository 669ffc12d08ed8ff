package usage

import (
	"context"

	"github.com/angelmondragon/wdir-license-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists monthly usage reports.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a usage repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Upsert writes the report for (license_id, period), replacing any earlier
// count for the same period.
func (r *Repository) Upsert(ctx context.Context, stat *models.UsageStat) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "license_id"}, {Name: "period"}},
		DoUpdates: clause.AssignmentColumns([]string{"report_count", "last_reported_at"}),
	}).Create(stat).Error
}

// ListRecent returns up to limit periods for a license, newest first.
func (r *Repository) ListRecent(ctx context.Context, licenseID uuid.UUID, limit int) ([]models.UsageStat, error) {
	var rows []models.UsageStat
	if err := r.db.WithContext(ctx).
		Where("license_id = ?", licenseID).
		Order("period DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
