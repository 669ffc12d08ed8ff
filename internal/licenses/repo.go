package licenses

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/wdir-license-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes license persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a license repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new license row.
func (r *Repository) Create(ctx context.Context, license *models.License) error {
	return r.db.WithContext(ctx).Create(license).Error
}

func (r *Repository) ExistsByKey(ctx context.Context, key string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.License{}).
		Where("license_key = ?", key).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.License, error) {
	var license models.License
	if err := r.db.WithContext(ctx).First(&license, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &license, nil
}

func (r *Repository) FindByKey(ctx context.Context, key string) (*models.License, error) {
	var license models.License
	if err := r.db.WithContext(ctx).First(&license, "license_key = ?", key).Error; err != nil {
		return nil, err
	}
	return &license, nil
}

// FindByEmail returns the license issued to email, ignoring case. When an
// address holds several, active ones win and then the newest.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.License, error) {
	var license models.License
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		Order("is_active DESC").
		Order("created_at DESC").
		First(&license).Error
	if err != nil {
		return nil, err
	}
	return &license, nil
}

func (r *Repository) FindByStripeSession(ctx context.Context, sessionID string) (*models.License, error) {
	var license models.License
	if err := r.db.WithContext(ctx).First(&license, "stripe_session_id = ?", sessionID).Error; err != nil {
		return nil, err
	}
	return &license, nil
}

// List returns licenses newest first using cursor pagination.
func (r *Repository) List(ctx context.Context, opts listQuery) ([]models.License, error) {
	query := r.db.WithContext(ctx).Model(&models.License{})

	if opts.search != "" {
		like := "%" + opts.search + "%"
		query = query.Where("(LOWER(email) LIKE ? OR LOWER(company_name) LIKE ? OR LOWER(license_key) LIKE ?)", like, like, like)
	}
	if opts.flaggedOnly {
		query = query.Where("flagged_multi_device = ?", true)
	}
	if opts.cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", opts.cursor.CreatedAt, opts.cursor.CreatedAt, opts.cursor.ID)
	}

	query = query.Order("created_at DESC").Order("id DESC").Limit(opts.limit)

	var rows []models.License
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Update applies the column changes in updates to the license.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&models.License{}).
		Where("id = ?", id).
		UpdateColumns(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkValidated stamps last_validated_at and, on first use, activated_at.
func (r *Repository) MarkValidated(ctx context.Context, id uuid.UUID, at time.Time, activate bool) error {
	updates := map[string]any{"last_validated_at": at}
	if activate {
		updates["activated_at"] = gorm.Expr("COALESCE(activated_at, ?)", at)
	}
	return r.db.WithContext(ctx).
		Model(&models.License{}).
		Where("id = ?", id).
		UpdateColumns(updates).Error
}

// ListWithDevices pages through licenses that have a nonzero device count,
// ordered by id, starting after the given id.
func (r *Repository) ListWithDevices(ctx context.Context, after uuid.UUID, limit int) ([]models.License, error) {
	query := r.db.WithContext(ctx).
		Where("device_count > ?", 0)
	if after != uuid.Nil {
		query = query.Where("id > ?", after)
	}
	var rows []models.License
	if err := query.Order("id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
