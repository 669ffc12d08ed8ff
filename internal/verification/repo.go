package verification

import (
	"context"
	"time"

	"github.com/angelmondragon/wdir-license-backend/pkg/db/models"
	"github.com/angelmondragon/wdir-license-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists issued verification codes.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a verification code repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, code *models.VerificationCode) error {
	return r.db.WithContext(ctx).Create(code).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.VerificationCode{}, "id = ?", id).Error
}

// CountSince counts codes issued to email at or after since, across all flows.
func (r *Repository) CountSince(ctx context.Context, email string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.VerificationCode{}).
		Where("email = ? AND created_at >= ?", email, since).
		Count(&count).Error
	return count, err
}

// FindLatestMatch returns the newest unconsumed code for email and flow whose
// digest equals codeHash.
func (r *Repository) FindLatestMatch(ctx context.Context, email string, flow enums.VerificationFlow, codeHash string) (*models.VerificationCode, error) {
	var code models.VerificationCode
	err := r.db.WithContext(ctx).
		Where("email = ? AND flow = ? AND code_hash = ? AND consumed = ?", email, flow, codeHash, false).
		Order("created_at DESC").
		First(&code).Error
	if err != nil {
		return nil, err
	}
	return &code, nil
}

// IncrementOutstandingAttempts charges a failed guess to every unconsumed,
// unexpired code for email and flow, so an older code issued before a resend
// shares the attempt budget of the newest one.
func (r *Repository) IncrementOutstandingAttempts(ctx context.Context, email string, flow enums.VerificationFlow, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VerificationCode{}).
		Where("email = ? AND flow = ? AND consumed = ? AND expires_at > ?", email, flow, false, now).
		UpdateColumn("attempts", gorm.Expr("attempts + ?", 1))
	return res.RowsAffected, res.Error
}

// Consume marks the code consumed if nobody else has. The boolean reports
// whether this call won.
func (r *Repository) Consume(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VerificationCode{}).
		Where("id = ? AND consumed = ?", id, false).
		UpdateColumns(map[string]any{
			"consumed":    true,
			"consumed_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteExpiredBefore removes codes whose expiry is older than cutoff and
// reports how many rows went.
func (r *Repository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&models.VerificationCode{})
	return res.RowsAffected, res.Error
}
