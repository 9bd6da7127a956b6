package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/student_records/services/auth/internal/models"
)

func (r *GormRepo) CreateRefreshToken(ctx context.Context, t *models.RefreshToken) error {
	return r.DB.WithContext(ctx).Create(t).Error
}

// FindRefreshToken looks a row up by the raw token string.
func (r *GormRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var row models.RefreshToken
	if err := r.DB.WithContext(ctx).Where("token = ?", Sha256Hex(token)).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}

func (r *GormRepo) DeactivateRefreshToken(ctx context.Context, id uuid.UUID) error {
	return deactivate(r.DB.WithContext(ctx), id)
}

func deactivate(db *gorm.DB, id uuid.UUID) error {
	return db.Model(&models.RefreshToken{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}

// RotateRefreshToken deactivates oldID and stores next in one transaction.
// It fails with ErrTokenInactive when oldID was already deactivated, so two
// concurrent refreshes of one token cannot both succeed.
func (r *GormRepo) RotateRefreshToken(ctx context.Context, oldID uuid.UUID, next *models.RefreshToken) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND is_active = ?", oldID, true).
			Update("is_active", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTokenInactive
		}
		return tx.Create(next).Error
	})
}
