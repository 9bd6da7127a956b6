package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"gorm.io/gorm"

	"github.com/Skotchmaster/student_records/services/auth/internal/models"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrTokenInactive = errors.New("refresh token is not active")
	ErrAlreadyExists = errors.New("user already exists")
)

type GormRepo struct {
	DB *gorm.DB
}

func (r *GormRepo) Migrate(ctx context.Context) error {
	return r.DB.WithContext(ctx).AutoMigrate(&models.User{}, &models.RefreshToken{})
}

func Sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
