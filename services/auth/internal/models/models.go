package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the credential record a login is checked against.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"  json:"id"`
	Email        string    `gorm:"uniqueIndex;not null"  json:"email"`
	PasswordHash string    `gorm:"not null"              json:"-"`
	Role         string    `gorm:"not null"              json:"role"`
	CreatedAt    time.Time `                             json:"created_at"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// RefreshToken rows are never deleted. Token holds the SHA-256 hex digest of
// the issued token, not the token itself.
type RefreshToken struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"  json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Token     string    `gorm:"uniqueIndex;not null"  json:"-"`
	JTI       string    `gorm:"index;not null"        json:"jti"`
	ExpiresAt time.Time `gorm:"not null"              json:"expires_at"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `                             json:"created_at"`
}

func (t *RefreshToken) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
