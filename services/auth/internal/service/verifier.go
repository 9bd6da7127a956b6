package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/student_records/services/auth/internal/repo"
)

// CredentialVerifier checks a plaintext password against the stored bcrypt
// hash. It does not tell a missing user apart from a wrong password.
type CredentialVerifier struct {
	Users CredentialStore

	dummyOnce sync.Once
	dummy     []byte
}

func NewCredentialVerifier(users CredentialStore) *CredentialVerifier {
	return &CredentialVerifier{Users: users}
}

func (v *CredentialVerifier) Verify(ctx context.Context, userID, plaintext string) (bool, error) {
	user, err := v.Users.FindByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		v.Equalize(plaintext)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find credential: %w", err)
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(plaintext)) == nil, nil
}

// Equalize spends one bcrypt comparison so a lookup miss costs as much as a
// wrong password.
func (v *CredentialVerifier) Equalize(plaintext string) {
	v.dummyOnce.Do(func() {
		v.dummy, _ = bcrypt.GenerateFromPassword([]byte("student-records-dummy"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(v.dummy, []byte(plaintext))
}

func HashPassword(plaintext string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}
