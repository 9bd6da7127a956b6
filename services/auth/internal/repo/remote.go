package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Skotchmaster/student_records/pkg/userclient"
	"github.com/Skotchmaster/student_records/services/auth/internal/models"
)

// RemoteUsers resolves credentials through the User service instead of the
// local users table.
type RemoteUsers struct {
	Client *userclient.Client
}

func (r *RemoteUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return convert(r.Client.FindByEmail(ctx, email))
}

func (r *RemoteUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	return convert(r.Client.FindByID(ctx, id))
}

func convert(u *userclient.User, err error) (*models.User, error) {
	if errors.Is(err, userclient.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(u.ID)
	if err != nil {
		return nil, fmt.Errorf("user service returned invalid id %q: %w", u.ID, err)
	}
	return &models.User{ID: id, Email: u.Email, PasswordHash: u.PasswordHash, Role: u.Role}, nil
}
