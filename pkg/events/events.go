// Package events publishes session lifecycle events (login, refresh, logout)
// to the event stream and the security audit index.
package events

import (
	"context"
	"errors"
	"time"
)

const (
	TypeLoggedIn       = "user_logged_in"
	TypeTokenRefreshed = "token_refreshed"
	TypeLoggedOut      = "user_logged_out"
	TypeTokenRevoked   = "token_revoked"
)

// Event never carries raw token material, only the jti.
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id,omitempty"`
	Email      string    `json:"email,omitempty"`
	TokenID    string    `json:"token_id,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
