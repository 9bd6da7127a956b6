// Package revocation records access-token identifiers (jti) that must no
// longer be honoured before their natural expiry. Every service instance
// points at the same store so a logout on one instance is seen by all.
package revocation

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStoreUnavailable wraps any failure to reach the backing store.
	// Callers treat it as "revoked" (fail-closed).
	ErrStoreUnavailable = errors.New("revocation store unavailable")
	ErrInvalidTTL       = errors.New("revocation ttl must be positive")
	ErrEmptyTokenID     = errors.New("revocation: empty token id")
)

// Store is the shared jti -> marker cache.
type Store interface {
	// MarkRevoked records jti as revoked for ttl. Marking an already revoked
	// jti overwrites the previous entry.
	MarkRevoked(ctx context.Context, jti string, ttl time.Duration) error

	// IsRevoked reports whether a live marker exists for jti. A missing
	// entry is not an error.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

func validate(jti string, ttl time.Duration) error {
	if jti == "" {
		return ErrEmptyTokenID
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
