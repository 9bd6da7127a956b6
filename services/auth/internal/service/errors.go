package service

import "errors"

var (
	ErrValidation         = errors.New("validation error")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	// ErrRevocationUnavailable means logout could not record the access
	// token as revoked, so the token would keep working.
	ErrRevocationUnavailable = errors.New("access token could not be revoked")
)
