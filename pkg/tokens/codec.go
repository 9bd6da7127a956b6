// Package tokens mints and parses the HS256 access and refresh tokens shared
// by every student-records service.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenInvalid   = errors.New("token invalid")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
)

const (
	DefaultAccessTTL  = 60 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

type Codec struct {
	Secret     []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

func NewCodec(secret []byte, issuer, audience string) *Codec {
	return &Codec{
		Secret:     secret,
		Issuer:     issuer,
		Audience:   audience,
		AccessTTL:  DefaultAccessTTL,
		RefreshTTL: DefaultRefreshTTL,
		Now:        time.Now,
	}
}

func (c *Codec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Codec) registered(userID string, ttl time.Duration) jwt.RegisteredClaims {
	now := c.now()
	rc := jwt.RegisteredClaims{
		Subject:   userID,
		ID:        uuid.NewString(),
		Issuer:    c.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if c.Audience != "" {
		rc.Audience = jwt.ClaimStrings{c.Audience}
	}
	return rc
}

func (c *Codec) IssueAccessToken(userID, email, role string) (string, error) {
	ttl := c.AccessTTL
	if ttl <= 0 {
		ttl = DefaultAccessTTL
	}
	claims := AccessClaims{
		Email:            email,
		Role:             role,
		RegisteredClaims: c.registered(userID, ttl),
	}
	return c.sign(claims)
}

func (c *Codec) IssueRefreshToken(userID, email string) (string, error) {
	ttl := c.RefreshTTL
	if ttl <= 0 {
		ttl = DefaultRefreshTTL
	}
	claims := RefreshClaims{
		Email:            email,
		Type:             refreshType,
		RegisteredClaims: c.registered(userID, ttl),
	}
	return c.sign(claims)
}

func (c *Codec) sign(claims jwt.Claims) (string, error) {
	if len(c.Secret) == 0 {
		return "", errors.New("tokens: empty signing secret")
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (c *Codec) parser() *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.Issuer))
	}
	if c.Audience != "" {
		opts = append(opts, jwt.WithAudience(c.Audience))
	}
	return jwt.NewParser(opts...)
}

func (c *Codec) keyFunc(*jwt.Token) (any, error) { return c.Secret, nil }

// ValidateAccessToken checks signature, issuer, audience and expiry. Refresh
// tokens are refused even though they share the signing key.
func (c *Codec) ValidateAccessToken(token string) (*AccessClaims, error) {
	var claims AccessClaims
	if _, err := c.parser().ParseWithClaims(token, &claims, c.keyFunc); err != nil {
		return nil, ClassifyError(err)
	}
	if claims.IsRefresh() {
		return nil, fmt.Errorf("%w: refresh token presented as access token", ErrTokenInvalid)
	}
	return &claims, nil
}

func (c *Codec) ValidateRefreshToken(token string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if _, err := c.parser().ParseWithClaims(token, &claims, c.keyFunc); err != nil {
		return nil, ClassifyError(err)
	}
	if claims.Type != refreshType {
		return nil, fmt.Errorf("%w: not a refresh token", ErrTokenInvalid)
	}
	return &claims, nil
}

// ReadClaimsUnverified decodes the payload without checking the signature or
// any time-based claim. Callers must not grant access based on its result.
func (c *Codec) ReadClaimsUnverified(token string) (*AccessClaims, error) {
	var claims AccessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	return &claims, nil
}

// ClassifyError maps a jwt parse error onto ErrTokenMalformed, ErrTokenInvalid
// or ErrTokenExpired. Identity failures win over expiry: a foreign token is
// invalid even when it has also expired.
func ClassifyError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience):
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}
