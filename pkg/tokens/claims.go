package tokens

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const refreshType = "refresh"

type AccessClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	Type  string `json:"typ,omitempty"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	Email string `json:"email,omitempty"`
	Type  string `json:"typ"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) UserID() string  { return c.Subject }
func (c *AccessClaims) TokenID() string { return c.ID }

// IsRefresh reports whether the claims were minted by IssueRefreshToken.
func (c *AccessClaims) IsRefresh() bool { return c.Type == refreshType }

// Remaining returns how long the token stays valid after now. A token
// without exp reports zero and ok=false.
func (c *AccessClaims) Remaining(now time.Time) (time.Duration, bool) {
	return remaining(c.ExpiresAt, now)
}

func (c *RefreshClaims) UserID() string  { return c.Subject }
func (c *RefreshClaims) TokenID() string { return c.ID }

func (c *RefreshClaims) Remaining(now time.Time) (time.Duration, bool) {
	return remaining(c.ExpiresAt, now)
}

func remaining(exp *jwt.NumericDate, now time.Time) (time.Duration, bool) {
	if exp == nil {
		return 0, false
	}
	d := exp.Time.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}
