package servicetoken

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Skotchmaster/student_records/pkg/tokens"
)

// MachineClaims are the claims of a token minted by the identity provider
// for a service acting on its own behalf.
type MachineClaims struct {
	Scope string `json:"scope,omitempty"`
	Azp   string `json:"azp,omitempty"`
	jwt.RegisteredClaims
}

func (c *MachineClaims) TokenID() string { return c.ID }

// Client returns the calling service. Providers disagree on whether it lives
// in azp or sub.
func (c *MachineClaims) Client() string {
	if c.Azp != "" {
		return c.Azp
	}
	return c.Subject
}

func (c *MachineClaims) HasScope(scope string) bool {
	for _, s := range strings.Fields(c.Scope) {
		if s == scope {
			return true
		}
	}
	return false
}

type Verifier struct {
	Keyfunc  jwt.Keyfunc
	Issuer   string
	Audience string
	Methods  []string
	Now      func() time.Time
}

// NewJWKSVerifier fetches and keeps refreshing the provider's key set in the
// background until ctx is done.
func NewJWKSVerifier(ctx context.Context, jwksURL, issuer, audience string) (*Verifier, error) {
	k, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("load jwks %s: %w", jwksURL, err)
	}
	return &Verifier{
		Keyfunc:  k.Keyfunc,
		Issuer:   issuer,
		Audience: audience,
	}, nil
}

func (v *Verifier) Verify(token string) (*MachineClaims, error) {
	if v == nil || v.Keyfunc == nil {
		return nil, fmt.Errorf("%w: machine tokens not accepted", tokens.ErrTokenInvalid)
	}

	methods := v.Methods
	if len(methods) == 0 {
		methods = []string{jwt.SigningMethodRS256.Alg()}
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
	}
	if v.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(v.Now))
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}

	var claims MachineClaims
	if _, err := jwt.NewParser(opts...).ParseWithClaims(token, &claims, v.Keyfunc); err != nil {
		return nil, tokens.ClassifyError(err)
	}
	return &claims, nil
}
