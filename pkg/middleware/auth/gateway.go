// Package authmw is the token validation gateway every protected endpoint sits
// behind, plus the role policies applied after it.
package authmw

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/student_records/pkg/logging"
	"github.com/Skotchmaster/student_records/pkg/metrics"
	"github.com/Skotchmaster/student_records/pkg/revocation"
	"github.com/Skotchmaster/student_records/pkg/servicetoken"
	"github.com/Skotchmaster/student_records/pkg/tokens"
)

const (
	ReasonMissingHeader    = "missing authorization header"
	ReasonInvalid          = "invalid token"
	ReasonExpired          = "token expired"
	ReasonMissingJTI       = "token has no jti"
	ReasonRevoked          = "token revoked"
	ReasonStoreUnavailable = "revocation status unavailable"
)

var reasonOutcome = map[string]string{
	ReasonMissingHeader:    "missing_header",
	ReasonInvalid:          "invalid",
	ReasonExpired:          "expired",
	ReasonMissingJTI:       "missing_jti",
	ReasonRevoked:          "revoked",
	ReasonStoreUnavailable: "store_unavailable",
}

// DefaultSkipPrefixes are reachable without a token so a caller can always
// authenticate or end a session.
var DefaultSkipPrefixes = []string{
	"/api/auth/login",
	"/api/auth/logout",
	"/api/auth/refresh-token",
	"/health",
	"/metrics",
}

type Gateway struct {
	Codec        *tokens.Codec
	Store        revocation.Store
	Machine      *servicetoken.Verifier
	SkipPrefixes []string
	Metrics      *metrics.Metrics
}

func NewGateway(codec *tokens.Codec, store revocation.Store) *Gateway {
	return &Gateway{
		Codec:        codec,
		Store:        store,
		SkipPrefixes: DefaultSkipPrefixes,
	}
}

func (g *Gateway) skipped(path string) bool {
	for _, p := range g.SkipPrefixes {
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}

func (g *Gateway) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if g.skipped(c.Request().URL.Path) {
				g.Metrics.Decision("skipped")
				return next(c)
			}

			token, ok := BearerToken(c.Request())
			if !ok {
				return g.reject(c, ReasonMissingHeader, "", nil)
			}

			p, reason, err := g.authenticate(c, token)
			if reason != "" {
				return g.reject(c, reason, token, err)
			}

			setPrincipal(c, p)
			g.Metrics.Decision("accepted")
			return next(c)
		}
	}
}

func (g *Gateway) authenticate(c echo.Context, token string) (*Principal, string, error) {
	claims, err := g.Codec.ValidateAccessToken(token)
	if err != nil {
		if errors.Is(err, tokens.ErrTokenInvalid) && g.Machine != nil {
			p, mErr := g.machine(token)
			if mErr == nil {
				return g.checkRevoked(c, p, false)
			}
			if errors.Is(mErr, tokens.ErrTokenExpired) {
				return nil, ReasonExpired, mErr
			}
		}
		if errors.Is(err, tokens.ErrTokenExpired) {
			return nil, ReasonExpired, err
		}
		return nil, ReasonInvalid, err
	}

	p := &Principal{
		Kind:    KindUser,
		Subject: claims.UserID(),
		Email:   claims.Email,
		Role:    claims.Role,
		TokenID: claims.TokenID(),
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return g.checkRevoked(c, p, true)
}

func (g *Gateway) machine(token string) (*Principal, error) {
	mc, err := g.Machine.Verify(token)
	if err != nil {
		return nil, err
	}
	p := &Principal{
		Kind:    KindService,
		Subject: mc.Client(),
		Scope:   mc.Scope,
		TokenID: mc.TokenID(),
	}
	if mc.ExpiresAt != nil {
		p.ExpiresAt = mc.ExpiresAt.Time
	}
	return p, nil
}

// checkRevoked consults the store. Errors from the store reject the request.
func (g *Gateway) checkRevoked(c echo.Context, p *Principal, jtiRequired bool) (*Principal, string, error) {
	if p.TokenID == "" {
		if jtiRequired {
			return nil, ReasonMissingJTI, nil
		}
		return p, "", nil
	}
	if g.Store == nil {
		return nil, ReasonStoreUnavailable, revocation.ErrStoreUnavailable
	}
	revoked, err := g.Store.IsRevoked(c.Request().Context(), p.TokenID)
	if err != nil {
		return nil, ReasonStoreUnavailable, err
	}
	if revoked {
		return nil, ReasonRevoked, nil
	}
	return p, "", nil
}

func (g *Gateway) reject(c echo.Context, reason, token string, err error) error {
	g.Metrics.Decision(reasonOutcome[reason])

	attrs := []any{"reason", reason, "path", c.Request().URL.Path}
	if token != "" {
		attrs = append(attrs, "token", logging.Fingerprint(token))
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	l := logging.FromContext(c.Request().Context())
	if reason == ReasonStoreUnavailable {
		l.Error("request_rejected", attrs...)
	} else {
		l.Warn("request_rejected", attrs...)
	}

	c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer error="invalid_token"`)
	return echo.NewHTTPError(http.StatusUnauthorized, reason)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get(echo.HeaderAuthorization))
	if h == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
