package middleware

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	ecM "github.com/labstack/echo/v4/middleware"

	authmw "github.com/Skotchmaster/student_records/pkg/middleware/auth"
	loggingmw "github.com/Skotchmaster/student_records/pkg/middleware/logging"
)

const (
	HeaderUserID        = "X-User-ID"
	HeaderUserRole      = "X-User-Role"
	HeaderPrincipalKind = "X-Principal-Kind"
)

func Common(logger *slog.Logger) []echo.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return []echo.MiddlewareFunc{
		ecM.Recover(),
		ecM.RequestID(),
		loggingmw.RequestLogger(logger),
		ecM.Secure(),
		StripIdentity(),
	}
}

// StripIdentity drops identity headers sent by the client; only
// ForwardIdentity may set them.
func StripIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header
			h.Del(HeaderUserID)
			h.Del(HeaderUserRole)
			h.Del(HeaderPrincipalKind)
			return next(c)
		}
	}
}

// ForwardIdentity copies the authenticated principal into request headers
// for the backend. It must run after the token validation gateway.
func ForwardIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if p, ok := authmw.PrincipalFrom(c); ok {
				h := c.Request().Header
				h.Set(HeaderUserID, p.Subject)
				h.Set(HeaderUserRole, p.Role)
				h.Set(HeaderPrincipalKind, string(p.Kind))
			}
			return next(c)
		}
	}
}
