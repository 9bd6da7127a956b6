package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/student_records/pkg/logging"
	authmw "github.com/Skotchmaster/student_records/pkg/middleware/auth"
	"github.com/Skotchmaster/student_records/pkg/revocation"
	"github.com/Skotchmaster/student_records/pkg/servicetoken"
	"github.com/Skotchmaster/student_records/pkg/tokens"
	"github.com/Skotchmaster/student_records/services/auth/internal/service"
)

const (
	RefreshCookie = "RefreshToken"
	cookiePath    = "/api/auth"
)

type AuthHTTP struct {
	Svc          *service.AuthService
	CookieSecure bool
}

func (h *AuthHTTP) refreshCookie(value string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookie,
		Value:    value,
		Path:     cookiePath,
		Expires:  exp,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (h *AuthHTTP) deleteRefreshCookie() *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookie,
		Value:    "",
		Path:     cookiePath,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}

// statusFor maps service errors to a status and a reason that is safe to
// show the caller.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "email and password are required"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, tokens.ErrTokenExpired):
		return http.StatusUnauthorized, "token expired"
	case errors.Is(err, tokens.ErrTokenMalformed), errors.Is(err, tokens.ErrTokenInvalid):
		return http.StatusUnauthorized, "invalid token"
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusUnauthorized, "user not found"
	case errors.Is(err, service.ErrRevocationUnavailable), errors.Is(err, revocation.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "logout could not be completed, try again"
	case errors.Is(err, servicetoken.ErrTokenAcquisitionFailed):
		return http.StatusBadGateway, "upstream authentication failed"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (h *AuthHTTP) fail(c echo.Context, event string, err error) error {
	code, reason := statusFor(err)
	l := logging.FromContext(c.Request().Context())
	if code >= 500 {
		l.Error(event, "status", code, "error", err)
	} else {
		l.Warn(event, "status", code, "reason", reason, "error", err)
	}
	return echo.NewHTTPError(code, reason)
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	sess, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		return h.fail(c, "login_failed", err)
	}

	c.SetCookie(h.refreshCookie(sess.RefreshToken, sess.RefreshExp))
	l.Info("login_successful", "user_id", sess.UserID)

	return c.JSON(http.StatusOK, echo.Map{
		"token": sess.AccessToken,
		"id":    sess.UserID,
	})
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	cookie, err := c.Cookie(RefreshCookie)
	if err != nil || cookie.Value == "" {
		l.Warn("refresh_failed", "status", 401, "reason", "missing refresh token")
		return echo.NewHTTPError(http.StatusUnauthorized, "missing refresh token")
	}

	sess, err := h.Svc.Refresh(ctx, cookie.Value)
	if err != nil {
		c.SetCookie(h.deleteRefreshCookie())
		return h.fail(c, "refresh_failed", err)
	}

	c.SetCookie(h.refreshCookie(sess.RefreshToken, sess.RefreshExp))
	l.Info("refresh_successful", "user_id", sess.UserID)

	return c.JSON(http.StatusOK, echo.Map{
		"token": sess.AccessToken,
		"id":    sess.UserID,
	})
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	access, ok := authmw.BearerToken(c.Request())
	if !ok {
		l.Warn("logout_failed", "status", 401, "reason", "missing authorization header")
		return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	cookie, err := c.Cookie(RefreshCookie)
	if err != nil || cookie.Value == "" {
		l.Warn("logout_failed", "status", 401, "reason", "missing refresh token")
		return echo.NewHTTPError(http.StatusUnauthorized, "missing refresh token")
	}

	if err := h.Svc.Logout(ctx, cookie.Value, access); err != nil {
		return h.fail(c, "logout_failed", err)
	}

	c.SetCookie(h.deleteRefreshCookie())
	l.Info("logout_successful")
	return c.JSON(http.StatusOK, echo.Map{
		"message": "logged out",
	})
}

func (h *AuthHTTP) Me(c echo.Context) error {
	p, ok := authmw.PrincipalFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":         p.Subject,
		"email":      p.Email,
		"role":       p.Role,
		"kind":       p.Kind,
		"expires_at": p.ExpiresAt.UTC(),
	})
}
