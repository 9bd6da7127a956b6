package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/student_records/pkg/metrics"
	authmw "github.com/Skotchmaster/student_records/pkg/middleware/auth"
	loggingmw "github.com/Skotchmaster/student_records/pkg/middleware/logging"
)

type Deps struct {
	AuthHandler        *AuthHTTP
	Gateway            *authmw.Gateway
	Metrics            *metrics.Metrics
	Logger             *slog.Logger
	LoginRatePerMinute int
	// Ready reports whether the database and the revocation store answer.
	Ready func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if d.Logger != nil {
		e.Use(loggingmw.RequestLogger(d.Logger))
	}
	e.Use(middleware.Secure())
	e.Use(d.Gateway.Middleware())

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
			}
		}
		return c.NoContent(http.StatusOK)
	})
	if d.Metrics != nil {
		d.Metrics.Register(e)
	}

	var loginMw []echo.MiddlewareFunc
	if d.LoginRatePerMinute > 0 {
		loginMw = append(loginMw, echo.WrapMiddleware(
			httprate.Limit(d.LoginRatePerMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByRealIP)),
		))
	}

	api := e.Group("/api/auth")
	api.POST("/login", d.AuthHandler.Login, loginMw...)
	api.POST("/refresh-token", d.AuthHandler.Refresh)
	api.POST("/logout", d.AuthHandler.Logout)
	api.GET("/me", d.AuthHandler.Me)
}
