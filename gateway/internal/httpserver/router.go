package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/student_records/gateway/internal/middleware"
	"github.com/Skotchmaster/student_records/pkg/metrics"
	authmw "github.com/Skotchmaster/student_records/pkg/middleware/auth"
)

type Deps struct {
	AuthURL string
	// Routes maps a path prefix such as "/api/grades" to a backend base URL.
	Routes map[string]string

	Gateway *authmw.Gateway
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Ready   func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) error {
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

	for _, m := range middleware.Common(d.Logger) {
		e.Use(m)
	}
	e.Use(d.Gateway.Middleware())
	e.Use(middleware.ForwardIdentity())

	authProxy, err := newProxy(d.AuthURL)
	if err != nil {
		return fmt.Errorf("auth proxy: %w", err)
	}
	e.Any("/api/auth/*", authProxy)

	prefixes := make([]string, 0, len(d.Routes))
	for p := range d.Routes {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	for _, prefix := range prefixes {
		target := d.Routes[prefix]
		prefix = "/" + strings.Trim(prefix, "/")
		if prefix == "/api/auth" {
			return fmt.Errorf("route %s is reserved for the auth service", prefix)
		}
		proxy, err := newProxy(target)
		if err != nil {
			return fmt.Errorf("route %s: %w", prefix, err)
		}
		e.Any(prefix, proxy)
		e.Any(prefix+"/*", proxy)
	}
	return nil
}
