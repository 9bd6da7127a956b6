package authmw

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

type Policy struct {
	Name         string
	Roles        []string
	AllowService bool
}

var (
	AdminOnly      = Policy{Name: "AdminOnly", Roles: []string{RoleAdmin}}
	TutorOnly      = Policy{Name: "TutorOnly", Roles: []string{RoleTutor}}
	AdminOrTutor   = Policy{Name: "AdminOrTutor", Roles: []string{RoleAdmin, RoleTutor}}
	ServiceOrAdmin = Policy{Name: "ServiceOrAdmin", Roles: []string{RoleAdmin}, AllowService: true}
)

func (p Policy) Allows(pr *Principal) bool {
	if pr.IsService() {
		return p.AllowService
	}
	return slices.Contains(p.Roles, pr.Role)
}

// RequirePolicy must run after Gateway.Middleware.
func RequirePolicy(p Policy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			pr, ok := PrincipalFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
			}
			if !p.Allows(pr) {
				return echo.NewHTTPError(http.StatusForbidden, "you don't have enough rights to see this page")
			}
			return next(c)
		}
	}
}

func RequireRole(roles ...string) echo.MiddlewareFunc {
	return RequirePolicy(Policy{Name: "custom", Roles: roles})
}
