package authmw

import (
	"time"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin   = "Admin"
	RoleTutor   = "Tutor"
	RoleStudent = "Student"
)

type PrincipalKind string

const (
	KindUser    PrincipalKind = "user"
	KindService PrincipalKind = "service"
)

const (
	CtxPrincipal = "principal"
	CtxUserID    = "user_id"
	CtxRole      = "role"
)

// Principal is the authenticated caller of a request. For service principals
// Subject is the calling client and Role is empty.
type Principal struct {
	Kind      PrincipalKind
	Subject   string
	Email     string
	Role      string
	Scope     string
	TokenID   string
	ExpiresAt time.Time
}

func (p *Principal) IsService() bool { return p.Kind == KindService }

func setPrincipal(c echo.Context, p *Principal) {
	c.Set(CtxPrincipal, p)
	c.Set(CtxUserID, p.Subject)
	c.Set(CtxRole, p.Role)
}

func PrincipalFrom(c echo.Context) (*Principal, bool) {
	p, ok := c.Get(CtxPrincipal).(*Principal)
	return p, ok && p != nil
}
