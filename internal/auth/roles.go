package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Role identifies what a caller is allowed to do. Roles come from the token
// claims; this service keeps no account store of its own.
type Role string

const (
	// RoleAdmin manages SLA policies and runs administrative rebuilds.
	RoleAdmin Role = "ADMIN"
	// RoleSupervisor reads departmental dashboards and reports.
	RoleSupervisor Role = "SUPERVISOR"
	// RoleAgent works tickets.
	RoleAgent Role = "AGENT"
	// RoleIngestor is granted to upstream systems feeding lifecycle events.
	RoleIngestor Role = "INGESTOR"
)

// RequireRole ensures the principal carries one of the allowed roles.
func RequireRole(allowed ...Role) fiber.Handler {
	allowedSet := make(map[Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return fiber.NewError(http.StatusForbidden, "insufficient role")
		}
		return c.Next()
	}
}
