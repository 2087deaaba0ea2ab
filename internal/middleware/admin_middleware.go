package middleware

import (
	"slices"
	"strings"

	"parish-media/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

// RequireRole checks that the authenticated user holds at least one of the given roles.
// It must run after AuthMiddleware.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals(utils.UserClaimsKey).(*utils.UserClaims)
		if !ok || claims == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		if !HasAnyRole(claims.Roles, roles) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Access denied: elevated role required",
			})
		}

		return c.Next()
	}
}

// HasAnyRole reports whether userRoles and allowed intersect, case-insensitively.
func HasAnyRole(userRoles, allowed []string) bool {
	for _, role := range userRoles {
		if slices.Contains(allowed, strings.ToLower(role)) {
			return true
		}
	}
	return false
}
