package middleware

import (
	"strings"

	"parish-media/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

// AuthMiddleware validates JWT tokens and injects user claims into context
func AuthMiddleware(skipAuth bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if skipAuth {
			// Inject dummy context for dev
			c.Locals(utils.UserClaimsKey, &utils.UserClaims{
				UserID: "dev-admin-id",
				Roles:  []string{"admin"},
			})
			return c.Next()
		}

		claims, status, msg := parseBearer(c.Get("Authorization"))
		if claims == nil {
			return c.Status(status).JSON(fiber.Map{"error": msg})
		}

		c.Locals(utils.UserClaimsKey, claims)
		return c.Next()
	}
}

// OptionalAuthMiddleware attaches claims when a valid bearer token is present and
// otherwise lets the request through anonymously. A malformed or invalid token is
// still rejected so callers notice expired sessions.
func OptionalAuthMiddleware(skipAuth bool) fiber.Handler {
	required := AuthMiddleware(skipAuth)
	return func(c *fiber.Ctx) error {
		if !skipAuth && c.Get("Authorization") == "" {
			return c.Next()
		}
		return required(c)
	}
}

func parseBearer(authHeader string) (*utils.UserClaims, int, string) {
	if authHeader == "" {
		return nil, fiber.StatusUnauthorized, "Authorization header required"
	}

	// Extract token from "Bearer <token>"
	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
		return nil, fiber.StatusUnauthorized, "Invalid authorization header format"
	}

	claims, err := utils.ValidateToken(authHeader[7:])
	if err != nil {
		return nil, fiber.StatusUnauthorized, "Invalid token"
	}
	return claims, 0, ""
}
