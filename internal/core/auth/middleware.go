package auth

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// claimsKey is the fiber.Ctx locals key under which verified claims are stored.
const claimsKey = "auth_claims"

// Middleware returns a Fiber handler that enforces a valid bearer token.
// On success the verified claims are stored in the request locals.
func Middleware(tokens *TokenManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization header",
			})
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header",
			})
		}

		claims, err := tokens.Verify(tokenString)
		if err != nil {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

// RequireStaff returns a handler that rejects non-staff principals.
// It must run after Middleware.
func RequireStaff() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := ClaimsFromCtx(c)
		if claims == nil || !claims.IsStaff() {
			return c.Status(http.StatusForbidden).JSON(fiber.Map{
				"error": "Insufficient permissions",
			})
		}
		return c.Next()
	}
}

// RequireAdmin returns a handler that rejects everyone but administrators.
// It must run after Middleware.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := ClaimsFromCtx(c)
		if claims == nil || claims.Role != RoleAdmin {
			return c.Status(http.StatusForbidden).JSON(fiber.Map{
				"error": "Insufficient permissions",
			})
		}
		return c.Next()
	}
}

// ClaimsFromCtx returns the verified claims stored by Middleware, or nil.
func ClaimsFromCtx(c *fiber.Ctx) *Claims {
	claims, _ := c.Locals(claimsKey).(*Claims)
	return claims
}
