package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const UserIDKey = "user_id"

// Middleware extracts the bearer token, verifies it and stores the caller's
// user id in locals. Requests without a valid identity get a 401.
func Middleware(v *Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing token"})
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")
		userID, err := v.Verify(tokenStr)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}
		c.Locals(UserIDKey, userID)
		return c.Next()
	}
}

// UserID reads the authenticated caller's id from locals.
func UserID(c *fiber.Ctx) string {
	if v, ok := c.Locals(UserIDKey).(string); ok {
		return v
	}
	return ""
}
