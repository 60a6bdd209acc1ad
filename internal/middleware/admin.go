package middleware

import (
	"github.com/ahmetcoskunkizilkaya/tokengate/internal/config"
	"github.com/ahmetcoskunkizilkaya/tokengate/internal/dto"
	"github.com/gofiber/fiber/v2"
)

// AdminRequired gates administrative routes. Access is granted by the
// shared admin token header or by an authenticated principal carrying the
// admin role.
func AdminRequired(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.AdminToken != "" && c.Get("X-Admin-Token") == cfg.AdminToken {
			return c.Next()
		}

		principal, err := GetPrincipal(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		}
		if principal.Role == "admin" {
			return c.Next()
		}

		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: true, Message: "Admin access required",
		})
	}
}
