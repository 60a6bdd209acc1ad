package handlers

import (
	"github.com/ahmetcoskunkizilkaya/tokengate/internal/dto"
	"github.com/ahmetcoskunkizilkaya/tokengate/internal/models"
	"github.com/ahmetcoskunkizilkaya/tokengate/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// AdminHandler exposes the force-logout seam used by administrative
// tooling.
type AdminHandler struct {
	authService *services.AuthService
}

func NewAdminHandler(authService *services.AuthService) *AdminHandler {
	return &AdminHandler{authService: authService}
}

// RevokeUserTokens cascades revocation for the given user.
func (h *AdminHandler) RevokeUserTokens(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid user id",
		})
	}

	revoked, err := h.authService.RevokeAllTokens(c.Context(), userID, models.ReasonAdmin)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to revoke tokens",
		})
	}

	return c.JSON(dto.RevokeResponse{Revoked: revoked})
}
