package handlers

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/tokengate/internal/dto"
	"github.com/ahmetcoskunkizilkaya/tokengate/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/tokengate/internal/services"
	"github.com/gofiber/fiber/v2"
)

// sessionExpiredMessage is the single user-facing wording for every
// refresh failure kind. Expired, unknown and reused tokens must be
// indistinguishable from outside; the distinction lives in the audit
// trail only.
const sessionExpiredMessage = "Session expired. Please log in again."

type AuthHandler struct {
	authService *services.AuthService
	otpService  *services.OTPService
}

func NewAuthHandler(authService *services.AuthService, otpService *services.OTPService) *AuthHandler {
	return &AuthHandler{authService: authService, otpService: otpService}
}

func requestMeta(c *fiber.Ctx) services.RequestMeta {
	ip := c.IP()
	ua := c.Get("User-Agent")
	return services.RequestMeta{
		IP:          ip,
		UserAgent:   ua,
		Fingerprint: services.Fingerprint(ip, ua),
	}
}

func (h *AuthHandler) RequestOTP(c *fiber.Ctx) error {
	var req dto.RequestOTPRequest
	if err := c.BodyParser(&req); err != nil || req.Mobile == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	if err := h.otpService.Request(c.Context(), req.Mobile); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to send verification code",
		})
	}

	return c.JSON(fiber.Map{"message": "Verification code sent"})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	pair, err := h.authService.Login(c.Context(), req.Mobile, req.OTP, requestMeta(c))
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}

	return c.JSON(authResponse(pair))
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	pair, err := h.authService.Refresh(c.Context(), req.RefreshToken, requestMeta(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTokenNotFound),
			errors.Is(err, services.ErrTokenExpired),
			errors.Is(err, services.ErrTokenReused):
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: sessionExpiredMessage,
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}

	return c.JSON(authResponse(pair))
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	principal, err := middleware.GetPrincipal(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var req dto.LogoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	if err := h.authService.Logout(c.Context(), principal.UserID, req.RefreshToken); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to logout",
		})
	}

	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

func authResponse(pair *services.TokenPair) dto.AuthResponse {
	return dto.AuthResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
		User: dto.UserResponse{
			ID:     pair.User.ID,
			Mobile: pair.User.Mobile,
			Role:   pair.User.Role,
		},
	}
}
