package middleware

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/tokengate/internal/config"
	"github.com/ahmetcoskunkizilkaya/tokengate/internal/dto"
	"github.com/ahmetcoskunkizilkaya/tokengate/internal/services"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func JWTProtected(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "Unauthorized: invalid or expired token",
			})
		},
	})
}

// GetPrincipal extracts the validated {userId, role} identity from the
// JWT placed in context by JWTProtected. Downstream permission checks
// consume this and nothing else from the token.
func GetPrincipal(c *fiber.Ctx) (services.Principal, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok || token == nil {
		return services.Principal{}, errors.New("invalid token in context")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return services.Principal{}, errors.New("invalid claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return services.Principal{}, errors.New("missing sub claim")
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return services.Principal{}, err
	}

	role, _ := claims["role"].(string)
	return services.Principal{UserID: userID, Role: role}, nil
}
