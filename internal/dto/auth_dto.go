package dto

import (
	"time"

	"github.com/google/uuid"
)

type RequestOTPRequest struct {
	Mobile string `json:"mobile"`
}

type LoginRequest struct {
	Mobile string `json:"mobile"`
	OTP    string `json:"otp"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type AuthResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    time.Time    `json:"expiresAt"`
	User         UserResponse `json:"user"`
}

type UserResponse struct {
	ID     uuid.UUID `json:"id"`
	Mobile string    `json:"mobile"`
	Role   string    `json:"role"`
}

type RevokeResponse struct {
	Revoked int64 `json:"revoked"`
}

type ErrorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	DB        string `json:"db"`
}
