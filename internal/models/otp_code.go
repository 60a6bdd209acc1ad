package models

import (
	"time"

	"github.com/google/uuid"
)

// OTPCode is a pending one-time login code. Only the bcrypt hash is kept;
// the clear code goes out through the (external) delivery gateway and is
// never persisted.
type OTPCode struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Mobile    string    `gorm:"not null;size:20;index" json:"mobile"`
	CodeHash  string    `gorm:"not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
