package models

import (
	"time"

	"github.com/google/uuid"
)

// Reasons a refresh token left the active state. "rotated" is the one
// legitimate exit; everything else is a revocation.
const (
	ReasonRotated = "rotated"
	ReasonReuse   = "reuse"
	ReasonLogout  = "logout"
	ReasonAdmin   = "admin"
)

// RefreshToken is one link in a login session's rotation lineage. The raw
// opaque value is never stored, only its SHA-256 hash. PreviousTokenHash
// points at the token this one rotated from; nil marks the lineage root
// created at login. A row is mutated exactly once, to set Revoked.
type RefreshToken struct {
	ID                uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID            uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	TokenHash         string    `gorm:"uniqueIndex;not null;size:64" json:"-"`
	PreviousTokenHash *string   `gorm:"size:64;index" json:"-"`
	ExpiresAt         time.Time `gorm:"not null;index" json:"expires_at"`
	Revoked           bool      `gorm:"default:false" json:"revoked"`
	RevokedReason     *string   `gorm:"size:20" json:"-"`
	Fingerprint       string    `gorm:"size:64" json:"-"`
	IP                string    `gorm:"size:45" json:"-"`
	UserAgent         string    `gorm:"size:255" json:"-"`
	CreatedAt         time.Time `json:"created_at"`
	User              User      `gorm:"foreignKey:UserID" json:"-"`
}

// Usable reports whether the record may still be exchanged: not revoked,
// not rotated, not past its expiry at the given instant.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
