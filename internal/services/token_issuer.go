package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken covers every access token validation failure: bad
// signature, malformed claims, expiry. Callers get one uniform error so
// responses never reveal which check failed.
var ErrInvalidToken = errors.New("invalid or expired access token")

// Principal is the validated identity attached to authenticated requests
// and consumed by downstream role checks.
type Principal struct {
	UserID uuid.UUID
	Role   string
}

// TokenIssuer mints HS256 access tokens and opaque refresh values.
// Access tokens are stateless; refresh values carry no claims and are
// only meaningful as a lookup key (by hash) in the store.
type TokenIssuer struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

func NewTokenIssuer(secret string, accessTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
	}
}

func (i *TokenIssuer) IssueAccessToken(userID uuid.UUID, role string) (string, error) {
	now := i.now()
	claims := jwt.MapClaims{
		"sub":  userID.String(),
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(i.accessTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// ValidateAccessToken verifies signature and expiry with zero leeway; a
// token is rejected the instant its exp passes.
func (i *TokenIssuer) ValidateAccessToken(raw string) (*Principal, error) {
	token, err := jwt.Parse(raw,
		func(t *jwt.Token) (interface{}, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, ErrInvalidToken
	}
	role, _ := claims["role"].(string)

	return &Principal{UserID: userID, Role: role}, nil
}

// IssueRefreshToken produces a 256-bit random opaque value, base64url
// encoded. The value itself is returned to the client; only HashToken of
// it is ever persisted.
func IssueRefreshToken() (string, error) {
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.URLEncoding.EncodeToString(rawBytes), nil
}

func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", h)
}

// Fingerprint derives the device fingerprint recorded on refresh token
// rows: a hash over user agent and IP. Used as an anomaly signal only,
// never as a blocker.
func Fingerprint(ip, userAgent string) string {
	h := sha256.Sum256([]byte(userAgent + "|" + ip))
	return fmt.Sprintf("%x", h)
}
