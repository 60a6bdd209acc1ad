package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/tokengate/internal/config"
	"github.com/ahmetcoskunkizilkaya/tokengate/internal/models"
	"github.com/ahmetcoskunkizilkaya/tokengate/internal/store"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
)

var (
	ErrInvalidCredentials = errors.New("invalid mobile or verification code")
	ErrTokenNotFound      = errors.New("refresh token not found")
	ErrTokenExpired       = errors.New("refresh token expired")
	ErrTokenReused        = errors.New("refresh token reuse detected")
)

// UserDirectory is the external user-lookup capability. The token layer
// never creates or mutates users.
type UserDirectory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByMobile(ctx context.Context, mobile string) (*models.User, error)
}

// RequestMeta carries the requester attributes stored on refresh token
// rows and used for the fingerprint anomaly check.
type RequestMeta struct {
	IP          string
	UserAgent   string
	Fingerprint string
}

// TokenPair is what login and refresh hand back to the transport layer.
// ExpiresAt is the absolute expiry of the refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *models.User
}

// AuthService implements the refresh token lifecycle: issue at login,
// rotate on refresh, detect reuse, cascade revocation.
type AuthService struct {
	tokens store.RefreshTokenStore
	users  UserDirectory
	otp    OTPVerifier
	issuer *TokenIssuer
	cfg    *config.Config
	now    func() time.Time
}

func NewAuthService(tokens store.RefreshTokenStore, users UserDirectory, otp OTPVerifier, issuer *TokenIssuer, cfg *config.Config) *AuthService {
	return &AuthService{
		tokens: tokens,
		users:  users,
		otp:    otp,
		issuer: issuer,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Login exchanges a verified mobile identity for the first token pair of
// a new session lineage. The OTP check itself is delegated; delivery is
// out of scope.
func (s *AuthService) Login(ctx context.Context, mobile, code string, meta RequestMeta) (*TokenPair, error) {
	if err := s.otp.Verify(ctx, mobile, code); err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.FindByMobile(ctx, mobile)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	return s.issuePair(ctx, user, nil, meta)
}

// Refresh implements the rotation and reuse-detection protocol. Expiry is
// checked before reuse: an expired-but-never-used token is a less severe
// condition and must not trigger a cascade. Any presentation of an
// already-consumed token, including losing a rotation race, revokes the
// whole user's session set.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta RequestMeta) (*TokenPair, error) {
	tokenHash := HashToken(refreshToken)

	record, err := s.tokens.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	now := s.now()
	if now.After(record.ExpiresAt) {
		slog.Info("expired refresh token presented",
			"user_id", record.UserID.String(), "token_id", record.ID.String(), "ip", meta.IP)
		return nil, ErrTokenExpired
	}

	if record.Revoked {
		s.handleReuse(ctx, record, meta)
		return nil, ErrTokenReused
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		return nil, fmt.Errorf("user lookup failed during refresh: %w", err)
	}

	pair, err := s.issuePair(ctx, user, &tokenHash, meta)
	if errors.Is(err, store.ErrRotationConflict) {
		// Lost the race: someone else consumed this token between our read
		// and the conditional update. Indistinguishable from replay, so it
		// takes the reuse path.
		s.handleReuse(ctx, record, meta)
		return nil, ErrTokenReused
	}
	if err != nil {
		return nil, err
	}

	if record.Fingerprint != "" && meta.Fingerprint != record.Fingerprint {
		slog.Warn("refresh token fingerprint mismatch",
			"user_id", user.ID.String(), "token_id", record.ID.String(),
			"ip", meta.IP, "user_agent", meta.UserAgent)
	}

	return pair, nil
}

// Logout revokes the presented refresh token and terminates the whole
// session set of the authenticated user. Idempotent: unknown or already
// revoked tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	if refreshToken != "" {
		if err := s.tokens.Revoke(ctx, HashToken(refreshToken), models.ReasonLogout); err != nil {
			slog.Error("failed to revoke refresh token on logout",
				"user_id", userID.String(), "error", err.Error(), "action", "logout")
		}
	}
	_, err := s.RevokeAllTokens(ctx, userID, models.ReasonLogout)
	return err
}

// RevokeAllTokens is the revocation cascade: every live token of the user
// transitions to revoked in one pass. Safe to call repeatedly and
// concurrently; a second invocation simply affects zero rows.
func (s *AuthService) RevokeAllTokens(ctx context.Context, userID uuid.UUID, reason string) (int64, error) {
	affected, err := s.tokens.RevokeAllForUser(ctx, userID, reason)
	if err != nil {
		return 0, fmt.Errorf("revocation cascade failed: %w", err)
	}
	if affected > 0 {
		slog.Error("revocation cascade executed",
			"user_id", userID.String(), "action", "cascade", "reason", reason, "revoked", affected)
	}
	return affected, nil
}

func (s *AuthService) handleReuse(ctx context.Context, record *models.RefreshToken, meta RequestMeta) {
	reason := ""
	if record.RevokedReason != nil {
		reason = *record.RevokedReason
	}
	slog.Error("refresh token reuse detected",
		"user_id", record.UserID.String(), "token_id", record.ID.String(),
		"action", "token_reuse", "prior_state", reason,
		"ip", meta.IP, "user_agent", meta.UserAgent)
	sentry.CaptureMessage(fmt.Sprintf("refresh token reuse detected for user %s", record.UserID))

	// Cascade failure must not mask the reuse verdict; the next
	// presentation of any surviving token retriggers it.
	if _, err := s.tokens.RevokeAllForUser(ctx, record.UserID, models.ReasonReuse); err != nil {
		slog.Error("reuse-triggered cascade failed",
			"user_id", record.UserID.String(), "action", "cascade", "error", err.Error())
	}
}

// issuePair mints an access token and a successor (or root) refresh
// record. previousHash nil means login; otherwise the insert happens
// inside the store's atomic rotation.
func (s *AuthService) issuePair(ctx context.Context, user *models.User, previousHash *string, meta RequestMeta) (*TokenPair, error) {
	accessToken, err := s.issuer.IssueAccessToken(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshValue, err := IssueRefreshToken()
	if err != nil {
		return nil, err
	}

	record := &models.RefreshToken{
		ID:                uuid.New(),
		UserID:            user.ID,
		TokenHash:         HashToken(refreshValue),
		PreviousTokenHash: previousHash,
		ExpiresAt:         s.now().Add(s.cfg.JWTRefreshExpiry),
		Fingerprint:       meta.Fingerprint,
		IP:                meta.IP,
		UserAgent:         meta.UserAgent,
	}

	if previousHash == nil {
		err = s.tokens.Create(ctx, record)
	} else {
		err = s.tokens.Rotate(ctx, *previousHash, record)
	}
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshValue,
		ExpiresAt:    record.ExpiresAt,
		User:         user,
	}, nil
}
