package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ahmetcoskunkizilkaya/tokengate/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// OTPVerifier is the identity check consumed by login. Implementations
// decide how a code was delivered and stored.
type OTPVerifier interface {
	Verify(ctx context.Context, mobile, code string) error
}

// OTPSender delivers a code to the user. The real SMS/email gateway is
// external; the default implementation only logs that a code went out.
type OTPSender interface {
	Send(ctx context.Context, mobile, code string) error
}

// LogSender stands in for the delivery gateway.
type LogSender struct{}

func (LogSender) Send(_ context.Context, mobile, _ string) error {
	slog.Info("otp dispatched", "mobile", mobile)
	return nil
}

// OTPService generates and verifies one-time login codes. Codes are
// stored bcrypt-hashed and consumed on first successful verification.
type OTPService struct {
	db     *gorm.DB
	sender OTPSender
	expiry time.Duration
}

func NewOTPService(db *gorm.DB, sender OTPSender, expiry time.Duration) *OTPService {
	return &OTPService{db: db, sender: sender, expiry: expiry}
}

// Request generates a six digit code, stores its hash and hands the clear
// code to the sender.
func (s *OTPService) Request(ctx context.Context, mobile string) error {
	code, err := generateCode()
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash otp code: %w", err)
	}

	record := models.OTPCode{
		Mobile:    mobile,
		CodeHash:  string(hash),
		ExpiresAt: time.Now().Add(s.expiry),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to store otp code: %w", err)
	}

	return s.sender.Send(ctx, mobile, code)
}

// Verify checks the code against the latest unexpired hash for the mobile
// and deletes all pending codes for it on success (single use).
func (s *OTPService) Verify(ctx context.Context, mobile, code string) error {
	var record models.OTPCode
	err := s.db.WithContext(ctx).
		Where("mobile = ? AND expires_at > ?", mobile, time.Now()).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("failed to look up otp code: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(record.CodeHash), []byte(code)); err != nil {
		return ErrInvalidCredentials
	}

	if err := s.db.WithContext(ctx).Where("mobile = ?", mobile).Delete(&models.OTPCode{}).Error; err != nil {
		slog.Error("failed to consume otp codes", "mobile", mobile, "error", err.Error())
	}
	return nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
