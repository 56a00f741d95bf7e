// Package reset implements the password reset flow: an emailed numeric OTP is
// exchanged for a single-use reset token, which is exchanged for a new password.
//
// One challenge exists per email. Requesting a new OTP supersedes the previous
// challenge, including any reset token it had issued.
package reset

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"qrmenu-api/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MinPasswordLength is the shortest accepted new password.
const MinPasswordLength = 8

var (
	ErrAccountNotFound       = errors.New("no account for email")
	ErrExpiredOTP            = errors.New("otp expired")
	ErrAttemptsExhausted     = errors.New("otp attempts exhausted")
	ErrInvalidCode           = errors.New("invalid otp")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired reset token")
	ErrWeakPassword          = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

type Config struct {
	OTPDigits   int
	OTPTTL      time.Duration
	MaxAttempts int
	TokenTTL    time.Duration
}

// DefaultConfig is a 6-digit OTP valid for 5 minutes with 3 guesses, and a
// reset token valid for 15 minutes.
var DefaultConfig = Config{
	OTPDigits:   6,
	OTPTTL:      5 * time.Minute,
	MaxAttempts: 3,
	TokenTTL:    15 * time.Minute,
}

type Service struct {
	db  *gorm.DB
	cfg Config
	now func() time.Time
}

func NewService(db *gorm.DB, cfg Config) *Service {
	return &Service{db: db, cfg: cfg, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Config returns the service settings.
func (s *Service) Config() Config {
	return s.cfg
}

// Challenge is a freshly issued OTP. Code is only ever held in memory long
// enough to email it.
type Challenge struct {
	Email     string
	Code      string
	ExpiresAt time.Time
}

// Verification is the reset token issued for a verified OTP.
type Verification struct {
	Token     string
	ExpiresAt time.Time
}

// NormalizeEmail is the canonical form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateChallenge issues a new OTP for email, replacing any earlier challenge.
// It returns ErrAccountNotFound for unknown emails; callers must not reveal
// that to the requester.
func (s *Service) CreateChallenge(ctx context.Context, email string) (Challenge, error) {
	email = NormalizeEmail(email)
	now := s.now().UTC()
	db := s.db.WithContext(ctx)

	if err := s.purgeExpired(ctx, now); err != nil {
		return Challenge{}, err
	}

	var account models.Account
	if err := db.Select("id").Where("email = ?", email).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Challenge{}, ErrAccountNotFound
		}
		return Challenge{}, fmt.Errorf("looking up account: %w", err)
	}

	code, err := randomDigits(s.cfg.OTPDigits)
	if err != nil {
		return Challenge{}, err
	}

	ch := models.PasswordResetChallenge{
		Email:             email,
		AccountID:         account.ID,
		OTPHash:           digest(code),
		OTPExpiresAt:      now.Add(s.cfg.OTPTTL),
		AttemptsRemaining: s.cfg.MaxAttempts,
	}
	err = db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"account_id", "otp_hash", "otp_expires_at", "attempts_remaining",
			"otp_used_at", "reset_token_hash", "reset_token_expires_at", "updated_at",
		}),
	}).Create(&ch).Error
	if err != nil {
		return Challenge{}, fmt.Errorf("saving challenge: %w", err)
	}

	return Challenge{Email: email, Code: code, ExpiresAt: ch.OTPExpiresAt}, nil
}

// VerifyOTP checks code against the active challenge for email. A wrong code
// uses up one attempt and the remaining count is returned alongside
// ErrInvalidCode. A correct code is consumed and replaced by a reset token.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (Verification, int, error) {
	email = NormalizeEmail(email)
	now := s.now().UTC()
	db := s.db.WithContext(ctx)

	var ch models.PasswordResetChallenge
	if err := db.Where("email = ?", email).First(&ch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Verification{}, 0, ErrInvalidOrExpiredToken
		}
		return Verification{}, 0, fmt.Errorf("loading challenge: %w", err)
	}

	if ch.OTPUsedAt != nil {
		return Verification{}, 0, ErrInvalidOrExpiredToken
	}
	if now.After(ch.OTPExpiresAt) {
		if err := db.Delete(&models.PasswordResetChallenge{}, ch.ID).Error; err != nil {
			return Verification{}, 0, fmt.Errorf("purging challenge: %w", err)
		}
		return Verification{}, 0, ErrExpiredOTP
	}
	if ch.AttemptsRemaining <= 0 {
		return Verification{}, 0, ErrAttemptsExhausted
	}

	if subtle.ConstantTimeCompare([]byte(digest(code)), []byte(ch.OTPHash)) != 1 {
		remaining, err := s.spendAttempt(ctx, ch.ID)
		return Verification{}, remaining, err
	}

	token, err := randomToken()
	if err != nil {
		return Verification{}, 0, err
	}
	tokenHash := digest(token)
	expires := now.Add(s.cfg.TokenTTL)

	// Only the request that flips otp_used_at wins; a superseding challenge
	// changes otp_hash and also loses this race.
	res := db.Model(&models.PasswordResetChallenge{}).
		Where("id = ? AND otp_used_at IS NULL AND otp_hash = ?", ch.ID, ch.OTPHash).
		Updates(map[string]interface{}{
			"otp_used_at":            now,
			"reset_token_hash":       tokenHash,
			"reset_token_expires_at": expires,
		})
	if res.Error != nil {
		return Verification{}, 0, fmt.Errorf("issuing reset token: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return Verification{}, 0, ErrInvalidOrExpiredToken
	}
	return Verification{Token: token, ExpiresAt: expires}, ch.AttemptsRemaining, nil
}

func (s *Service) spendAttempt(ctx context.Context, id uint) (int, error) {
	db := s.db.WithContext(ctx)
	res := db.Model(&models.PasswordResetChallenge{}).
		Where("id = ? AND attempts_remaining > 0 AND otp_used_at IS NULL", id).
		UpdateColumn("attempts_remaining", gorm.Expr("attempts_remaining - ?", 1))
	if res.Error != nil {
		return 0, fmt.Errorf("recording attempt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, ErrAttemptsExhausted
	}

	var ch models.PasswordResetChallenge
	if err := db.Select("attempts_remaining").First(&ch, id).Error; err != nil {
		return 0, fmt.Errorf("loading challenge: %w", err)
	}
	return ch.AttemptsRemaining, ErrInvalidCode
}

// ResetPassword redeems token and sets the account's password. The token is
// consumed by the same transaction that writes the new hash, so of two
// concurrent redemptions only one succeeds.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return ErrWeakPassword
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidOrExpiredToken
	}
	tokenHash := digest(token)
	now := s.now().UTC()
	db := s.db.WithContext(ctx)

	var ch models.PasswordResetChallenge
	if err := db.Where("reset_token_hash = ?", tokenHash).First(&ch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("loading challenge: %w", err)
	}
	if ch.ResetTokenExpiresAt == nil || now.After(*ch.ResetTokenExpiresAt) {
		if err := db.Delete(&models.PasswordResetChallenge{}, ch.ID).Error; err != nil {
			return fmt.Errorf("purging challenge: %w", err)
		}
		return ErrInvalidOrExpiredToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND reset_token_hash = ? AND reset_token_expires_at >= ?", ch.ID, tokenHash, now).
			Delete(&models.PasswordResetChallenge{})
		if res.Error != nil {
			return fmt.Errorf("consuming reset token: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return ErrInvalidOrExpiredToken
		}

		res = tx.Model(&models.Account{}).Where("id = ?", ch.AccountID).Update("password_hash", string(hash))
		if res.Error != nil {
			return fmt.Errorf("updating password: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return ErrInvalidOrExpiredToken
		}
		return nil
	})
}

// purgeExpired drops challenges whose OTP and reset token have both lapsed.
func (s *Service) purgeExpired(ctx context.Context, now time.Time) error {
	err := s.db.WithContext(ctx).
		Where("otp_expires_at < ? AND (reset_token_expires_at IS NULL OR reset_token_expires_at < ?)", now, now).
		Delete(&models.PasswordResetChallenge{}).Error
	if err != nil {
		return fmt.Errorf("purging challenges: %w", err)
	}
	return nil
}

func digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func randomDigits(n int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generating otp: %w", err)
	}
	return fmt.Sprintf("%0*d", n, v), nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating reset token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
