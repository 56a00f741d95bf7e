package models

import "time"

// PasswordResetChallenge holds the active OTP, and once verified the reset
// token, for one email. Secrets are stored as sha256 hex digests.
type PasswordResetChallenge struct {
	ID                  uint       `gorm:"primaryKey"`
	Email               string     `gorm:"uniqueIndex;not null"`
	AccountID           uint       `gorm:"not null"`
	OTPHash             string     `gorm:"not null"`
	OTPExpiresAt        time.Time  `gorm:"not null"`
	AttemptsRemaining   int        `gorm:"not null"`
	OTPUsedAt           *time.Time
	ResetTokenHash      *string    `gorm:"uniqueIndex"`
	ResetTokenExpiresAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
