package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting. Values come from the environment, with an
// optional .env file loaded first.
type Config struct {
	Port    string
	GinMode string

	DBDriver string
	DBDSN    string

	JWTSecret  []byte
	SessionTTL time.Duration

	// AppBaseURL is the public origin used to build QR targets.
	AppBaseURL string

	RedisURL string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	FileHostURL    string
	FileHostAPIKey string

	SuperAdminEmail    string
	SuperAdminPassword string

	OTPDigits     int
	OTPTTL        time.Duration
	OTPAttempts   int
	ResetTokenTTL time.Duration

	ResetRequestWindow time.Duration
	ResetRequestMax    int
	OTPVerifyWindow    time.Duration
	OTPVerifyMax       int
}

const devJWTSecret = "qrmenu_dev_secret_change_me"

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),
		DBDriver: getEnv("DB_DRIVER", "sqlite"),
		DBDSN:    getEnv("DB_DSN", "qrmenu.db"),

		AppBaseURL: getEnv("APP_BASE_URL", "http://localhost:3000"),
		RedisURL:   os.Getenv("REDIS_URL"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     getEnv("SMTP_FROM", "no-reply@qrmenu.local"),

		FileHostURL:    os.Getenv("FILE_HOST_URL"),
		FileHostAPIKey: os.Getenv("FILE_HOST_API_KEY"),

		SuperAdminEmail:    os.Getenv("SUPER_ADMIN_EMAIL"),
		SuperAdminPassword: os.Getenv("SUPER_ADMIN_PASSWORD"),
	}

	var err error
	if cfg.SMTPPort, err = getInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.OTPDigits, err = getInt("OTP_DIGITS", 6); err != nil {
		return nil, err
	}
	if cfg.OTPTTL, err = getDuration("OTP_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.OTPAttempts, err = getInt("OTP_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.ResetTokenTTL, err = getDuration("RESET_TOKEN_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ResetRequestWindow, err = getDuration("RESET_REQUEST_WINDOW", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ResetRequestMax, err = getInt("RESET_REQUEST_MAX", 3); err != nil {
		return nil, err
	}
	if cfg.OTPVerifyWindow, err = getDuration("OTP_VERIFY_WINDOW", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.OTPVerifyMax, err = getInt("OTP_VERIFY_MAX", 3); err != nil {
		return nil, err
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		if cfg.GinMode == "release" {
			return nil, errors.New("JWT_SECRET required in release mode")
		}
		secret = devJWTSecret
	}
	cfg.JWTSecret = []byte(secret)

	if cfg.OTPDigits < 4 || cfg.OTPDigits > 10 {
		return nil, fmt.Errorf("OTP_DIGITS must be between 4 and 10, got %d", cfg.OTPDigits)
	}
	if cfg.ResetTokenTTL <= cfg.OTPTTL {
		return nil, errors.New("RESET_TOKEN_TTL must be longer than OTP_TTL")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
