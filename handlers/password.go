package handlers

import (
	"errors"
	"fmt"
	"time"

	"qrmenu-api/apperror"
	"qrmenu-api/metrics"
	"qrmenu-api/middleware"
	"qrmenu-api/reset"
	"qrmenu-api/response"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log/level"
)

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type VerifyOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required,numeric"`
}

type ResetPasswordRequest struct {
	Token           string `json:"token" binding:"required"`
	Password        string `json:"password" binding:"required,min=8"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=Password"`
}

const resetRequestedMessage = "If an account exists for that email, a verification code has been sent."

// RequestPasswordReset emails a one-time code. The answer is the same whether
// or not the email belongs to an account.
func (h *Handler) RequestPasswordReset(c *gin.Context) {
	var req ForgotPasswordRequest
	if !bind(c, &req) {
		return
	}
	email := reset.NormalizeEmail(req.Email)
	if !middleware.Throttle(c, h.ResetRequests, "email:"+email, h.Logger) {
		return
	}

	ctx := c.Request.Context()
	expiryMinutes := int(h.Reset.Config().OTPTTL / time.Minute)
	ch, err := h.Reset.CreateChallenge(ctx, email)
	switch {
	case errors.Is(err, reset.ErrAccountNotFound):
		metrics.PasswordReset.With("stage", "request", "outcome", "unknown_email").Add(1)
		response.OK(c, resetRequestedMessage, gin.H{"expires_in_minutes": expiryMinutes})
		return
	case err != nil:
		metrics.PasswordReset.With("stage", "request", "outcome", "error").Add(1)
		response.Fail(c, apperror.Upstream("Failed to start password reset", err))
		return
	}

	if err := h.Mailer.SendPasswordResetOTP(ctx, ch.Email, ch.Code, expiryMinutes); err != nil {
		metrics.NotificationFailures.With("kind", "password_reset_otp").Add(1)
		level.Error(h.Logger).Log("msg", "password reset email failed", "err", err)
	}
	metrics.PasswordReset.With("stage", "request", "outcome", "issued").Add(1)
	response.OK(c, resetRequestedMessage, gin.H{"expires_in_minutes": expiryMinutes})
}

// VerifyOTP exchanges a correct code for a reset token.
func (h *Handler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if !bind(c, &req) {
		return
	}
	email := reset.NormalizeEmail(req.Email)
	key := c.ClientIP() + ":" + email
	if !middleware.Throttle(c, h.OTPVerify, key, h.Logger) {
		return
	}

	v, remaining, err := h.Reset.VerifyOTP(c.Request.Context(), email, req.Code)
	if err != nil {
		metrics.PasswordReset.With("stage", "verify", "outcome", outcomeOf(err)).Add(1)
		switch {
		case errors.Is(err, reset.ErrInvalidCode):
			response.Fail(c, apperror.Field("code", fmt.Sprintf("is incorrect, %d attempt(s) remaining", remaining)))
		case errors.Is(err, reset.ErrExpiredOTP):
			response.Fail(c, apperror.Field("code", "has expired, request a new one"))
		case errors.Is(err, reset.ErrAttemptsExhausted):
			if err := h.OTPVerify.Exhaust(c.Request.Context(), key); err != nil {
				level.Warn(h.Logger).Log("msg", "rate limit store unavailable", "limiter", h.OTPVerify.Name, "err", err)
			}
			response.Fail(c, apperror.Field("code", "too many incorrect attempts, request a new one"))
		case errors.Is(err, reset.ErrInvalidOrExpiredToken):
			response.Fail(c, apperror.Field("code", "is invalid or has already been used"))
		default:
			response.Fail(c, apperror.Upstream("Failed to verify code", err))
		}
		return
	}

	metrics.PasswordReset.With("stage", "verify", "outcome", "ok").Add(1)
	response.OK(c, "Code verified", gin.H{
		"token":      v.Token,
		"expires_at": v.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// ResetPassword sets a new password using a reset token. Each token works once.
func (h *Handler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if !bind(c, &req) {
		return
	}

	err := h.Reset.ResetPassword(c.Request.Context(), req.Token, req.Password)
	if err != nil {
		metrics.PasswordReset.With("stage", "commit", "outcome", outcomeOf(err)).Add(1)
		switch {
		case errors.Is(err, reset.ErrWeakPassword):
			response.Fail(c, apperror.Field("password", err.Error()))
		case errors.Is(err, reset.ErrInvalidOrExpiredToken):
			response.Fail(c, apperror.Field("token", "is invalid or has expired"))
		default:
			response.Fail(c, apperror.Upstream("Failed to reset password", err))
		}
		return
	}

	metrics.PasswordReset.With("stage", "commit", "outcome", "ok").Add(1)
	response.OK(c, "Password updated. You can now log in.", nil)
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, reset.ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, reset.ErrExpiredOTP):
		return "expired"
	case errors.Is(err, reset.ErrAttemptsExhausted):
		return "exhausted"
	case errors.Is(err, reset.ErrInvalidOrExpiredToken):
		return "invalid_token"
	case errors.Is(err, reset.ErrWeakPassword):
		return "weak_password"
	}
	return "error"
}
