package handlers

import (
	"errors"
	"fmt"
	"time"

	"qrmenu-api/apperror"
	"qrmenu-api/filehost"
	"qrmenu-api/metrics"
	"qrmenu-api/middleware"
	"qrmenu-api/models"
	"qrmenu-api/reset"
	"qrmenu-api/response"
	"qrmenu-api/statemachine"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log/level"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type SignupForm struct {
	BusinessName string `form:"business_name" json:"business_name" binding:"required,max=120"`
	Email        string `form:"email" json:"email" binding:"required,email"`
	Phone        string `form:"phone" json:"phone" binding:"required,min=7,max=20"`
	Password     string `form:"password" json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Signup registers a pending owner account and files its signup request
// with the uploaded license document.
func (h *Handler) Signup(c *gin.Context) {
	var form SignupForm
	if !bind(c, &form) {
		return
	}
	email := reset.NormalizeEmail(form.Email)
	ctx := c.Request.Context()
	db := h.DB.WithContext(ctx)

	fields := map[string][]string{}
	var n int64
	if err := db.Model(&models.Account{}).Where("email = ?", email).Count(&n).Error; err != nil {
		response.Fail(c, apperror.Upstream("Failed to create account", err))
		return
	}
	if n > 0 {
		fields["email"] = []string{"is already registered"}
	}
	if err := db.Model(&models.Account{}).Where("phone = ?", form.Phone).Count(&n).Error; err != nil {
		response.Fail(c, apperror.Upstream("Failed to create account", err))
		return
	}
	if n > 0 {
		fields["phone"] = []string{"is already registered"}
	}
	if len(fields) > 0 {
		metrics.Signups.With("outcome", "conflict").Add(1)
		response.Fail(c, apperror.Validation("Validation failed", fields))
		return
	}

	fh, err := c.FormFile("license_document")
	if err != nil {
		response.Fail(c, apperror.Field("license_document", "is required"))
		return
	}
	if fh.Size > filehost.MaxUploadBytes {
		response.Fail(c, apperror.Field("license_document", fmt.Sprintf("must be at most %d MB", filehost.MaxUploadBytes>>20)))
		return
	}
	name, err := filehost.ObjectName("licenses", fh.Filename)
	if err != nil {
		response.Fail(c, apperror.Field("license_document", "must be a PDF or image"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(form.Password), bcrypt.DefaultCost)
	if err != nil {
		response.Fail(c, apperror.Upstream("Failed to create account", err))
		return
	}

	f, err := fh.Open()
	if err != nil {
		response.Fail(c, apperror.Upstream("Failed to read license document", err))
		return
	}
	defer f.Close()
	licenseURL, err := h.Files.Upload(ctx, name, f)
	if err != nil {
		metrics.Signups.With("outcome", "upload_failed").Add(1)
		if errors.Is(err, filehost.ErrTooLarge) {
			response.Fail(c, apperror.Field("license_document", "is too large"))
			return
		}
		response.Fail(c, apperror.Upstream("Failed to upload license document", err))
		return
	}

	account := models.Account{
		Email:        email,
		Phone:        form.Phone,
		PasswordHash: string(hash),
		Role:         models.RoleOwner,
		Status:       models.AccountPending,
		FirstLogin:   true,
	}
	request := models.SignupRequest{
		BusinessName:       form.BusinessName,
		BusinessEmail:      email,
		Phone:              form.Phone,
		LicenseDocumentURL: licenseURL,
		Status:             models.SignupPending,
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&account).Error; err != nil {
			return err
		}
		request.AccountID = account.ID
		return tx.Create(&request).Error
	})
	if err != nil {
		metrics.Signups.With("outcome", "error").Add(1)
		response.Fail(c, apperror.Upstream("Failed to create account", err))
		return
	}

	metrics.Signups.With("outcome", "created").Add(1)
	level.Info(h.Logger).Log("msg", "signup received", "account_id", account.ID, "request_id", request.ID)
	response.Created(c, "Signup received. You will be notified by email once your account is reviewed.", gin.H{
		"account":        account,
		"signup_request": request,
	})
}

// Login authenticates an approved account and starts a session.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if !bind(c, &req) {
		return
	}

	var account models.Account
	err := h.DB.WithContext(c.Request.Context()).Where("email = ?", reset.NormalizeEmail(req.Email)).First(&account).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		response.Fail(c, apperror.Upstream("Login failed", err))
		return
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)) != nil {
		metrics.Logins.With("outcome", "invalid").Add(1)
		response.Fail(c, apperror.Unauthorized("Invalid email or password"))
		return
	}

	state := statemachine.StateOf(&account)
	switch state.Kind {
	case statemachine.StatePending:
		metrics.Logins.With("outcome", "pending").Add(1)
		response.Fail(c, apperror.Forbidden("Your account is awaiting approval"))
		return
	case statemachine.StateRejected:
		metrics.Logins.With("outcome", "rejected").Add(1)
		response.Fail(c, apperror.Forbidden("Your signup request was rejected"))
		return
	}

	token, expires, err := h.Sessions.Issue(&account)
	if err != nil {
		response.Fail(c, apperror.Upstream("Failed to generate token", err))
		return
	}
	middleware.SetCookie(c, token, h.Sessions.TTL(), h.SecureCookies)
	metrics.Logins.With("outcome", "ok").Add(1)

	response.OK(c, "Login successful", gin.H{
		"token":      token,
		"expires_at": expires.UTC().Format(time.RFC3339),
		"user":       account,
		"redirect":   landingPage(state),
	})
}

// landingPage is where the client should navigate after login.
func landingPage(s statemachine.AccountState) string {
	if s.FirstLogin {
		return middleware.OnboardingPath
	}
	if home := middleware.HomeFor(s.Role); home != "" {
		return home
	}
	return middleware.LoginPath
}

// Logout clears the session cookie.
func (h *Handler) Logout(c *gin.Context) {
	middleware.ClearCookie(c, h.SecureCookies)
	response.OK(c, "Logged out", nil)
}

// Me returns the authenticated user's profile
func (h *Handler) Me(c *gin.Context) {
	account := middleware.CurrentAccount(c)
	if account == nil {
		response.Fail(c, apperror.Unauthorized("Authentication required"))
		return
	}
	state := statemachine.StateOf(account)
	response.OK(c, "", gin.H{
		"user":     account,
		"state":    state.Kind.String(),
		"redirect": landingPage(state),
	})
}
