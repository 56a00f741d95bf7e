package handlers

import (
	"errors"
	"strings"
	"unicode"

	"qrmenu-api/apperror"
	"qrmenu-api/middleware"
	"qrmenu-api/models"
	"qrmenu-api/response"
	"qrmenu-api/statemachine"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BusinessSetupRequest struct {
	Name        string `json:"name" binding:"required,max=120"`
	Cuisine     string `json:"cuisine" binding:"max=60"`
	Address     string `json:"address" binding:"required,max=255"`
	Phone       string `json:"phone" binding:"max=20"`
	Description string `json:"description" binding:"max=1000"`
	LogoURL     string `json:"logo_url" binding:"omitempty,url"`
}

var errSetupDone = errors.New("business setup already completed")

// SetupBusiness completes onboarding: it creates the owner's business and
// clears first_login, which releases the account from the setup page.
func (h *Handler) SetupBusiness(c *gin.Context) {
	account := middleware.CurrentAccount(c)
	next, err := statemachine.Apply(statemachine.StateOf(account), statemachine.EventSetupCompleted)
	if err != nil {
		response.Fail(c, apperror.AlreadyProcessed("Business setup is already complete"))
		return
	}

	var req BusinessSetupRequest
	if !bind(c, &req) {
		return
	}

	biz := models.Business{
		AccountID:   account.ID,
		Name:        strings.TrimSpace(req.Name),
		Slug:        newSlug(req.Name),
		Cuisine:     req.Cuisine,
		Address:     req.Address,
		Phone:       req.Phone,
		Description: req.Description,
		LogoURL:     req.LogoURL,
		IsOpen:      true,
	}
	err = h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Account{}).
			Where("id = ? AND first_login = ?", account.ID, true).
			Update("first_login", next.FirstLogin)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return errSetupDone
		}
		return tx.Create(&biz).Error
	})
	if errors.Is(err, errSetupDone) {
		response.Fail(c, apperror.AlreadyProcessed("Business setup is already complete"))
		return
	}
	if err != nil {
		response.Fail(c, apperror.Upstream("Failed to create business", err))
		return
	}

	level.Info(h.Logger).Log("msg", "business setup completed", "account_id", account.ID, "business_id", biz.ID)
	response.Created(c, "Business created", gin.H{
		"business": biz,
		"redirect": middleware.OwnerHome,
	})
}

// GetMyBusiness fetches the business owned by the logged-in user
func (h *Handler) GetMyBusiness(c *gin.Context) {
	biz, ok := h.ownBusiness(c)
	if !ok {
		return
	}
	response.OK(c, "", gin.H{"business": biz})
}

// UpdateBusiness updates business details
func (h *Handler) UpdateBusiness(c *gin.Context) {
	biz, ok := h.ownBusiness(c)
	if !ok {
		return
	}
	var req map[string]interface{}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, response.BindError(err))
		return
	}
	// Only allow safe fields
	allowed := map[string]bool{"name": true, "cuisine": true, "address": true, "phone": true, "description": true, "logo_url": true, "is_open": true}
	update := map[string]interface{}{}
	for k, v := range req {
		if allowed[k] {
			update[k] = v
		}
	}
	if name, ok := update["name"].(string); ok && strings.TrimSpace(name) == "" {
		response.Fail(c, apperror.Field("name", "is required"))
		return
	}
	if len(update) == 0 {
		response.Fail(c, apperror.Validation("No updatable fields supplied", nil))
		return
	}

	db := h.DB.WithContext(c.Request.Context())
	if err := db.Model(biz).Updates(update).Error; err != nil {
		response.Fail(c, apperror.Upstream("Failed to update business", err))
		return
	}
	if err := db.First(biz, biz.ID).Error; err != nil {
		response.Fail(c, apperror.Upstream("Failed to load business", err))
		return
	}
	response.OK(c, "Business updated", gin.H{"business": biz})
}

// newSlug derives a URL-safe identifier from a business name with a random
// suffix so equal names never collide.
func newSlug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= 48 {
			break
		}
	}
	base := strings.Trim(b.String(), "-")
	if base == "" {
		base = "menu"
	}
	return base + "-" + uuid.NewString()[:8]
}
