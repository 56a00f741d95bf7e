package handlers

import (
	"errors"
	"strconv"

	"qrmenu-api/apperror"
	"qrmenu-api/approval"
	"qrmenu-api/filehost"
	"qrmenu-api/middleware"
	"qrmenu-api/models"
	"qrmenu-api/notify"
	"qrmenu-api/ratelimit"
	"qrmenu-api/reset"
	"qrmenu-api/response"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"gorm.io/gorm"
)

// Handler carries the dependencies of every HTTP handler.
type Handler struct {
	DB       *gorm.DB
	Logger   log.Logger
	Sessions *middleware.Sessions
	Reset    *reset.Service
	Approval *approval.Service
	Mailer   notify.Mailer
	Files    filehost.Uploader

	// ResetRequests throttles OTP requests per IP and per email.
	ResetRequests *ratelimit.Limiter
	// OTPVerify throttles code guesses per IP and email pair.
	OTPVerify *ratelimit.Limiter

	// AppBaseURL is the public origin QR codes point at.
	AppBaseURL    string
	SecureCookies bool
}

// bind decodes the request into v, answering 400 with field errors on failure.
func bind(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBind(v); err != nil {
		response.Fail(c, response.BindError(err))
		return false
	}
	return true
}

func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		response.Fail(c, apperror.Field(name, "must be a positive integer"))
		return 0, false
	}
	return uint(id), true
}

// ownBusiness loads the business of the calling owner, answering 404 when
// setup has not been completed.
func (h *Handler) ownBusiness(c *gin.Context) (*models.Business, bool) {
	var biz models.Business
	err := h.DB.WithContext(c.Request.Context()).
		Where("account_id = ?", middleware.GetUserID(c)).
		First(&biz).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Fail(c, apperror.NotFound("Complete business setup first"))
		} else {
			response.Fail(c, apperror.Upstream("Failed to load business", err))
		}
		return nil, false
	}
	return &biz, true
}
