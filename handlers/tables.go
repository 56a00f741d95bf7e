package handlers

import (
	"fmt"
	"net/url"
	"strings"

	"qrmenu-api/apperror"
	"qrmenu-api/models"
	"qrmenu-api/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CreateTablesRequest struct {
	Count       int    `json:"count" binding:"required,gt=0,max=100"`
	LabelPrefix string `json:"label_prefix" binding:"max=40"`
}

// qrTarget is the public menu URL encoded in a table's QR code.
func (h *Handler) qrTarget(slug, code string) string {
	return fmt.Sprintf("%s/menu/%s?table=%s", strings.TrimRight(h.AppBaseURL, "/"), url.PathEscape(slug), url.QueryEscape(code))
}

// CreateTables adds count tables numbered after the highest existing one.
func (h *Handler) CreateTables(c *gin.Context) {
	biz, ok := h.ownBusiness(c)
	if !ok {
		return
	}
	var req CreateTablesRequest
	if !bind(c, &req) {
		return
	}
	prefix := strings.TrimSpace(req.LabelPrefix)
	if prefix == "" {
		prefix = "Table"
	}

	var tables []models.Table
	err := h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var last int
		if err := tx.Model(&models.Table{}).Where("business_id = ?", biz.ID).
			Select("COALESCE(MAX(number), 0)").Scan(&last).Error; err != nil {
			return err
		}
		tables = make([]models.Table, req.Count)
		for i := range tables {
			n := last + i + 1
			code := uuid.NewString()
			tables[i] = models.Table{
				BusinessID: biz.ID,
				Number:     n,
				Label:      fmt.Sprintf("%s %d", prefix, n),
				Code:       code,
				QRTarget:   h.qrTarget(biz.Slug, code),
			}
		}
		return tx.Create(&tables).Error
	})
	if err != nil {
		response.Fail(c, apperror.Upstream("Failed to create tables", err))
		return
	}
	response.Created(c, fmt.Sprintf("%d table(s) created", len(tables)), gin.H{"tables": tables})
}

// ListTables returns the owner's tables in number order
func (h *Handler) ListTables(c *gin.Context) {
	biz, ok := h.ownBusiness(c)
	if !ok {
		return
	}
	var tables []models.Table
	if err := h.DB.WithContext(c.Request.Context()).Where("business_id = ?", biz.ID).Order("number").Find(&tables).Error; err != nil {
		response.Fail(c, apperror.Upstream("Failed to load tables", err))
		return
	}
	response.OK(c, "", gin.H{"count": len(tables), "tables": tables})
}

// DeleteTable removes one table; its QR code stops resolving.
func (h *Handler) DeleteTable(c *gin.Context) {
	biz, ok := h.ownBusiness(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	res := h.DB.WithContext(c.Request.Context()).Where("id = ? AND business_id = ?", id, biz.ID).Delete(&models.Table{})
	if res.Error != nil {
		response.Fail(c, apperror.Upstream("Failed to delete table", res.Error))
		return
	}
	if res.RowsAffected == 0 {
		response.Fail(c, apperror.NotFound("Table not found"))
		return
	}
	response.OK(c, "Table deleted", nil)
}
