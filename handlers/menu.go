package handlers

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"qrmenu-api/apperror"
	"qrmenu-api/filehost"
	"qrmenu-api/models"
	"qrmenu-api/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type CreateMenuItemRequest struct {
	Name        string  `json:"name" binding:"required,max=120"`
	Description string  `json:"description" binding:"max=1000"`
	Price       float64 `json:"price" binding:"required,gt=0"`
	Category    string  `json:"category" binding:"max=60"`
	IsVeg       bool    `json:"is_veg"`
	IsAvailable *bool   `json:"is_available"`
}

// ListMenuItems returns the owner's menu, optionally filtered by category
func (h *Handler) ListMenuItems(c *gin.Context) {
	biz, ok := h.ownBusiness(c)
	if !ok {
		return
	}
	query := h.DB.WithContext(c.Request.Context()).Where("business_id = ?", biz.ID)
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	var items []models.MenuItem
	if err := query.Order("category, name").Find(&items).Error; err != nil {
		response.Fail(c, apperror.Upstream("Failed to load menu", err))
		return
	}
	response.OK(c, "", gin.H{"count": len(items), "items": items})
}

// AddMenuItem adds a new item to the business's menu
func (h *Handler) AddMenuItem(c *gin.Context) {
	biz, ok := h.ownBusiness(c)
	if !ok {
		return
	}

	var req CreateMenuItemRequest
	if !bind(c, &req) {
		return
	}

	item := models.MenuItem{
		BusinessID:  biz.ID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Price:       req.Price,
		Category:    strings.TrimSpace(req.Category),
		IsVeg:       req.IsVeg,
		IsAvailable: true,
	}
	db := h.DB.WithContext(c.Request.Context())
	if err := db.Create(&item).Error; err != nil {
		response.Fail(c, apperror.Upstream("Failed to add menu item", err))
		return
	}
	// is_available defaults to true in the schema, so false must be written explicitly.
	if req.IsAvailable != nil && !*req.IsAvailable {
		if err := db.Model(&item).Update("is_available", false).Error; err != nil {
			response.Fail(c, apperror.Upstream("Failed to add menu item", err))
			return
		}
		item.IsAvailable = false
	}
	response.Created(c, "Menu item added", gin.H{"item": item})
}

// ownItem loads a menu item of the caller's business. Items of other
// businesses are reported as missing.
func (h *Handler) ownItem(c *gin.Context) (*models.MenuItem, bool) {
	biz, ok := h.ownBusiness(c)
	if !ok {
		return nil, false
	}
	id, ok := paramID(c, "id")
	if !ok {
		return nil, false
	}
	var item models.MenuItem
	err := h.DB.WithContext(c.Request.Context()).
		Where("id = ? AND business_id = ?", id, biz.ID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Fail(c, apperror.NotFound("Menu item not found"))
		} else {
			response.Fail(c, apperror.Upstream("Failed to load menu item", err))
		}
		return nil, false
	}
	return &item, true
}

// UpdateMenuItem updates a menu item (only by the owner)
func (h *Handler) UpdateMenuItem(c *gin.Context) {
	item, ok := h.ownItem(c)
	if !ok {
		return
	}

	var req map[string]interface{}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, response.BindError(err))
		return
	}
	allowed := map[string]bool{"name": true, "description": true, "price": true, "category": true, "is_veg": true, "is_available": true}
	update := map[string]interface{}{}
	for k, v := range req {
		if allowed[k] {
			update[k] = v
		}
	}
	if p, ok := update["price"]; ok {
		if price, isNum := p.(float64); !isNum || price <= 0 {
			response.Fail(c, apperror.Field("price", "must be greater than 0"))
			return
		}
	}
	if len(update) == 0 {
		response.Fail(c, apperror.Validation("No updatable fields supplied", nil))
		return
	}

	db := h.DB.WithContext(c.Request.Context())
	if err := db.Model(item).Updates(update).Error; err != nil {
		response.Fail(c, apperror.Upstream("Failed to update menu item", err))
		return
	}
	if err := db.First(item, item.ID).Error; err != nil {
		response.Fail(c, apperror.Upstream("Failed to load menu item", err))
		return
	}
	response.OK(c, "Menu item updated", gin.H{"item": item})
}

// DeleteMenuItem removes a menu item
func (h *Handler) DeleteMenuItem(c *gin.Context) {
	item, ok := h.ownItem(c)
	if !ok {
		return
	}
	if err := h.DB.WithContext(c.Request.Context()).Delete(item).Error; err != nil {
		response.Fail(c, apperror.Upstream("Failed to delete menu item", err))
		return
	}
	response.OK(c, "Menu item deleted", nil)
}

// UploadMenuItemImage stores the multipart "image" file and sets it on the item.
func (h *Handler) UploadMenuItemImage(c *gin.Context) {
	item, ok := h.ownItem(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("image")
	if err != nil {
		response.Fail(c, apperror.Field("image", "is required"))
		return
	}
	if fh.Size > filehost.MaxUploadBytes {
		response.Fail(c, apperror.Field("image", fmt.Sprintf("must be at most %d MB", filehost.MaxUploadBytes>>20)))
		return
	}
	name, err := filehost.ObjectName(fmt.Sprintf("menu/%d", item.BusinessID), fh.Filename)
	if err != nil || strings.EqualFold(filepath.Ext(fh.Filename), ".pdf") {
		response.Fail(c, apperror.Field("image", "must be a JPEG, PNG, WebP or GIF image"))
		return
	}

	f, err := fh.Open()
	if err != nil {
		response.Fail(c, apperror.Upstream("Failed to read image", err))
		return
	}
	defer f.Close()
	url, err := h.Files.Upload(c.Request.Context(), name, f)
	if err != nil {
		if errors.Is(err, filehost.ErrTooLarge) {
			response.Fail(c, apperror.Field("image", "is too large"))
			return
		}
		response.Fail(c, apperror.Upstream("Failed to upload image", err))
		return
	}

	if err := h.DB.WithContext(c.Request.Context()).Model(item).Update("image_url", url).Error; err != nil {
		response.Fail(c, apperror.Upstream("Failed to save image", err))
		return
	}
	item.ImageURL = url
	response.OK(c, "Image uploaded", gin.H{"item": item})
}
