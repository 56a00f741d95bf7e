package handlers

import (
	"errors"

	"qrmenu-api/apperror"
	"qrmenu-api/models"
	"qrmenu-api/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type menuCategory struct {
	Name  string            `json:"name"`
	Items []models.MenuItem `json:"items"`
}

// GetPublicMenu returns a business's available items grouped by category
// (public). A table code, when given, must belong to the business.
func (h *Handler) GetPublicMenu(c *gin.Context) {
	db := h.DB.WithContext(c.Request.Context())

	var biz models.Business
	if err := db.Where("slug = ?", c.Param("slug")).First(&biz).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Fail(c, apperror.NotFound("Menu not found"))
		} else {
			response.Fail(c, apperror.Upstream("Failed to load menu", err))
		}
		return
	}

	var table *models.Table
	if code := c.Query("table"); code != "" {
		var t models.Table
		if err := db.Where("code = ? AND business_id = ?", code, biz.ID).First(&t).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				response.Fail(c, apperror.NotFound("Table not found"))
			} else {
				response.Fail(c, apperror.Upstream("Failed to load table", err))
			}
			return
		}
		table = &t
	}

	query := db.Where("business_id = ? AND is_available = ?", biz.ID, true)
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	if isVeg := c.Query("veg"); isVeg == "true" {
		query = query.Where("is_veg = ?", true)
	}
	var items []models.MenuItem
	if err := query.Order("category, name").Find(&items).Error; err != nil {
		response.Fail(c, apperror.Upstream("Failed to load menu", err))
		return
	}

	response.OK(c, "", gin.H{
		"business": gin.H{
			"name":        biz.Name,
			"slug":        biz.Slug,
			"cuisine":     biz.Cuisine,
			"address":     biz.Address,
			"phone":       biz.Phone,
			"description": biz.Description,
			"logo_url":    biz.LogoURL,
			"is_open":     biz.IsOpen,
		},
		"table":      table,
		"count":      len(items),
		"categories": groupByCategory(items),
	})
}

// groupByCategory keeps the order of items, which arrive sorted by category.
// Items without a category are listed under "Other".
func groupByCategory(items []models.MenuItem) []menuCategory {
	var out []menuCategory
	index := map[string]int{}
	for _, it := range items {
		name := it.Category
		if name == "" {
			name = "Other"
		}
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, menuCategory{Name: name})
		}
		out[i].Items = append(out[i].Items, it)
	}
	return out
}
