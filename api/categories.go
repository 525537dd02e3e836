package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"furima/models"
)

// List categories
// (GET /api/categories?level=N)
func (impl *ServerImpl) ListCategories(c *gin.Context) {
	const op = "ListCategories"
	level := c.DefaultQuery("level", "1")
	var categories []models.Category
	result := impl.db.Preload("Children").Where("level = ?", level).Find(&categories)
	if result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to list categories, err=%w", op, result.Error))
		return
	}
	payload := make([]gin.H, len(categories))
	for i, category := range categories {
		payload[i] = gin.H{
			"id":       category.ID,
			"name":     category.Name,
			"title":    category.Title,
			"level":    category.Level,
			"parent":   category.ParentID,
			"children": lo.Map(category.Children, func(child models.Category, _ int) categoryPayload { return newCategoryPayload(child) }),
		}
	}
	c.JSON(http.StatusOK, payload)
}

// List root categories
// (GET /api/categories/root)
func (impl *ServerImpl) RootCategories(c *gin.Context) {
	const op = "RootCategories"
	var categories []models.Category
	if result := impl.db.Where("level = 1").Find(&categories); result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to list root categories, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusOK, lo.Map(categories, func(category models.Category, _ int) categoryPayload { return newCategoryPayload(category) }))
}

// Retrieve a category with its filter attributes
// (GET /api/categories/:id)
func (impl *ServerImpl) RetrieveCategory(c *gin.Context) {
	const op = "RetrieveCategory"
	id, ok := pathID(c)
	if !ok {
		return
	}
	var category models.Category
	result := impl.db.
		Preload("Parent").
		Preload("Children").
		Preload("FilterAttributes").
		First(&category, id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to find category, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusOK, retrievedCategoryPayload(category))
}

func retrievedCategoryPayload(category models.Category) gin.H {
	payload := gin.H{
		"id":       category.ID,
		"name":     category.Name,
		"title":    category.Title,
		"level":    category.Level,
		"parent":   nil,
		"children": lo.Map(category.Children, func(child models.Category, _ int) categoryPayload { return newCategoryPayload(child) }),
		"filter_attributes": lo.Map(category.FilterAttributes, func(attribute models.Attribute, _ int) filterAttributePayload {
			return filterAttributePayload{Name: attribute.Name, Slug: attribute.Slug, FilterType: attribute.FilterType}
		}),
	}
	if category.Parent != nil {
		payload["parent"] = newCategoryPayload(*category.Parent)
	}
	return payload
}

type sortChoice struct {
	Value string `json:"value"`
	Name  string `json:"name"`
}

// Build the category selector payload for the search page
// (GET /api/categories/set?selected_id=N)
func (impl *ServerImpl) CategorySet(c *gin.Context) {
	const op = "CategorySet"
	data := gin.H{
		"selected":   nil,
		"l1_value":   "",
		"l2_value":   "",
		"l1_options": []categoryPayload{},
		"l2_options": []categoryPayload{},
		"sorts":      []sortChoice{},
	}

	// 排序選單：基本排序加上所選分類的範圍屬性排序
	sorts := []sortChoice{
		{Value: "", Name: "Newest"},
		{Value: "recommended", Name: "Recommended"},
	}

	var l1Categories []models.Category
	if result := impl.db.Where("level = 1").Find(&l1Categories); result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to list root categories, err=%w", op, result.Error))
		return
	}
	data["l1_options"] = lo.Map(l1Categories, func(category models.Category, _ int) categoryPayload { return newCategoryPayload(category) })

	if selectedID, err := strconv.Atoi(c.Query("selected_id")); err == nil {
		var selected models.Category
		result := impl.db.
			Preload("Parent").
			Preload("Children").
			Preload("FilterAttributes").
			First(&selected, selectedID)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		if result.Error != nil {
			serverError(c, fmt.Errorf("[%s] Fail to find selected category, err=%w", op, result.Error))
			return
		}

		for _, attribute := range selected.FilterAttributes {
			if attribute.FilterType != models.FilterTypeRangeInput {
				continue
			}
			sorts = append(sorts,
				sortChoice{Value: attribute.Slug + "_asc", Name: fmt.Sprintf("%s: low to high", attribute.Name)},
				sortChoice{Value: attribute.Slug + "_desc", Name: fmt.Sprintf("%s: high to low", attribute.Name)},
			)
		}

		data["selected"] = retrievedCategoryPayload(selected)
		switch selected.Level {
		case 1:
			data["l1_value"] = selected.ID
			data["l2_options"] = lo.Map(selected.Children, func(child models.Category, _ int) categoryPayload { return newCategoryPayload(child) })
		case 2:
			var siblings []models.Category
			if result := impl.db.Where("parent_id = ?", selected.ParentID).Find(&siblings); result.Error != nil {
				serverError(c, fmt.Errorf("[%s] Fail to list sibling categories, err=%w", op, result.Error))
				return
			}
			data["l1_value"] = selected.ParentID
			data["l2_value"] = selected.ID
			data["l2_options"] = lo.Map(siblings, func(sibling models.Category, _ int) categoryPayload { return newCategoryPayload(sibling) })
		}
	}

	data["sorts"] = sorts
	c.JSON(http.StatusOK, data)
}
