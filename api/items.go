package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"furima/models"
)

// itemQueryBase 組出物品列表共用的查詢基底，包含列表所需的關聯
func (impl *ServerImpl) itemQueryBase() *gorm.DB {
	return impl.db.Model(&models.Item{}).
		Preload("Category").
		Preload("Location").
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("images.index") }).
		Preload("Promotions.Type")
}

// rangeSlugsFor 回傳搜尋分類專屬的範圍屬性 slug，作為排序鍵的白名單
func (impl *ServerImpl) rangeSlugsFor(categoryID string) ([]string, error) {
	const op = "rangeSlugsFor"
	id, err := strconv.Atoi(categoryID)
	if err != nil {
		return nil, nil
	}
	var category models.Category
	result := impl.db.Preload("FilterAttributes").First(&category, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to find category, err=%w", op, result.Error)
	}
	return category.RangeFilterSlugs(), nil
}

// Search items, excluding the fixed ones shown in their own section
// (GET /api/items)
func (impl *ServerImpl) ListItems(c *gin.Context) {
	const op = "ListItems"
	var query models.ItemSearchQuery
	// 查詢參數全部是可選的字串，綁定不會失敗
	_ = c.ShouldBindQuery(&query)

	extraSlugs, err := impl.rangeSlugsFor(query.CategoryID)
	if err != nil {
		serverError(c, fmt.Errorf("[%s] Fail to resolve sort keys, err=%w", op, err))
		return
	}

	var items []models.Item
	base := impl.itemQueryBase().Scopes(query.Scope(extraSlugs...), models.UnfixedScope)
	response, err := paginate(c, base, defaultPageSize, &items)
	if err != nil {
		serverError(c, fmt.Errorf("[%s] Fail to list items, err=%w", op, err))
		return
	}
	response.Results = newItemSummaries(items)
	c.JSON(http.StatusOK, response)
}

// List items holding a fixed promotion, matching the same search filters
// (GET /api/items/fixed)
func (impl *ServerImpl) ListFixedItems(c *gin.Context) {
	const op = "ListFixedItems"
	var query models.ItemSearchQuery
	_ = c.ShouldBindQuery(&query)

	extraSlugs, err := impl.rangeSlugsFor(query.CategoryID)
	if err != nil {
		serverError(c, fmt.Errorf("[%s] Fail to resolve sort keys, err=%w", op, err))
		return
	}

	var items []models.Item
	result := impl.itemQueryBase().
		Scopes(query.Scope(extraSlugs...), models.FixedScope).
		Find(&items)
	if result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to list fixed items, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusOK, newItemSummaries(items))
}

// Retrieve an item and count the view
// (GET /api/items/:id)
func (impl *ServerImpl) RetrieveItem(c *gin.Context) {
	const op = "RetrieveItem"
	id, ok := pathID(c)
	if !ok {
		return
	}
	var item models.Item
	result := impl.db.
		Preload("Author").
		Preload("Category.FieldAttributes.Options").
		Preload("Location.Parent").
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("images.index") }).
		Preload("Promotions.Type").
		First(&item, id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to find item, err=%w", op, result.Error))
		return
	}

	// 瀏覽數直接以 SQL 遞增，避免覆蓋同時間的其他更新
	result = impl.db.Model(&item).UpdateColumn("views", gorm.Expr("views + 1"))
	if result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to count item view, err=%w", op, result.Error))
		return
	}

	c.JSON(http.StatusOK, impl.itemDetail(item))
}

func (impl *ServerImpl) itemDetail(item models.Item) gin.H {
	detail := gin.H{
		"id":          item.ID,
		"title":       item.Title,
		"description": item.Description,
		"attributes":  item.Attributes,
		"price":       formatPrice(item.Attributes),
		"views":       item.Views,
		"author":      gin.H{"id": item.AuthorID, "username": item.Author.Username},
		"category":    nil,
		"location":    nil,
		"images": lo.Map(item.Images, func(image models.Image, _ int) gin.H {
			return gin.H{"index": image.Index, "url": image.URL}
		}),
		"promotions": lo.FilterMap(item.Promotions, func(promotion models.Promotion, _ int) (string, bool) {
			if promotion.Type == nil {
				return "", false
			}
			return promotion.Type.Slug, true
		}),
		"created_at": item.CreatedAt,
		"updated_at": item.UpdatedAt,
	}
	if item.Category != nil {
		detail["category"] = newCategoryPayload(*item.Category)
	}
	if item.Location != nil {
		detail["location"] = retrievedLocationPayload(*item.Location)
	}
	return detail
}

type itemRequest struct {
	Title       string         `json:"title" binding:"required,max=80"`
	Description string         `json:"description" binding:"required"`
	CategoryID  uint           `json:"category_id" binding:"required"`
	LocationID  *uint          `json:"location_id"`
	Attributes  map[string]any `json:"attributes"`
	ImageIDs    []string       `json:"image_ids"`
}

// loadItemCategory 取出物品分類及其動態欄位結構
func (impl *ServerImpl) loadItemCategory(categoryID uint) (*models.Category, error) {
	const op = "loadItemCategory"
	var category models.Category
	result := impl.db.Preload("FieldAttributes.Options").First(&category, categoryID)
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to find category, err=%w", op, result.Error)
	}
	return &category, nil
}

// attachImages 將先行上傳的圖片關聯到物品，依請求順序編上索引
func attachImages(tx *gorm.DB, itemID uint, imageIDs []string) error {
	const op = "attachImages"
	for index, rawID := range imageIDs {
		tempID, err := uuid.Parse(rawID)
		if err != nil {
			continue
		}
		result := tx.Model(&models.Image{}).
			Where("temp_id = ? AND item_id IS NULL", tempID).
			Updates(map[string]any{"item_id": itemID, "index": index})
		if result.Error != nil {
			return fmt.Errorf("[%s] Fail to attach image, err=%w", op, result.Error)
		}
	}
	return nil
}

// Create an item
// (POST /api/items)
func (impl *ServerImpl) CreateItem(c *gin.Context) {
	const op = "CreateItem"
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var request itemRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		validationError(c, map[string]string{"detail": "invalid request body"})
		return
	}

	category, err := impl.loadItemCategory(request.CategoryID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		validationError(c, map[string]string{"category_id": "category does not exist"})
		return
	}
	if err != nil {
		serverError(c, fmt.Errorf("[%s] Fail to load category, err=%w", op, err))
		return
	}

	attributes := datatypes.JSONMap(request.Attributes)
	if fieldErrors := models.ValidateAttributes(category, attributes); len(fieldErrors) > 0 {
		validationError(c, fieldErrors)
		return
	}

	item := models.Item{
		AuthorID:    userID,
		CategoryID:  &category.ID,
		Title:       impl.htmlChecker.Sanitize(request.Title),
		Description: impl.htmlChecker.Sanitize(request.Description),
		Attributes:  attributes,
		LocationID:  request.LocationID,
	}
	err = impl.db.Transaction(func(tx *gorm.DB) error {
		if result := tx.Create(&item); result.Error != nil {
			return fmt.Errorf("[%s] Fail to create item, err=%w", op, result.Error)
		}
		return attachImages(tx, item.ID, request.ImageIDs)
	})
	if err != nil {
		serverError(c, err)
		return
	}

	impl.notifyItemCreated(item)
	c.JSON(http.StatusCreated, gin.H{"id": item.ID})
}

// notifyItemCreated 寄送刊登完成的通知信，寄送失敗只記錄不影響回應
func (impl *ServerImpl) notifyItemCreated(item models.Item) {
	const op = "notifyItemCreated"
	var author models.User
	if result := impl.db.First(&author, item.AuthorID); result.Error != nil {
		slog.Error("Fail to load item author for notification", slog.Any("error", result.Error))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	subject := "Your item has been published"
	body := fmt.Sprintf("Hi %s,\n\nYour item %q is now live:\n%s/items/%d\n", author.Username, item.Title, impl.config.Site.BaseURL, item.ID)
	if err := impl.mailer.Send(ctx, author.Email, subject, body); err != nil {
		slog.Error("Fail to send item created mail", slog.String("op", op), slog.Any("error", err))
	}
}

// loadOwnedItem 取出物品並確認目前使用者是作者
func (impl *ServerImpl) loadOwnedItem(c *gin.Context, userID uint) (*models.Item, bool) {
	const op = "loadOwnedItem"
	id, ok := pathID(c)
	if !ok {
		return nil, false
	}
	var item models.Item
	result := impl.db.First(&item, id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		c.Status(http.StatusNotFound)
		return nil, false
	}
	if result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to find item, err=%w", op, result.Error))
		return nil, false
	}
	if item.AuthorID != userID {
		c.Status(http.StatusForbidden)
		return nil, false
	}
	return &item, true
}

// Update an item, only by its author
// (PUT /api/items/:id)
func (impl *ServerImpl) UpdateItem(c *gin.Context) {
	const op = "UpdateItem"
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	item, ok := impl.loadOwnedItem(c, userID)
	if !ok {
		return
	}
	var request itemRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		validationError(c, map[string]string{"detail": "invalid request body"})
		return
	}

	category, err := impl.loadItemCategory(request.CategoryID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		validationError(c, map[string]string{"category_id": "category does not exist"})
		return
	}
	if err != nil {
		serverError(c, fmt.Errorf("[%s] Fail to load category, err=%w", op, err))
		return
	}

	// 分類欄位結構可能在刊登後變動，更新時先清掉過期的屬性再檢查
	attributes := models.PruneAttributes(category, datatypes.JSONMap(request.Attributes))
	if fieldErrors := models.ValidateAttributes(category, attributes); len(fieldErrors) > 0 {
		validationError(c, fieldErrors)
		return
	}

	err = impl.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(item).Updates(map[string]any{
			"category_id": category.ID,
			"title":       impl.htmlChecker.Sanitize(request.Title),
			"description": impl.htmlChecker.Sanitize(request.Description),
			"attributes":  attributes,
			"location_id": request.LocationID,
		})
		if result.Error != nil {
			return fmt.Errorf("[%s] Fail to update item, err=%w", op, result.Error)
		}
		return attachImages(tx, item.ID, request.ImageIDs)
	})
	if err != nil {
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": item.ID})
}

// Delete an item together with its images and promotions
// (DELETE /api/items/:id)
func (impl *ServerImpl) DeleteItem(c *gin.Context) {
	const op = "DeleteItem"
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	item, ok := impl.loadOwnedItem(c, userID)
	if !ok {
		return
	}
	if err := models.DeleteItem(impl.db, item); err != nil {
		serverError(c, fmt.Errorf("[%s] Fail to delete item, err=%w", op, err))
		return
	}
	c.Status(http.StatusNoContent)
}

// Renew an item by bumping it to the top of the default ordering
// (POST /api/items/:id/renew)
func (impl *ServerImpl) RenewItem(c *gin.Context) {
	const op = "RenewItem"
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	item, ok := impl.loadOwnedItem(c, userID)
	if !ok {
		return
	}
	if result := impl.db.Model(item).UpdateColumn("updated_at", time.Now()); result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to renew item, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": item.ID})
}

// List items related to an item, by shared parent category and location
// (GET /api/items/:id/related)
func (impl *ServerImpl) RelatedItems(c *gin.Context) {
	const op = "RelatedItems"
	id, ok := pathID(c)
	if !ok {
		return
	}
	var item models.Item
	result := impl.db.Preload("Category").Preload("Location").First(&item, id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to find item, err=%w", op, result.Error))
		return
	}

	var related []models.Item
	if result := impl.itemQueryBase().Scopes(models.RelatedScope(&item)).Find(&related); result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to list related items, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusOK, newItemSummaries(related))
}

// fieldDefaults 組出分類動態欄位的表單結構與預設值
func fieldDefaults(category *models.Category) ([]fieldAttributePayload, map[string]any) {
	fields := make([]fieldAttributePayload, 0, len(category.FieldAttributes))
	values := make(map[string]any, len(category.FieldAttributes))
	for _, attribute := range category.FieldAttributes {
		fields = append(fields, newFieldAttributePayload(attribute))
		values[attribute.Slug] = models.DefaultAttributeValue(attribute)
	}
	return fields, values
}

// Build the edit form payload for an existing item, only for its author
// (GET /api/items/:id/form-data)
func (impl *ServerImpl) ItemFormData(c *gin.Context) {
	const op = "ItemFormData"
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	item, ok := impl.loadOwnedItem(c, userID)
	if !ok {
		return
	}
	if item.CategoryID == nil {
		validationError(c, map[string]string{"category_id": "item has no category"})
		return
	}
	category, err := impl.loadItemCategory(*item.CategoryID)
	if err != nil {
		serverError(c, fmt.Errorf("[%s] Fail to load category, err=%w", op, err))
		return
	}

	fields, values := fieldDefaults(category)
	// 既有的屬性值覆蓋預設值
	for key, value := range item.Attributes {
		values[key] = value
	}

	var images []models.Image
	result := impl.db.Where("item_id = ?", item.ID).Order("images.index").Find(&images)
	if result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to list item images, err=%w", op, result.Error))
		return
	}

	var activeSlugs []string
	result = impl.db.Model(&models.Promotion{}).
		Joins("JOIN promotion_types ON promotion_types.id = promotions.type_id").
		Where("promotions.item_id = ?", item.ID).
		Pluck("promotion_types.slug", &activeSlugs)
	if result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to list active promotions, err=%w", op, result.Error))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"item": gin.H{
			"id":          item.ID,
			"title":       item.Title,
			"description": item.Description,
			"category_id": item.CategoryID,
			"location_id": item.LocationID,
		},
		"fields": fields,
		"values": values,
		"images": lo.Map(images, func(image models.Image, _ int) gin.H {
			return gin.H{"temp_id": image.TempID, "index": image.Index, "url": image.URL}
		}),
		"active_promotions": activeSlugs,
	})
}

// Build the create form payload for a category
// (GET /api/items/empty-form-data?category_id=N)
func (impl *ServerImpl) EmptyItemFormData(c *gin.Context) {
	const op = "EmptyItemFormData"
	categoryID, err := strconv.Atoi(c.Query("category_id"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	var category models.Category
	result := impl.db.Preload("FieldAttributes.Options").First(&category, "id = ?", categoryID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to find category, err=%w", op, result.Error))
		return
	}

	fields, values := fieldDefaults(&category)
	c.JSON(http.StatusOK, gin.H{
		"fields": fields,
		"values": values,
	})
}

// Find the current user's existing message thread for an item
// (GET /api/items/:id/participant)
func (impl *ServerImpl) ExistingParticipant(c *gin.Context) {
	const op = "ExistingParticipant"
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	itemID, ok := pathID(c)
	if !ok {
		return
	}
	var participant models.Participant
	result := impl.db.
		Joins("JOIN threads ON threads.id = participants.thread_id").
		Where("threads.item_id = ? AND participants.user_id = ?", itemID, userID).
		First(&participant)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusOK, gin.H{"participant": nil})
		return
	}
	if result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to find participant, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusOK, gin.H{"participant": participant.ID})
}
