package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"furima/adapters/payment"
	"furima/models"
)

// List promotion types with their paid options
// (GET /api/promotion/types)
func (impl *ServerImpl) ListPromotionTypes(c *gin.Context) {
	const op = "ListPromotionTypes"
	var types []models.PromotionType
	result := impl.db.
		Preload("Options", func(db *gorm.DB) *gorm.DB { return db.Order("promotion_options.term_days") }).
		Order("promotion_types.index").
		Find(&types)
	if result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to list promotion types, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusOK, lo.Map(types, func(promotionType models.PromotionType, _ int) promotionTypePayload {
		return newPromotionTypePayload(promotionType)
	}))
}

// requestedOptionIDs 解析 option_id 查詢參數，接受重複參數與逗號分隔兩種格式
func requestedOptionIDs(c *gin.Context) []uint {
	var ids []uint
	for _, raw := range c.QueryArray("option_id") {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
			if err != nil {
				continue
			}
			ids = append(ids, uint(id))
		}
	}
	return ids
}

// Preview which requested promotion options are still purchasable for an item
// (GET /api/promotion/items/:id?option_id=...)
func (impl *ServerImpl) PromotionEligibility(c *gin.Context) {
	const op = "PromotionEligibility"
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	itemID, ok := pathID(c)
	if !ok {
		return
	}
	var item models.Item
	result := impl.db.First(&item, itemID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to find item, err=%w", op, result.Error))
		return
	}
	if item.AuthorID != userID {
		c.Status(http.StatusForbidden)
		return
	}

	options, total, err := models.EligiblePromotionOptions(impl.db, &item, requestedOptionIDs(c))
	if err != nil {
		serverError(c, fmt.Errorf("[%s] Fail to compute eligible options, err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"item_id": item.ID,
		"options": lo.Map(options, func(option models.PromotionOption, _ int) gin.H {
			return gin.H{
				"id":    option.ID,
				"type":  option.Type.Slug,
				"name":  option.Type.Name,
				"term":  option.TermDays,
				"price": option.PriceCents,
			}
		}),
		"total":             total,
		"stripe_public_key": impl.config.Stripe.PublicKey,
	})
}

type checkoutRequest struct {
	ItemID    uint   `json:"item_id" binding:"required"`
	OptionIDs []uint `json:"option_ids" binding:"required"`
}

// Create a payment session for the eligible promotion options
// (POST /api/promotion/checkout)
func (impl *ServerImpl) CreateCheckout(c *gin.Context) {
	const op = "CreateCheckout"
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var request checkoutRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		validationError(c, map[string]string{"detail": "invalid request body"})
		return
	}

	var item models.Item
	result := impl.db.First(&item, request.ItemID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to find item, err=%w", op, result.Error))
		return
	}
	if item.AuthorID != userID {
		c.Status(http.StatusForbidden)
		return
	}

	// 付款前重新計算一次可購買的方案，擋下重複購買與過期的表單
	options, total, err := models.EligiblePromotionOptions(impl.db, &item, request.OptionIDs)
	if err != nil {
		serverError(c, fmt.Errorf("[%s] Fail to compute eligible options, err=%w", op, err))
		return
	}
	if len(options) == 0 {
		validationError(c, map[string]string{"option_ids": "no purchasable promotion options"})
		return
	}

	lines := lo.Map(options, func(option models.PromotionOption, _ int) payment.LineItem {
		return payment.LineItem{
			Name:       fmt.Sprintf("%s (%d days)", option.Type.Name, option.TermDays),
			PriceCents: option.PriceCents,
		}
	})
	meta := payment.CheckoutMetadata{
		ItemID: item.ID,
		OptionIDs: lo.Map(options, func(option models.PromotionOption, _ int) uint {
			return option.ID
		}),
		TotalCents: total,
	}
	cancelURL := fmt.Sprintf("%s/items/%d", impl.config.Stripe.CancelBaseURL, item.ID)
	sessionID, err := impl.gateway.CreateCheckoutSession(c.Request.Context(), lines, meta, impl.config.Stripe.SuccessURL, cancelURL)
	if err != nil {
		serverError(c, fmt.Errorf("[%s] Fail to create checkout session, err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":        sessionID,
		"stripe_public_key": impl.config.Stripe.PublicKey,
	})
}

// Handle payment events pushed from Stripe
// (POST /api/promotion/webhook)
func (impl *ServerImpl) PaymentWebhook(c *gin.Context) {
	const op = "PaymentWebhook"
	payload, err := c.GetRawData()
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	event, err := impl.gateway.VerifyEvent(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	if event.Type != "checkout.session.completed" {
		c.Status(http.StatusOK)
		return
	}
	completed, err := payment.ParseCompletedCheckout(event)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	if err := impl.applyCompletedCheckout(c, completed); err != nil {
		// 回應 5xx 讓 Stripe 重送事件
		serverError(c, fmt.Errorf("[%s] Fail to apply completed checkout, err=%w", op, err))
		return
	}
	c.Status(http.StatusOK)
}

// applyCompletedCheckout 依付款完成事件建立推廣與付款紀錄
// 任務排程失敗會讓整個交易回滾，等待事件重送時再試一次
func (impl *ServerImpl) applyCompletedCheckout(c *gin.Context, completed payment.CompletedCheckout) error {
	const op = "applyCompletedCheckout"
	now := time.Now()
	return impl.db.Transaction(func(tx *gorm.DB) error {
		// 同一筆付款的事件可能重送，已處理過就不再動作
		var handled int64
		result := tx.Model(&models.PaymentHistory{}).
			Where("payment_intent = ?", completed.PaymentIntentID).
			Count(&handled)
		if result.Error != nil {
			return fmt.Errorf("[%s] Fail to check payment history, err=%w", op, result.Error)
		}
		if handled > 0 {
			return nil
		}

		var item models.Item
		if result := tx.First(&item, completed.Metadata.ItemID); result.Error != nil {
			return fmt.Errorf("[%s] Fail to find paid item, err=%w", op, result.Error)
		}

		var options []models.PromotionOption
		result = tx.Where("id IN ?", completed.Metadata.OptionIDs).Find(&options)
		if result.Error != nil {
			return fmt.Errorf("[%s] Fail to load paid options, err=%w", op, result.Error)
		}

		for _, option := range options {
			disabledAt := now.AddDate(0, 0, option.TermDays)
			promotion := models.Promotion{
				ItemID:     item.ID,
				TypeID:     &option.TypeID,
				DisabledAt: disabledAt,
			}
			if result := tx.Create(&promotion); result.Error != nil {
				return fmt.Errorf("[%s] Fail to create promotion, err=%w", op, result.Error)
			}
			if err := impl.scheduler.SchedulePromotionDelete(c.Request.Context(), promotion.ID, disabledAt); err != nil {
				return fmt.Errorf("[%s] Fail to schedule promotion delete, err=%w", op, err)
			}
		}

		history := models.PaymentHistory{
			PaymentIntent: completed.PaymentIntentID,
			UserID:        &item.AuthorID,
			ItemID:        &item.ID,
			TotalCents:    completed.Metadata.TotalCents,
			Options:       options,
		}
		if result := tx.Create(&history); result.Error != nil {
			return fmt.Errorf("[%s] Fail to create payment history, err=%w", op, result.Error)
		}
		return nil
	})
}
