package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"furima/adapters/payment"
	"furima/models"
)

type stubGateway struct {
	event stripe.Event
	err   error
}

func (s stubGateway) CreateCheckoutSession(ctx context.Context, lines []payment.LineItem, meta payment.CheckoutMetadata, successURL, cancelURL string) (string, error) {
	return "cs_test", nil
}

func (s stubGateway) VerifyEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	return s.event, s.err
}

type recordingScheduler struct {
	scheduled []uint
}

func (r *recordingScheduler) SchedulePromotionDelete(ctx context.Context, promotionID uint, at time.Time) error {
	r.scheduled = append(r.scheduled, promotionID)
	return nil
}

func setupWebhookTest(t *testing.T, gateway CheckoutGateway) (*gin.Engine, *gorm.DB, *recordingScheduler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Item{},
		&models.PromotionType{},
		&models.PromotionOption{},
		&models.Promotion{},
		&models.PaymentHistory{},
	))

	taskScheduler := &recordingScheduler{}
	impl := &ServerImpl{db: db, gateway: gateway, scheduler: taskScheduler}

	router := gin.New()
	router.POST("/api/promotion/webhook", impl.PaymentWebhook)
	return router, db, taskScheduler
}

func completedEvent(t *testing.T, meta payment.CheckoutMetadata, paymentIntent string) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"payment_intent": paymentIntent,
		"metadata":       meta.Encode(),
	})
	require.NoError(t, err)
	return stripe.Event{
		Type: "checkout.session.completed",
		Data: &stripe.EventData{Raw: raw},
	}
}

func postWebhook(router *gin.Engine) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/promotion/webhook", strings.NewReader("{}"))
	request.Header.Set("Stripe-Signature", "t=1,v1=stub")
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestPaymentWebhook(t *testing.T) {
	seed := func(t *testing.T, db *gorm.DB) (models.Item, models.PromotionOption) {
		user := models.User{Email: "author@example.com", Username: "author"}
		require.NoError(t, db.Create(&user).Error)
		item := models.Item{AuthorID: user.ID, Title: "item", Description: "d"}
		require.NoError(t, db.Create(&item).Error)
		fixedType := models.PromotionType{Slug: models.PromotionSlugFixed, Name: "Fixed"}
		require.NoError(t, db.Create(&fixedType).Error)
		option := models.PromotionOption{TypeID: fixedType.ID, TermDays: 7, PriceCents: 1000}
		require.NoError(t, db.Create(&option).Error)
		return item, option
	}

	t.Run("付款完成時建立推廣並排程到期刪除", func(t *testing.T) {
		var gateway stubGateway
		router, db, taskScheduler := setupWebhookTest(t, &gateway)
		item, option := seed(t, db)

		gateway.event = completedEvent(t, payment.CheckoutMetadata{
			ItemID:     item.ID,
			OptionIDs:  []uint{option.ID},
			TotalCents: option.PriceCents,
		}, "pi_1")
		recorder := postWebhook(router)
		assert.Equal(t, http.StatusOK, recorder.Code)

		var promotions []models.Promotion
		require.NoError(t, db.Where("item_id = ?", item.ID).Find(&promotions).Error)
		require.Len(t, promotions, 1)
		assert.Equal(t, option.TypeID, *promotions[0].TypeID)
		assert.WithinDuration(t, time.Now().AddDate(0, 0, option.TermDays), promotions[0].DisabledAt, time.Minute)
		assert.Equal(t, []uint{promotions[0].ID}, taskScheduler.scheduled)

		var history models.PaymentHistory
		require.NoError(t, db.Where("payment_intent = ?", "pi_1").First(&history).Error)
		assert.Equal(t, option.PriceCents, history.TotalCents)
		assert.Equal(t, item.ID, *history.ItemID)
	})

	t.Run("重送的事件不會重複建立推廣", func(t *testing.T) {
		var gateway stubGateway
		router, db, taskScheduler := setupWebhookTest(t, &gateway)
		item, option := seed(t, db)

		gateway.event = completedEvent(t, payment.CheckoutMetadata{
			ItemID:     item.ID,
			OptionIDs:  []uint{option.ID},
			TotalCents: option.PriceCents,
		}, "pi_1")
		assert.Equal(t, http.StatusOK, postWebhook(router).Code)
		assert.Equal(t, http.StatusOK, postWebhook(router).Code)

		var count int64
		require.NoError(t, db.Model(&models.Promotion{}).Where("item_id = ?", item.ID).Count(&count).Error)
		assert.Equal(t, int64(1), count)
		assert.Len(t, taskScheduler.scheduled, 1)
	})

	t.Run("簽章驗證失敗時回應400且不產生副作用", func(t *testing.T) {
		router, db, taskScheduler := setupWebhookTest(t, stubGateway{err: assert.AnError})
		seed(t, db)

		recorder := postWebhook(router)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)

		var count int64
		require.NoError(t, db.Model(&models.Promotion{}).Count(&count).Error)
		assert.Zero(t, count)
		assert.Empty(t, taskScheduler.scheduled)
	})

	t.Run("其他類型的事件直接回應200", func(t *testing.T) {
		router, db, _ := setupWebhookTest(t, stubGateway{event: stripe.Event{Type: "payment_intent.created"}})
		seed(t, db)

		recorder := postWebhook(router)
		assert.Equal(t, http.StatusOK, recorder.Code)
		var count int64
		require.NoError(t, db.Model(&models.Promotion{}).Count(&count).Error)
		assert.Zero(t, count)
	})
}
