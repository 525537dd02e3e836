package scheduler_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"furima/adapters/scheduler"
	"furima/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Promotion{}))
	return db
}

func deleteTask(t *testing.T, promotionID uint) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(scheduler.PromotionDeletePayload{PromotionID: promotionID})
	require.NoError(t, err)
	return asynq.NewTask(scheduler.TypePromotionDelete, payload)
}

func TestPromotionDeleteHandler(t *testing.T) {
	t.Run("刪除到期的推廣", func(t *testing.T) {
		db := setupTestDB(t)
		promotion := models.Promotion{ItemID: 1}
		require.NoError(t, db.Create(&promotion).Error)

		handler := scheduler.NewPromotionDeleteHandler(db, nil)
		require.NoError(t, handler(context.Background(), deleteTask(t, promotion.ID)))

		var count int64
		require.NoError(t, db.Model(&models.Promotion{}).Where("id = ?", promotion.ID).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("推廣已被其他途徑刪除時視為正常", func(t *testing.T) {
		db := setupTestDB(t)
		handler := scheduler.NewPromotionDeleteHandler(db, nil)
		assert.NoError(t, handler(context.Background(), deleteTask(t, 99999)))
	})

	t.Run("內容無法解析時跳過重試", func(t *testing.T) {
		db := setupTestDB(t)
		handler := scheduler.NewPromotionDeleteHandler(db, nil)
		err := handler(context.Background(), asynq.NewTask(scheduler.TypePromotionDelete, []byte("not json")))
		assert.True(t, errors.Is(err, asynq.SkipRetry))
	})
}
