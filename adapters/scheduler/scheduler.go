package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"furima/models"
)

// TypePromotionDelete 是推廣到期刪除任務的類型名稱
const TypePromotionDelete = "promotion:delete"

// PromotionDeletePayload 是推廣刪除任務的內容
type PromotionDeletePayload struct {
	PromotionID uint `json:"promotion_id"`
}

// Scheduler 封裝延遲任務的排程
// 任務佇列建立在 Redis 上，由 request path 之外的 worker 執行
type Scheduler struct {
	client *asynq.Client
}

func NewScheduler(redisOpt asynq.RedisClientOpt) *Scheduler {
	return &Scheduler{client: asynq.NewClient(redisOpt)}
}

// SchedulePromotionDelete 排程一次性的推廣刪除任務，於 at 時間執行
func (s *Scheduler) SchedulePromotionDelete(ctx context.Context, promotionID uint, at time.Time) error {
	const op = "SchedulePromotionDelete"
	payload, err := json.Marshal(PromotionDeletePayload{PromotionID: promotionID})
	if err != nil {
		return fmt.Errorf("[%s] Fail to marshal payload, err=%w", op, err)
	}
	task := asynq.NewTask(TypePromotionDelete, payload)
	if _, err := s.client.EnqueueContext(ctx, task, asynq.ProcessAt(at)); err != nil {
		return fmt.Errorf("[%s] Fail to enqueue task, err=%w", op, err)
	}
	return nil
}

func (s *Scheduler) Close() error {
	return s.client.Close()
}

// NewPromotionDeleteHandler 建立推廣刪除任務的處理函式
// 目標列已經被其他途徑刪除時視為正常情況，不回報錯誤
func NewPromotionDeleteHandler(db *gorm.DB, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, task *asynq.Task) error {
		const op = "PromotionDeleteHandler"
		var payload PromotionDeletePayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("[%s] Fail to unmarshal payload, err=%w: %w", op, err, asynq.SkipRetry)
		}
		promotion := models.Promotion{}
		result := db.WithContext(ctx).First(&promotion, payload.PromotionID)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			logger.Debug("Promotion already gone", slog.Uint64("promotionID", uint64(payload.PromotionID)))
			return nil
		}
		if result.Error != nil {
			return fmt.Errorf("[%s] Fail to find promotion, err=%w", op, result.Error)
		}
		if result := db.WithContext(ctx).Delete(&promotion); result.Error != nil {
			return fmt.Errorf("[%s] Fail to delete promotion, err=%w", op, result.Error)
		}
		logger.Info("Promotion expired", slog.Uint64("promotionID", uint64(payload.PromotionID)))
		return nil
	}
}
