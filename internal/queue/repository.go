package queue

import (
	"context"
	"errors"
	"time"

	"github.com/shiplog-app/shiplog/internal/config"
	"github.com/shiplog-app/shiplog/internal/database"
	"github.com/shiplog-app/shiplog/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidQueueItemResult      = errors.New("invalid result type, it should be pointer to WebhookQueueItem")
	ErrInvalidQueueItemSliceResult = errors.New("invalid result type, it should be slice of WebhookQueueItem")
	ErrInvalidStatsResult          = errors.New("invalid result type, it should be pointer to Stats")
	ErrItemNotFound                = errors.New("webhook queue item not found")
)

type Repository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *Repository {
	cbSettings := database.GetCircuitBreakerSettings()

	return &Repository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

func maxAttempts() int {
	if config.Conf.QueueMaxAttempts > 0 {
		return config.Conf.QueueMaxAttempts
	}

	return 5
}

// Enqueue stores a failed webhook payload for later retry. The synchronous
// attempt that just failed counts as attempt 1.
func (repository *Repository) Enqueue(
	ctx context.Context,
	eventType string,
	payload []byte,
	errMsg string,
) (*WebhookQueueItem, error) {
	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		item := WebhookQueueItem{
			EventType:   eventType,
			Payload:     payload,
			Status:      StatusPending,
			Attempts:    1,
			MaxAttempts: maxAttempts(),
			NextRetryAt: time.Now().Add(DelayForAttempt(0)),
			LastError:   errMsg,
		}

		err := repository.DBConn.WithContext(ctx).Create(&item).Error
		if err != nil {
			logging.Logger.Error("failed to enqueue webhook",
				zap.String("event_type", eventType),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return &item, nil
	})
	if err != nil {
		return nil, err
	}

	item, ok := result.(*WebhookQueueItem)
	if !ok {
		return nil, ErrInvalidQueueItemResult
	}

	logging.Logger.Info("webhook queued for retry",
		zap.Uint("item_id", item.ID),
		zap.String("event_type", eventType),
		zap.Time("next_retry_at", item.NextRetryAt),
	)

	return item, nil
}

// GetRetryable returns due pending/failed items, oldest-due first.
func (repository *Repository) GetRetryable(ctx context.Context, limit int) ([]WebhookQueueItem, error) {
	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		var items []WebhookQueueItem

		err := repository.DBConn.WithContext(ctx).
			Where("status IN ? AND next_retry_at <= ?", []string{StatusPending, StatusFailed}, time.Now()).
			Order("next_retry_at ASC").
			Limit(limit).
			Find(&items).Error
		if err != nil {
			logging.Logger.Error("failed to fetch retryable webhooks", zap.String("error", err.Error()))
			return nil, err
		}

		return items, nil
	})
	if err != nil {
		return nil, err
	}

	items, ok := result.([]WebhookQueueItem)
	if !ok {
		return nil, ErrInvalidQueueItemSliceResult
	}

	return items, nil
}

// MarkProcessing claims an item. The conditional update is the mutual
// exclusion primitive: a concurrent drain pass that lost the race, or an
// item already in a terminal state, gets false back.
func (repository *Repository) MarkProcessing(ctx context.Context, id uint) (bool, error) {
	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		update := repository.DBConn.WithContext(ctx).
			Model(&WebhookQueueItem{}).
			Where("id = ? AND status IN ?", id, []string{StatusPending, StatusFailed}).
			Update("status", StatusProcessing)
		if update.Error != nil {
			logging.Logger.Error("failed to mark webhook as processing",
				zap.Uint("item_id", id),
				zap.String("error", update.Error.Error()),
			)

			return nil, update.Error
		}

		return update.RowsAffected > 0, nil
	})
	if err != nil {
		return false, err
	}

	claimed, ok := result.(bool)
	if !ok {
		return false, ErrInvalidQueueItemResult
	}

	return claimed, nil
}

// MarkCompleted finishes a claimed item. Completed is terminal.
func (repository *Repository) MarkCompleted(ctx context.Context, id uint) error {
	_, err := repository.CircuitBreaker.Execute(func() (any, error) {
		err := repository.DBConn.WithContext(ctx).
			Model(&WebhookQueueItem{}).
			Where("id = ? AND status = ?", id, StatusProcessing).
			Update("status", StatusCompleted).Error
		if err != nil {
			logging.Logger.Error("failed to mark webhook as completed",
				zap.Uint("item_id", id),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return nil, nil
	})

	return err
}

// MarkFailed records a failed attempt: reschedule with backoff, or move to
// the dead-letter state once the attempt budget is spent.
func (repository *Repository) MarkFailed(ctx context.Context, id uint, errMsg string) error {
	_, err := repository.CircuitBreaker.Execute(func() (any, error) {
		var item WebhookQueueItem

		err := repository.DBConn.WithContext(ctx).First(&item, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}

		if err != nil {
			logging.Logger.Error("failed to fetch webhook queue item",
				zap.Uint("item_id", id),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		attempts := item.Attempts + 1

		updates := map[string]any{
			"attempts":   attempts,
			"last_error": errMsg,
		}

		if attempts >= item.MaxAttempts {
			updates["status"] = StatusDead

			logging.Logger.Warn("webhook moved to dead letter",
				zap.Uint("item_id", id),
				zap.Int("attempts", attempts),
				zap.String("last_error", errMsg),
			)
		} else {
			updates["status"] = StatusFailed
			updates["next_retry_at"] = time.Now().Add(DelayForAttempt(attempts))
		}

		err = repository.DBConn.WithContext(ctx).
			Model(&WebhookQueueItem{}).
			Where("id = ?", id).
			Updates(updates).Error
		if err != nil {
			logging.Logger.Error("failed to mark webhook as failed",
				zap.Uint("item_id", id),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return nil, nil
	})

	return err
}

// GetStats returns per-status counts, no side effects.
func (repository *Repository) GetStats(ctx context.Context) (*Stats, error) {
	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		var rows []struct {
			Status string
			Count  int64
		}

		err := repository.DBConn.WithContext(ctx).
			Model(&WebhookQueueItem{}).
			Select("status, COUNT(*) as count").
			Group("status").
			Find(&rows).Error
		if err != nil {
			logging.Logger.Error("failed to fetch queue stats", zap.String("error", err.Error()))
			return nil, err
		}

		stats := &Stats{}

		for _, row := range rows {
			switch row.Status {
			case StatusPending:
				stats.Pending = row.Count
			case StatusProcessing:
				stats.Processing = row.Count
			case StatusFailed:
				stats.Failed = row.Count
			case StatusCompleted:
				stats.Completed = row.Count
			case StatusDead:
				stats.Dead = row.Count
			}
		}

		return stats, nil
	})
	if err != nil {
		return nil, err
	}

	stats, ok := result.(*Stats)
	if !ok {
		return nil, ErrInvalidStatsResult
	}

	return stats, nil
}

// PurgeCompleted deletes completed items older than the cutoff. Dead items
// are kept for manual inspection.
func (repository *Repository) PurgeCompleted(ctx context.Context, olderThanDays int) (int64, error) {
	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)

		del := repository.DBConn.WithContext(ctx).
			Where("status = ? AND updated_at < ?", StatusCompleted, cutoff).
			Delete(&WebhookQueueItem{})
		if del.Error != nil {
			logging.Logger.Error("failed to purge completed webhooks", zap.String("error", del.Error.Error()))
			return nil, del.Error
		}

		return del.RowsAffected, nil
	})
	if err != nil {
		return 0, err
	}

	purged, ok := result.(int64)
	if !ok {
		return 0, ErrInvalidQueueItemResult
	}

	return purged, nil
}
