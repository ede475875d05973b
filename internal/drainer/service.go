package drainer

import (
	"context"
	"errors"
	"fmt"

	"github.com/shiplog-app/shiplog/internal/config"
	"github.com/shiplog-app/shiplog/internal/logging"
	"github.com/shiplog-app/shiplog/internal/project"
	"github.com/shiplog-app/shiplog/internal/queue"
	"github.com/shiplog-app/shiplog/internal/webhook"
	"go.uber.org/zap"
)

// Result aggregates one drain pass. Skipped claims (lost races, scope
// mismatches) are not counted as processed.
type Result struct {
	Processed int          `json:"processed"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Purged    int64        `json:"purged"`
	Stats     *queue.Stats `json:"queueStats"`
}

type Service struct {
	QueueRepository   *queue.Repository
	ProjectRepository *project.Repository
	WebhookService    *webhook.Service
}

func NewService(
	queueRepository *queue.Repository,
	projectRepository *project.Repository,
	webhookService *webhook.Service,
) *Service {
	return &Service{
		QueueRepository:   queueRepository,
		ProjectRepository: projectRepository,
		WebhookService:    webhookService,
	}
}

// Drain claims due queue items and replays them through the intake path.
// projectID scopes the pass to one project when non-zero. A bad item is
// recorded via MarkFailed and never aborts the rest of the batch.
func (service *Service) Drain(ctx context.Context, limit int, projectID uint) (*Result, error) {
	result := &Result{}

	items, err := service.QueueRepository.GetRetryable(ctx, limit)
	if err != nil {
		return nil, err
	}

	for idx := range items {
		item := items[idx]

		if projectID != 0 && !service.matchesProject(ctx, &item, projectID) {
			continue
		}

		claimed, err := service.QueueRepository.MarkProcessing(ctx, item.ID)
		if err != nil {
			logging.Logger.Error("failed to claim queue item",
				zap.Uint("item_id", item.ID),
				zap.String("error", err.Error()),
			)

			continue
		}

		if !claimed {
			continue
		}

		result.Processed++

		if service.retryItem(ctx, &item) {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	purged, err := service.QueueRepository.PurgeCompleted(ctx, config.Conf.PurgeRetentionDays)
	if err != nil {
		logging.Logger.Error("failed to purge completed queue items", zap.String("error", err.Error()))
	} else {
		result.Purged = purged
	}

	stats, err := service.QueueRepository.GetStats(ctx)
	if err != nil {
		logging.Logger.Error("failed to fetch queue stats", zap.String("error", err.Error()))
	} else {
		result.Stats = stats
	}

	return result, nil
}

// retryItem replays one claimed item and reclassifies it. Returns true on
// success.
func (service *Service) retryItem(ctx context.Context, item *queue.WebhookQueueItem) bool {
	event, err := webhook.ParsePullRequestEvent(item.Payload)
	if err != nil {
		return service.fail(ctx, item, "invalid payload: not a pull request event")
	}

	if event.Repository == nil || event.Repository.ID == 0 || event.PullRequest == nil {
		return service.fail(ctx, item, "invalid payload: missing repo ID or PR data")
	}

	proj, err := service.ProjectRepository.GetByRepoID(ctx, event.Repository.ID)
	if errors.Is(err, project.ErrProjectNotFound) {
		return service.fail(ctx, item, fmt.Sprintf("no project found for repo %d", event.Repository.ID))
	}

	if err != nil {
		return service.fail(ctx, item, err.Error())
	}

	stored, err := service.WebhookService.ProcessPullRequest(ctx, proj, event.PullRequest)
	if err != nil {
		return service.fail(ctx, item, err.Error())
	}

	err = service.QueueRepository.MarkCompleted(ctx, item.ID)
	if err != nil {
		logging.Logger.Error("failed to mark queue item completed",
			zap.Uint("item_id", item.ID),
			zap.String("error", err.Error()),
		)
	}

	logging.Logger.Info("webhook retry succeeded",
		zap.Uint("item_id", item.ID),
		zap.Uint("entry_id", stored.ID),
		zap.Int("pr_number", stored.PRNumber),
	)

	return true
}

func (service *Service) fail(ctx context.Context, item *queue.WebhookQueueItem, reason string) bool {
	logging.Logger.Warn("webhook retry failed",
		zap.Uint("item_id", item.ID),
		zap.Int("attempts", item.Attempts),
		zap.String("reason", reason),
	)

	err := service.QueueRepository.MarkFailed(ctx, item.ID, reason)
	if err != nil {
		logging.Logger.Error("failed to record retry failure",
			zap.Uint("item_id", item.ID),
			zap.String("error", err.Error()),
		)
	}

	return false
}

// matchesProject peeks at an unclaimed item's payload to honor a scoped
// drain without consuming the item's retry budget.
func (service *Service) matchesProject(ctx context.Context, item *queue.WebhookQueueItem, projectID uint) bool {
	event, err := webhook.ParsePullRequestEvent(item.Payload)
	if err != nil || event.Repository == nil {
		return false
	}

	proj, err := service.ProjectRepository.GetByRepoID(ctx, event.Repository.ID)
	if err != nil {
		return false
	}

	return proj.ID == projectID
}
