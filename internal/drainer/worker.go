package drainer

import (
	"context"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/shiplog-app/shiplog/internal/config"
	"github.com/shiplog-app/shiplog/internal/logging"
	"go.uber.org/zap"
)

// Worker drives periodic drain passes in-process, for deployments without
// an external cron hitting the retry endpoint. Overlap with an HTTP
// triggered drain is safe: claiming is atomic at the store.
type Worker struct {
	WorkerPool *ants.Pool
	Service    *Service
}

func NewWorker(service *Service) (*Worker, error) {
	workerPool, err := ants.NewPool(config.Conf.DrainPoolSize, ants.WithPreAlloc(true))
	if err != nil {
		return nil, err
	}

	return &Worker{
		WorkerPool: workerPool,
		Service:    service,
	}, nil
}

func (worker *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(config.Conf.DrainInterval) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			worker.WorkerPool.Release()
			return
		case <-ticker.C:
			worker.submitDrain(ctx)
		}
	}
}

func (worker *Worker) submitDrain(ctx context.Context) {
	err := worker.WorkerPool.Submit(func() {
		result, err := worker.Service.Drain(ctx, config.Conf.DrainBatchLimit, 0)
		if err != nil {
			logging.Logger.Error("scheduled drain pass failed", zap.String("error", err.Error()))
			return
		}

		if result.Processed == 0 {
			logging.Logger.Debug("no webhooks to retry")
			return
		}

		logging.Logger.Info("scheduled drain pass finished",
			zap.Int("processed", result.Processed),
			zap.Int("succeeded", result.Succeeded),
			zap.Int("failed", result.Failed),
			zap.Int64("purged", result.Purged),
		)
	})
	if err != nil {
		logging.Logger.Error("failed to submit drain pass to worker pool", zap.String("error", err.Error()))
	}
}
