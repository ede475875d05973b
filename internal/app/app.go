package app

import (
	"context"

	"github.com/shiplog-app/shiplog/internal/categorize"
	"github.com/shiplog-app/shiplog/internal/circuitbreak"
	"github.com/shiplog-app/shiplog/internal/config"
	"github.com/shiplog-app/shiplog/internal/database"
	"github.com/shiplog-app/shiplog/internal/drainer"
	"github.com/shiplog-app/shiplog/internal/entry"
	"github.com/shiplog-app/shiplog/internal/github"
	"github.com/shiplog-app/shiplog/internal/healthchecker"
	"github.com/shiplog-app/shiplog/internal/logging"
	"github.com/shiplog-app/shiplog/internal/project"
	"github.com/shiplog-app/shiplog/internal/queue"
	"github.com/shiplog-app/shiplog/internal/server"
	syncService "github.com/shiplog-app/shiplog/internal/sync"
	"github.com/shiplog-app/shiplog/internal/user"
	"github.com/shiplog-app/shiplog/internal/webhook"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Shiplog struct {
	DBConn               *gorm.DB
	WebhookService       *webhook.Service
	DrainerService       *drainer.Service
	DrainWorker          *drainer.Worker
	SyncService          *syncService.Service
	Server               *server.Server
	HealthCheckerService *healthchecker.Healthchecker
}

func NewApp(ctxCancelFun context.CancelFunc) (*Shiplog, error) {
	logging.Logger.Info("[NewApp] Initializing ShipLog ingestion service...")

	healthcheckerService := healthchecker.NewService(ctxCancelFun)

	dbConn, err := database.NewDatabase()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to initialize database", zap.Error(err))
		return nil, err
	}

	logging.Logger.Info("[NewApp] Database connection established")

	projectRepository := project.NewRepository(dbConn)
	userRepository := user.NewRepository(dbConn)
	entryRepository := entry.NewRepository(dbConn)
	queueRepository := queue.NewRepository(dbConn)

	categorizer := categorize.NewClient()
	githubClient := github.NewClient()

	webhookService := webhook.NewService(projectRepository, entryRepository, queueRepository, categorizer)
	drainerService := drainer.NewService(queueRepository, projectRepository, webhookService)
	syncSvc := syncService.NewService(projectRepository, userRepository, entryRepository, githubClient, categorizer)

	drainWorker, err := drainer.NewWorker(drainerService)
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create drain worker", zap.Error(err))
		return nil, err
	}

	apiServer := server.NewServer(webhookService, drainerService, syncSvc, dbConn)

	circuitbreak.Init()
	logging.Logger.Info("[NewApp] Circuit breakers initialized")

	return &Shiplog{
		DBConn:               dbConn,
		WebhookService:       webhookService,
		DrainerService:       drainerService,
		DrainWorker:          drainWorker,
		SyncService:          syncSvc,
		Server:               apiServer,
		HealthCheckerService: healthcheckerService,
	}, nil
}

func (app *Shiplog) Run(ctx context.Context) error {
	logging.Logger.Info("[Run] Starting app goroutines...")

	go app.HealthCheckerService.Monitor()

	if config.Conf.DrainWorkerEnabled {
		logging.Logger.Info("[Run] Starting drain worker goroutine")

		go app.DrainWorker.Run(ctx)
	}

	err := app.Server.Listen(ctx.Done())
	if err != nil {
		logging.Logger.Error("[Run] API server returned error", zap.Error(err))
		return err
	}

	logging.Logger.Info("[Run] ===== App shutdown complete =====")

	return nil
}
