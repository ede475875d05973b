package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/shiplog-app/shiplog/internal/config"
	"github.com/shiplog-app/shiplog/internal/drainer"
	"github.com/shiplog-app/shiplog/internal/logging"
	syncService "github.com/shiplog-app/shiplog/internal/sync"
	"github.com/shiplog-app/shiplog/internal/webhook"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Server struct {
	WebhookService *webhook.Service
	DrainerService *drainer.Service
	SyncService    *syncService.Service
	DBConn         *gorm.DB
}

func NewServer(
	webhookService *webhook.Service,
	drainerService *drainer.Service,
	svc *syncService.Service,
	dbConn *gorm.DB,
) *Server {
	return &Server{
		WebhookService: webhookService,
		DrainerService: drainerService,
		SyncService:    svc,
		DBConn:         dbConn,
	}
}

func (server *Server) Router() *chi.Mux {
	router := chi.NewRouter()

	router.Get("/health", server.handleHealth)

	router.Group(func(r chi.Router) {
		r.Use(httprate.Limit(
			config.Conf.WebhookRateLimit,
			time.Duration(config.Conf.WebhookRateWindow)*time.Second,
			httprate.WithKeyFuncs(httprate.KeyByIP),
		))
		r.Post("/api/webhooks/github", server.handleGithubWebhook)
	})

	router.Group(func(r chi.Router) {
		r.Use(server.cronAuthMiddleware)
		r.Post("/api/webhooks/retry", server.handleRetry)
		r.Post("/api/sync", server.handleSync)
	})

	return router
}

// Listen blocks serving HTTP until the context is canceled, then shuts
// down gracefully.
func (server *Server) Listen(stop <-chan struct{}) error {
	httpServer := &http.Server{
		Addr:              ":" + config.Conf.ServerPort,
		Handler:           server.Router(),
		ReadTimeout:       time.Duration(config.Conf.ServerTimeout) * time.Second,
		ReadHeaderTimeout: time.Duration(config.Conf.ServerTimeout) * time.Second,
		WriteTimeout:      time.Duration(config.Conf.ServerTimeout) * time.Second,
		IdleTimeout:       time.Duration(config.Conf.ServerTimeout) * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		logging.Logger.Info("start api server on port " + config.Conf.ServerPort)

		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-stop:
		shutdownCtx, cancel := shutdownContext()
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	}
}

func (server *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := server.DBConn.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}

	if err != nil {
		logging.Logger.Error("database health check failed", zap.String("error", err.Error()))
		http.Error(w, "Database unhealthy", http.StatusServiceUnavailable)

		return
	}

	_, _ = w.Write([]byte("OK"))
}

func (server *Server) cronAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if config.Conf.CronSecret == "" || r.Header.Get("Authorization") != "Bearer "+config.Conf.CronSecret {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(payload)
	if err != nil {
		logging.Logger.Error("failed to encode response", zap.String("error", err.Error()))
	}
}
