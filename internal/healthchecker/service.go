package healthchecker

import (
	"context"
	"time"

	"github.com/shiplog-app/shiplog/internal/circuitbreak"
	"github.com/shiplog-app/shiplog/internal/config"
	"github.com/shiplog-app/shiplog/internal/logging"
	"go.uber.org/zap"
)

// Healthchecker cancels the app context when a circuit breaker opens and
// gates the restart loop until the broken dependency answers again.
type Healthchecker struct {
	CtxCancelFunc context.CancelFunc
	ErrorService  string
}

func NewService(ctxCancelFunc context.CancelFunc) *Healthchecker {
	return &Healthchecker{
		CtxCancelFunc: ctxCancelFunc,
	}
}

func (h *Healthchecker) Monitor() {
	logging.Logger.Info("health checker monitor start successfully")

	serviceName := <-circuitbreak.CircuitBreakChan

	logging.Logger.Info("circuit break happened", zap.String("service", serviceName))
	h.ErrorService = serviceName
	h.CtxCancelFunc()
}

func (h *Healthchecker) Check() {
	if h.ErrorService == "" {
		logging.Logger.Error("healthchecker error service is empty")
	}

	ticker := time.NewTicker(time.Duration(config.Conf.HealthCheckerMonitorInterval) * time.Second)
	defer ticker.Stop()

	for {
		<-ticker.C

		ok := h.checkErrorService()
		if ok {
			return
		}
	}
}

func (h *Healthchecker) checkErrorService() bool {
	type checkFunc func() bool

	checks := map[string]checkFunc{
		circuitbreak.DBService:          CheckDB,
		circuitbreak.CategorizerService: CheckCategorizer,
		circuitbreak.GithubService:      CheckGithub,
	}

	check, ok := checks[h.ErrorService]
	if !ok {
		logging.Logger.Warn("Unknown service in checkErrorService", zap.String("service", h.ErrorService))
		return false
	}

	isHealthy := check()
	if isHealthy {
		logging.Logger.Info(h.ErrorService + " service back healthy")
	}

	return isHealthy
}
