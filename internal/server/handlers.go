package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shiplog-app/shiplog/internal/config"
	"github.com/shiplog-app/shiplog/internal/logging"
	prometheusShiplog "github.com/shiplog-app/shiplog/internal/prometheus"
	"github.com/shiplog-app/shiplog/internal/queue"
	"github.com/shiplog-app/shiplog/internal/webhook"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func shutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), shutdownTimeout)
}

func (server *Server) handleGithubWebhook(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(prometheusShiplog.IntakeDuration)
	defer timer.ObserveDuration()

	deliveryID := r.Header.Get("X-GitHub-Delivery")
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, config.Conf.MaxWebhookBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Unreadable body"})
		return
	}

	result, err := server.WebhookService.Handle(
		r.Context(),
		body,
		r.Header.Get("X-GitHub-Event"),
		r.Header.Get("X-Hub-Signature-256"),
		deliveryID,
	)
	if err != nil {
		server.writeWebhookError(w, err, deliveryID)
		return
	}

	prometheusShiplog.WebhookOutcomes.WithLabelValues(string(result.Outcome)).Inc()

	switch result.Outcome {
	case webhook.OutcomeDropped:
		writeJSON(w, http.StatusOK, map[string]string{"message": "Event ignored"})
	case webhook.OutcomeQueued:
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"queued":  true,
			"itemId":  result.QueueItemID,
		})
	case webhook.OutcomeProcessed:
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"entry": map[string]any{
				"id":       result.Entry.ID,
				"category": result.Entry.Category,
			},
		})
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func (server *Server) writeWebhookError(w http.ResponseWriter, err error, deliveryID string) {
	switch {
	case errors.Is(err, webhook.ErrInvalidSignature):
		prometheusShiplog.WebhookOutcomes.WithLabelValues(string(webhook.OutcomeRejected)).Inc()
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Invalid signature"})
	case errors.Is(err, webhook.ErrUnknownRepository):
		prometheusShiplog.WebhookOutcomes.WithLabelValues(string(webhook.OutcomeRejected)).Inc()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown repo"})
	case errors.Is(err, webhook.ErrMissingRepoID), errors.Is(err, webhook.ErrMalformedPayload):
		prometheusShiplog.WebhookOutcomes.WithLabelValues(string(webhook.OutcomeRejected)).Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing repo id"})
	default:
		logging.Logger.Error("webhook handling failed",
			zap.String("delivery_id", deliveryID),
			zap.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Webhook processing failed"})
	}
}

func (server *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(prometheusShiplog.DrainDuration)
	defer timer.ObserveDuration()

	var request struct {
		ProjectID uint `json:"projectId"`
		Limit     int  `json:"limit"`
	}

	// Body is optional; an empty request sweeps everything.
	_ = json.NewDecoder(r.Body).Decode(&request)

	if request.Limit <= 0 {
		request.Limit = config.Conf.DrainBatchLimit
	}

	result, err := server.DrainerService.Drain(r.Context(), request.Limit, request.ProjectID)
	if err != nil {
		logging.Logger.Error("retry drain failed", zap.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Retry processing failed"})

		return
	}

	recordQueueDepth(result.Stats)
	writeJSON(w, http.StatusOK, result)
}

func (server *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ProjectID uint `json:"projectId"`
	}

	err := json.NewDecoder(r.Body).Decode(&request)
	if err != nil || request.ProjectID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing projectId"})
		return
	}

	result, err := server.SyncService.SyncProject(r.Context(), request.ProjectID)
	if err != nil {
		logging.Logger.Error("project sync failed",
			zap.Uint("project_id", request.ProjectID),
			zap.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Sync failed"})

		return
	}

	writeJSON(w, http.StatusOK, result)
}

func recordQueueDepth(stats *queue.Stats) {
	if stats == nil {
		return
	}

	prometheusShiplog.QueueDepth.WithLabelValues(queue.StatusPending).Set(float64(stats.Pending))
	prometheusShiplog.QueueDepth.WithLabelValues(queue.StatusProcessing).Set(float64(stats.Processing))
	prometheusShiplog.QueueDepth.WithLabelValues(queue.StatusFailed).Set(float64(stats.Failed))
	prometheusShiplog.QueueDepth.WithLabelValues(queue.StatusCompleted).Set(float64(stats.Completed))
	prometheusShiplog.QueueDepth.WithLabelValues(queue.StatusDead).Set(float64(stats.Dead))
}
