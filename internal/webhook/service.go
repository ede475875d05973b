package webhook

import (
	"context"
	"errors"

	"github.com/shiplog-app/shiplog/internal/categorize"
	"github.com/shiplog-app/shiplog/internal/entry"
	"github.com/shiplog-app/shiplog/internal/logging"
	"github.com/shiplog-app/shiplog/internal/project"
	"github.com/shiplog-app/shiplog/internal/queue"
	"go.uber.org/zap"
)

// EventPullRequestMerged tags queued payloads so a future event kind can
// share the queue table.
const EventPullRequestMerged = "pull-request-merged"

var (
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrUnknownRepository = errors.New("no project tracks this repository")
)

type Outcome string

const (
	OutcomeDropped   Outcome = "dropped"
	OutcomeRejected  Outcome = "rejected"
	OutcomeProcessed Outcome = "processed"
	OutcomeQueued    Outcome = "queued"
)

// Result is what intake reports back to the HTTP layer. Entry is set for
// processed events, QueueItemID for queued ones.
type Result struct {
	Outcome     Outcome
	Entry       *entry.ChangelogEntry
	QueueItemID uint
}

type Service struct {
	ProjectRepository *project.Repository
	EntryRepository   *entry.Repository
	QueueRepository   *queue.Repository
	Categorizer       categorize.Categorizer
}

func NewService(
	projectRepository *project.Repository,
	entryRepository *entry.Repository,
	queueRepository *queue.Repository,
	categorizer categorize.Categorizer,
) *Service {
	return &Service{
		ProjectRepository: projectRepository,
		EntryRepository:   entryRepository,
		QueueRepository:   queueRepository,
		Categorizer:       categorizer,
	}
}

// Handle runs the intake contract for one delivery: filter, resolve,
// authenticate, process. Once an event passes authentication, a downstream
// failure never surfaces as an error to GitHub; the payload is queued and
// the outcome says so.
func (service *Service) Handle(
	ctx context.Context,
	body []byte,
	eventHeader string,
	signature string,
	deliveryID string,
) (*Result, error) {
	if eventHeader != "pull_request" {
		return &Result{Outcome: OutcomeDropped}, nil
	}

	event, err := ParsePullRequestEvent(body)
	if err != nil {
		return nil, err
	}

	if !event.IsMergedPR() {
		return &Result{Outcome: OutcomeDropped}, nil
	}

	if event.Repository == nil || event.Repository.ID == 0 {
		return nil, ErrMissingRepoID
	}

	proj, err := service.ProjectRepository.GetByRepoID(ctx, event.Repository.ID)
	if errors.Is(err, project.ErrProjectNotFound) {
		logging.Logger.Info("webhook for untracked repository",
			zap.Int64("github_repo_id", event.Repository.ID),
			zap.String("delivery_id", deliveryID),
		)

		return nil, ErrUnknownRepository
	}

	if err != nil {
		// Lookup failed before the delivery could be authenticated, so it
		// must not be queued. GitHub sees a 5xx and redelivers.
		return nil, err
	}

	if proj.WebhookSecret != "" {
		if !VerifySignature(proj.WebhookSecret, body, signature) {
			logging.Logger.Warn("webhook signature mismatch",
				zap.Uint("project_id", proj.ID),
				zap.String("delivery_id", deliveryID),
			)

			return nil, ErrInvalidSignature
		}
	}

	stored, err := service.ProcessPullRequest(ctx, proj, event.PullRequest)
	if err != nil {
		logging.Logger.Error("webhook processing failed, queueing for retry",
			zap.Uint("project_id", proj.ID),
			zap.Int("pr_number", event.PullRequest.Number),
			zap.String("delivery_id", deliveryID),
			zap.String("error", err.Error()),
		)

		return service.enqueue(ctx, body, err, deliveryID)
	}

	logging.Logger.Info("webhook processed",
		zap.Uint("project_id", proj.ID),
		zap.Int("pr_number", event.PullRequest.Number),
		zap.String("category", stored.Category),
		zap.String("delivery_id", deliveryID),
	)

	return &Result{Outcome: OutcomeProcessed, Entry: stored}, nil
}

// ProcessPullRequest is the categorize-then-upsert path shared by live
// intake and the retry drainer. Errors propagate; the caller decides
// between enqueue and markFailed.
func (service *Service) ProcessPullRequest(
	ctx context.Context,
	proj *project.Project,
	pr *PullRequest,
) (*entry.ChangelogEntry, error) {
	categorization, err := service.Categorizer.Categorize(ctx, categorize.Input{
		Title: pr.Title,
		Body:  pr.Body,
	})
	if err != nil {
		return nil, err
	}

	return service.EntryRepository.Upsert(ctx, &entry.ChangelogEntry{
		ProjectID:      proj.ID,
		PRNumber:       pr.Number,
		PRTitle:        pr.Title,
		PRBody:         pr.Body,
		PRUrl:          pr.HTMLURL,
		PRAuthor:       pr.User.Login,
		PRAuthorAvatar: pr.User.AvatarURL,
		PRMergedAt:     pr.MergedAt,
		Category:       categorization.Category,
		Summary:        categorization.Summary,
		Emoji:          categorization.Emoji,
	})
}

func (service *Service) enqueue(
	ctx context.Context,
	body []byte,
	cause error,
	deliveryID string,
) (*Result, error) {
	item, err := service.QueueRepository.Enqueue(ctx, EventPullRequestMerged, body, cause.Error())
	if err != nil {
		// Both the pipeline and the queue are down; nothing durable is
		// left, so let GitHub's own retry take over.
		logging.Logger.Error("failed to queue webhook after processing failure",
			zap.String("delivery_id", deliveryID),
			zap.String("process_error", cause.Error()),
			zap.String("queue_error", err.Error()),
		)

		return nil, err
	}

	return &Result{Outcome: OutcomeQueued, QueueItemID: item.ID}, nil
}
