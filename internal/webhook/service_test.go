package webhook

import (
	"context"
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/shiplog-app/shiplog/internal/categorize"
	"github.com/shiplog-app/shiplog/internal/entry"
	"github.com/shiplog-app/shiplog/internal/project"
	"github.com/shiplog-app/shiplog/internal/queue"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

type stubCategorizer struct {
	err   error
	calls int
}

func (stub *stubCategorizer) Categorize(_ context.Context, in categorize.Input) (*categorize.Categorization, error) {
	stub.calls++

	if stub.err != nil {
		return nil, stub.err
	}

	return &categorize.Categorization{
		Category: categorize.CategoryFeature,
		Summary:  in.Title,
		Emoji:    "✨",
	}, nil
}

func (stub *stubCategorizer) CategorizeWithFallback(_ context.Context, in categorize.Input) *categorize.Categorization {
	fallback := categorize.Fallback(in.Title)
	return &fallback
}

func newTestService(t *testing.T, categorizer categorize.Categorizer) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(&project.Project{}, &entry.ChangelogEntry{}, &queue.WebhookQueueItem{})
	require.NoError(t, err)

	service := NewService(
		project.NewRepository(db),
		entry.NewRepository(db),
		queue.NewRepository(db),
		categorizer,
	)

	return service, db
}

func createProject(t *testing.T, db *gorm.DB, repoID int64, secret string) *project.Project {
	t.Helper()

	proj := &project.Project{
		UserID:        1,
		GithubRepoID:  repoID,
		Name:          "shiplog",
		Slug:          "shiplog",
		FullName:      "octocat/shiplog",
		WebhookSecret: secret,
	}
	require.NoError(t, db.Create(proj).Error)

	return proj
}

func mergedPRBody(t *testing.T, repoID int64, prNumber int) []byte {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"action": "closed",
		"pull_request": map[string]any{
			"number":    prNumber,
			"title":     "Add dark mode",
			"body":      "Adds a toggle",
			"html_url":  "https://github.com/octocat/shiplog/pull/42",
			"merged":    true,
			"merged_at": "2026-08-30T10:00:00Z",
			"user": map[string]any{
				"login":      "octocat",
				"avatar_url": "https://avatars.example/octocat",
			},
		},
		"repository": map[string]any{
			"id":        repoID,
			"full_name": "octocat/shiplog",
		},
	})
	require.NoError(t, err)

	return body
}

func TestHandleDropsNonPullRequestEvent(t *testing.T) {
	service, _ := newTestService(t, &stubCategorizer{})

	result, err := service.Handle(context.Background(), []byte(`{}`), "push", "", "delivery-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeDropped, result.Outcome)
}

func TestHandleDropsUnmergedClose(t *testing.T) {
	service, db := newTestService(t, &stubCategorizer{})
	createProject(t, db, 1234, "")

	body, err := json.Marshal(map[string]any{
		"action":       "closed",
		"pull_request": map[string]any{"number": 42, "merged": false},
		"repository":   map[string]any{"id": 1234},
	})
	require.NoError(t, err)

	result, err := service.Handle(context.Background(), body, "pull_request", "", "delivery-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeDropped, result.Outcome)
}

func TestHandleRejectsMalformedPayload(t *testing.T) {
	service, _ := newTestService(t, &stubCategorizer{})

	_, err := service.Handle(context.Background(), []byte(`not json`), "pull_request", "", "delivery-1")
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestHandleRejectsMissingRepoID(t *testing.T) {
	service, _ := newTestService(t, &stubCategorizer{})

	body, err := json.Marshal(map[string]any{
		"action":       "closed",
		"pull_request": map[string]any{"number": 42, "merged": true},
	})
	require.NoError(t, err)

	_, err = service.Handle(context.Background(), body, "pull_request", "", "delivery-1")
	require.ErrorIs(t, err, ErrMissingRepoID)
}

func TestHandleUnknownRepository(t *testing.T) {
	service, _ := newTestService(t, &stubCategorizer{})

	body := mergedPRBody(t, 9999, 42)

	_, err := service.Handle(context.Background(), body, "pull_request", "", "delivery-1")
	require.ErrorIs(t, err, ErrUnknownRepository)
}

func TestHandleRejectsInvalidSignature(t *testing.T) {
	stub := &stubCategorizer{}
	service, db := newTestService(t, stub)
	createProject(t, db, 1234, "s3cret")

	body := mergedPRBody(t, 1234, 42)

	_, err := service.Handle(context.Background(), body, "pull_request", "sha256=deadbeef", "delivery-1")
	require.ErrorIs(t, err, ErrInvalidSignature)
	require.Zero(t, stub.calls)
}

func TestHandleProcessesMergedPR(t *testing.T) {
	service, db := newTestService(t, &stubCategorizer{})
	proj := createProject(t, db, 1234, "s3cret")

	body := mergedPRBody(t, 1234, 42)
	signature := SignBody("s3cret", body)

	result, err := service.Handle(context.Background(), body, "pull_request", signature, "delivery-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, result.Outcome)
	require.NotNil(t, result.Entry)
	require.Equal(t, proj.ID, result.Entry.ProjectID)
	require.Equal(t, 42, result.Entry.PRNumber)
	require.Equal(t, categorize.CategoryFeature, result.Entry.Category)

	var count int64

	require.NoError(t, db.Model(&entry.ChangelogEntry{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestHandleSkipsVerificationWithoutSecret(t *testing.T) {
	service, db := newTestService(t, &stubCategorizer{})
	createProject(t, db, 1234, "")

	body := mergedPRBody(t, 1234, 42)

	result, err := service.Handle(context.Background(), body, "pull_request", "", "delivery-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, result.Outcome)
}

func TestHandleQueuesOnProcessingFailure(t *testing.T) {
	service, db := newTestService(t, &stubCategorizer{err: errors.New("categorizer unavailable")})
	createProject(t, db, 1234, "s3cret")

	body := mergedPRBody(t, 1234, 42)
	signature := SignBody("s3cret", body)

	result, err := service.Handle(context.Background(), body, "pull_request", signature, "delivery-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeQueued, result.Outcome)
	require.NotZero(t, result.QueueItemID)

	var item queue.WebhookQueueItem

	require.NoError(t, db.First(&item, result.QueueItemID).Error)
	require.Equal(t, queue.StatusPending, item.Status)
	require.Equal(t, 1, item.Attempts)
	require.Equal(t, EventPullRequestMerged, item.EventType)
	require.Equal(t, "categorizer unavailable", item.LastError)
	require.JSONEq(t, string(body), string(item.Payload))

	var entries int64

	require.NoError(t, db.Model(&entry.ChangelogEntry{}).Count(&entries).Error)
	require.Zero(t, entries)
}
