package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func newTestRepository(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&WebhookQueueItem{}))

	return NewRepository(db), db
}

func makeDue(t *testing.T, db *gorm.DB, id uint) {
	t.Helper()

	err := db.Model(&WebhookQueueItem{}).
		Where("id = ?", id).
		UpdateColumn("next_retry_at", time.Now().Add(-time.Minute)).Error
	require.NoError(t, err)
}

func reload(t *testing.T, db *gorm.DB, id uint) *WebhookQueueItem {
	t.Helper()

	var item WebhookQueueItem

	require.NoError(t, db.First(&item, id).Error)

	return &item
}

func TestEnqueueDefaults(t *testing.T) {
	repository, db := newTestRepository(t)

	before := time.Now()

	item, err := repository.Enqueue(context.Background(), "pull-request-merged", []byte(`{"action":"closed"}`), "categorizer unavailable")
	require.NoError(t, err)

	stored := reload(t, db, item.ID)
	require.Equal(t, StatusPending, stored.Status)
	require.Equal(t, 1, stored.Attempts)
	require.Equal(t, 5, stored.MaxAttempts)
	require.Equal(t, "categorizer unavailable", stored.LastError)
	require.WithinDuration(t, before.Add(30*time.Second), stored.NextRetryAt, 5*time.Second)
}

func TestGetRetryableReturnsOnlyDueItems(t *testing.T) {
	repository, db := newTestRepository(t)
	ctx := context.Background()

	due, err := repository.Enqueue(ctx, "pull-request-merged", []byte(`{}`), "boom")
	require.NoError(t, err)
	makeDue(t, db, due.ID)

	notDue, err := repository.Enqueue(ctx, "pull-request-merged", []byte(`{}`), "boom")
	require.NoError(t, err)

	completed, err := repository.Enqueue(ctx, "pull-request-merged", []byte(`{}`), "boom")
	require.NoError(t, err)
	makeDue(t, db, completed.ID)

	claimed, err := repository.MarkProcessing(ctx, completed.ID)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, repository.MarkCompleted(ctx, completed.ID))

	items, err := repository.GetRetryable(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, due.ID, items[0].ID)
	require.NotEqual(t, notDue.ID, items[0].ID)
}

func TestGetRetryableOrdersOldestFirstAndHonorsLimit(t *testing.T) {
	repository, db := newTestRepository(t)
	ctx := context.Background()

	newer, err := repository.Enqueue(ctx, "pull-request-merged", []byte(`{}`), "boom")
	require.NoError(t, err)

	older, err := repository.Enqueue(ctx, "pull-request-merged", []byte(`{}`), "boom")
	require.NoError(t, err)

	err = db.Model(&WebhookQueueItem{}).
		Where("id = ?", newer.ID).
		UpdateColumn("next_retry_at", time.Now().Add(-time.Minute)).Error
	require.NoError(t, err)

	err = db.Model(&WebhookQueueItem{}).
		Where("id = ?", older.ID).
		UpdateColumn("next_retry_at", time.Now().Add(-time.Hour)).Error
	require.NoError(t, err)

	items, err := repository.GetRetryable(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, older.ID, items[0].ID)

	items, err = repository.GetRetryable(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, older.ID, items[0].ID)
}

func TestMarkProcessingClaimsExactlyOnce(t *testing.T) {
	repository, _ := newTestRepository(t)
	ctx := context.Background()

	item, err := repository.Enqueue(ctx, "pull-request-merged", []byte(`{}`), "boom")
	require.NoError(t, err)

	claimed, err := repository.MarkProcessing(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = repository.MarkProcessing(ctx, item.ID)
	require.NoError(t, err)
	require.False(t, claimed)
}

func TestMarkProcessingSkipsTerminalStates(t *testing.T) {
	repository, db := newTestRepository(t)
	ctx := context.Background()

	item, err := repository.Enqueue(ctx, "pull-request-merged", []byte(`{}`), "boom")
	require.NoError(t, err)

	claimed, err := repository.MarkProcessing(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, repository.MarkCompleted(ctx, item.ID))

	claimed, err = repository.MarkProcessing(ctx, item.ID)
	require.NoError(t, err)
	require.False(t, claimed)
	require.Equal(t, StatusCompleted, reload(t, db, item.ID).Status)
}

func TestMarkFailedReschedulesWithBackoff(t *testing.T) {
	repository, db := newTestRepository(t)
	ctx := context.Background()

	item, err := repository.Enqueue(ctx, "pull-request-merged", []byte(`{}`), "boom")
	require.NoError(t, err)

	claimed, err := repository.MarkProcessing(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	before := time.Now()
	require.NoError(t, repository.MarkFailed(ctx, item.ID, "still broken"))

	stored := reload(t, db, item.ID)
	require.Equal(t, StatusFailed, stored.Status)
	require.Equal(t, 2, stored.Attempts)
	require.Equal(t, "still broken", stored.LastError)
	require.WithinDuration(t, before.Add(DelayForAttempt(2)), stored.NextRetryAt, 5*time.Second)
}

func TestItemDeadAfterAttemptBudget(t *testing.T) {
	repository, db := newTestRepository(t)
	ctx := context.Background()

	item, err := repository.Enqueue(ctx, "pull-request-merged", []byte(`{}`), "boom")
	require.NoError(t, err)

	for range 4 {
		claimed, err := repository.MarkProcessing(ctx, item.ID)
		require.NoError(t, err)
		require.True(t, claimed)

		require.NoError(t, repository.MarkFailed(ctx, item.ID, "boom"))
	}

	stored := reload(t, db, item.ID)
	require.Equal(t, StatusDead, stored.Status)
	require.Equal(t, 5, stored.Attempts)

	claimed, err := repository.MarkProcessing(ctx, item.ID)
	require.NoError(t, err)
	require.False(t, claimed)
	require.Equal(t, StatusDead, reload(t, db, item.ID).Status)
}

func TestItemRecoversBeforeBudgetExhausted(t *testing.T) {
	repository, db := newTestRepository(t)
	ctx := context.Background()

	item, err := repository.Enqueue(ctx, "pull-request-merged", []byte(`{}`), "boom")
	require.NoError(t, err)

	for range 3 {
		claimed, err := repository.MarkProcessing(ctx, item.ID)
		require.NoError(t, err)
		require.True(t, claimed)

		require.NoError(t, repository.MarkFailed(ctx, item.ID, "boom"))
	}

	claimed, err := repository.MarkProcessing(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, repository.MarkCompleted(ctx, item.ID))

	stored := reload(t, db, item.ID)
	require.Equal(t, StatusCompleted, stored.Status)
	require.Equal(t, 4, stored.Attempts)

	makeDue(t, db, item.ID)

	items, err := repository.GetRetryable(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, items)

	claimed, err = repository.MarkProcessing(ctx, item.ID)
	require.NoError(t, err)
	require.False(t, claimed)
}

func TestMarkFailedMissingItem(t *testing.T) {
	repository, _ := newTestRepository(t)

	err := repository.MarkFailed(context.Background(), 9999, "boom")
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestGetStatsCountsPerStatus(t *testing.T) {
	repository, db := newTestRepository(t)
	ctx := context.Background()

	first, err := repository.Enqueue(ctx, "pull-request-merged", []byte(`{}`), "boom")
	require.NoError(t, err)

	second, err := repository.Enqueue(ctx, "pull-request-merged", []byte(`{}`), "boom")
	require.NoError(t, err)

	_, err = repository.Enqueue(ctx, "pull-request-merged", []byte(`{}`), "boom")
	require.NoError(t, err)

	claimed, err := repository.MarkProcessing(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, repository.MarkCompleted(ctx, first.ID))

	claimed, err = repository.MarkProcessing(ctx, second.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	stats, err := repository.GetStats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Pending)
	require.Equal(t, int64(1), stats.Processing)
	require.Equal(t, int64(1), stats.Completed)
	require.Equal(t, int64(0), stats.Failed)
	require.Equal(t, int64(0), stats.Dead)

	var total int64

	require.NoError(t, db.Model(&WebhookQueueItem{}).Count(&total).Error)
	require.Equal(t, int64(3), total)
}

func TestPurgeCompletedDeletesOnlyOldCompleted(t *testing.T) {
	repository, db := newTestRepository(t)
	ctx := context.Background()

	oldCompleted, err := repository.Enqueue(ctx, "pull-request-merged", []byte(`{}`), "boom")
	require.NoError(t, err)

	freshCompleted, err := repository.Enqueue(ctx, "pull-request-merged", []byte(`{}`), "boom")
	require.NoError(t, err)

	pending, err := repository.Enqueue(ctx, "pull-request-merged", []byte(`{}`), "boom")
	require.NoError(t, err)

	for _, id := range []uint{oldCompleted.ID, freshCompleted.ID} {
		claimed, err := repository.MarkProcessing(ctx, id)
		require.NoError(t, err)
		require.True(t, claimed)
		require.NoError(t, repository.MarkCompleted(ctx, id))
	}

	err = db.Model(&WebhookQueueItem{}).
		Where("id = ?", oldCompleted.ID).
		UpdateColumn("updated_at", time.Now().AddDate(0, 0, -8)).Error
	require.NoError(t, err)

	purged, err := repository.PurgeCompleted(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)

	var remaining []WebhookQueueItem

	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 2)

	require.Equal(t, StatusCompleted, reload(t, db, freshCompleted.ID).Status)
	require.Equal(t, StatusPending, reload(t, db, pending.ID).Status)
}
