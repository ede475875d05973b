package entry

import (
	"context"
	"errors"

	"github.com/shiplog-app/shiplog/internal/database"
	"github.com/shiplog-app/shiplog/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidEntryResult = errors.New("invalid result type, it should be pointer to ChangelogEntry")

// upsertColumns are the content fields a replayed or edited PR may change.
// The key and created_at are never touched on conflict.
var upsertColumns = []string{
	"pr_title",
	"pr_body",
	"pr_url",
	"pr_author",
	"pr_author_avatar",
	"pr_merged_at",
	"category",
	"summary",
	"emoji",
	"updated_at",
}

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

// Upsert inserts or updates the entry for (project_id, pr_number) in a
// single conflict-aware statement, so concurrent deliveries of the same
// PR cannot duplicate rows.
func (repository *Repository) Upsert(ctx context.Context, data *ChangelogEntry) (*ChangelogEntry, error) {
	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		err := repository.DBConn.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "project_id"}, {Name: "pr_number"}},
				DoUpdates: clause.AssignmentColumns(upsertColumns),
			}).
			Create(data).Error
		if err != nil {
			logging.Logger.Error("failed to upsert changelog entry",
				zap.Uint("project_id", data.ProjectID),
				zap.Int("pr_number", data.PRNumber),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		var stored ChangelogEntry

		err = repository.DBConn.WithContext(ctx).
			Where("project_id = ? AND pr_number = ?", data.ProjectID, data.PRNumber).
			First(&stored).Error
		if err != nil {
			return nil, err
		}

		return &stored, nil
	})
	if err != nil {
		return nil, err
	}

	stored, ok := result.(*ChangelogEntry)
	if !ok {
		return nil, ErrInvalidEntryResult
	}

	logging.Logger.Info("changelog entry upserted",
		zap.Uint("project_id", stored.ProjectID),
		zap.Int("pr_number", stored.PRNumber),
		zap.String("category", stored.Category),
	)

	return stored, nil
}

// GetByProject lists published entries for a project, newest merge first.
func (repository *Repository) GetByProject(ctx context.Context, projectID uint, limit int) ([]ChangelogEntry, error) {
	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		var entries []ChangelogEntry

		query := repository.DBConn.WithContext(ctx).
			Where("project_id = ? AND is_published = ?", projectID, true).
			Order("pr_merged_at DESC")

		if limit > 0 {
			query = query.Limit(limit)
		}

		err := query.Find(&entries).Error
		if err != nil {
			logging.Logger.Error("failed to fetch changelog entries",
				zap.Uint("project_id", projectID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return entries, nil
	})
	if err != nil {
		return nil, err
	}

	entries, ok := result.([]ChangelogEntry)
	if !ok {
		return nil, ErrInvalidEntryResult
	}

	return entries, nil
}
