package project

import (
	"context"
	"errors"
	"time"

	"github.com/shiplog-app/shiplog/internal/database"
	"github.com/shiplog-app/shiplog/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidProjectResult = errors.New("invalid result type, it should be pointer to Project")
	ErrProjectNotFound      = errors.New("project not found")
)

type Repository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *Repository {
	cbSettings := database.GetCircuitBreakerSettings()

	// An unknown repository is a lookup miss, not a database fault.
	cbSettings.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrProjectNotFound)
	}

	return &Repository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// GetByRepoID resolves the project tracking a GitHub repository.
func (repository *Repository) GetByRepoID(ctx context.Context, githubRepoID int64) (*Project, error) {
	return repository.getOne(ctx, "github_repo_id = ?", githubRepoID)
}

func (repository *Repository) GetByID(ctx context.Context, id uint) (*Project, error) {
	return repository.getOne(ctx, "id = ?", id)
}

func (repository *Repository) getOne(ctx context.Context, query string, arg any) (*Project, error) {
	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		var proj Project

		err := repository.DBConn.WithContext(ctx).
			Where(query, arg).
			First(&proj).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}

		if err != nil {
			logging.Logger.Error("failed to fetch project",
				zap.String("query", query),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return &proj, nil
	})
	if err != nil {
		return nil, err
	}

	proj, ok := result.(*Project)
	if !ok {
		return nil, ErrInvalidProjectResult
	}

	return proj, nil
}

// UpdateLastSynced stamps the project after a successful full sync.
func (repository *Repository) UpdateLastSynced(ctx context.Context, id uint) error {
	_, err := repository.CircuitBreaker.Execute(func() (any, error) {
		err := repository.DBConn.WithContext(ctx).
			Model(&Project{}).
			Where("id = ?", id).
			Update("last_synced_at", time.Now()).Error
		if err != nil {
			logging.Logger.Error("failed to update project sync time",
				zap.Uint("project_id", id),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return nil, nil
	})

	return err
}
