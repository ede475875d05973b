package user

import (
	"context"
	"errors"

	"github.com/shiplog-app/shiplog/internal/database"
	"github.com/shiplog-app/shiplog/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidUserResult = errors.New("invalid result type, it should be pointer to User")
	ErrUserNotFound      = errors.New("user not found")
)

type Repository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *Repository {
	cbSettings := database.GetCircuitBreakerSettings()
	cbSettings.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrUserNotFound)
	}

	return &Repository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

func (repository *Repository) GetByID(ctx context.Context, id uint) (*User, error) {
	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		var usr User

		err := repository.DBConn.WithContext(ctx).
			Where("id = ?", id).
			First(&usr).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}

		if err != nil {
			logging.Logger.Error("failed to fetch user",
				zap.Uint("user_id", id),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return &usr, nil
	})
	if err != nil {
		return nil, err
	}

	usr, ok := result.(*User)
	if !ok {
		return nil, ErrInvalidUserResult
	}

	return usr, nil
}
