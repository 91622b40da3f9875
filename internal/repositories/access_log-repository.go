package repositories

import (
	"context"
	"fmt"

	"request-workflow/internal/entities"

	"github.com/jackc/pgx/v5/pgxpool"
)

type AccessLogRepositoryInterface interface {
	Create(ctx context.Context, rec *entities.AccessControlLog) error
}

type AccessLogRepository struct {
	storage *pgxpool.Pool
}

func NewAccessLogRepository(storage *pgxpool.Pool) AccessLogRepositoryInterface {
	return &AccessLogRepository{storage: storage}
}

func (r *AccessLogRepository) Create(ctx context.Context, rec *entities.AccessControlLog) error {
	query := `
		INSERT INTO access_control_log (user_id, action, resource, granted, reason)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.storage.Exec(ctx, query, rec.UserID, rec.Action, rec.Resource, rec.Granted, rec.Reason)
	if err != nil {
		return fmt.Errorf("ошибка записи журнала доступа: %w", err)
	}
	return nil
}
