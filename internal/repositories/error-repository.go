package repositories

import (
	"context"
	"fmt"
	"time"

	"request-workflow/internal/entities"

	"github.com/jackc/pgx/v5/pgxpool"
)

type ErrorRepositoryInterface interface {
	Create(ctx context.Context, rec *entities.ErrorRecord) error
	CountSince(ctx context.Context, since time.Time) (int, error)
}

type ErrorRepository struct {
	storage *pgxpool.Pool
}

func NewErrorRepository(storage *pgxpool.Pool) ErrorRepositoryInterface {
	return &ErrorRepository{storage: storage}
}

func (r *ErrorRepository) Create(ctx context.Context, rec *entities.ErrorRecord) error {
	query := `
		INSERT INTO error_records (category, severity, message, context, retry_count, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.storage.Exec(ctx, query,
		rec.Category, rec.Severity, rec.Message, rec.Context, rec.RetryCount, rec.MaxRetries)
	if err != nil {
		return fmt.Errorf("ошибка записи ErrorRecord: %w", err)
	}
	return nil
}

func (r *ErrorRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.storage.QueryRow(ctx,
		`SELECT COUNT(*) FROM error_records WHERE created_at >= $1`, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчета ошибок: %w", err)
	}
	return count, nil
}
