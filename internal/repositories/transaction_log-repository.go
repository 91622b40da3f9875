package repositories

import (
	"context"
	"fmt"

	"request-workflow/internal/entities"

	"github.com/jackc/pgx/v5/pgxpool"
)

type TransactionLogRepositoryInterface interface {
	// Create пишет мимо бизнес-транзакции (через пул): запись об операции
	// должна пережить откат самой операции.
	Create(ctx context.Context, entry *entities.TransactionLogEntry) (int64, error)
	SetStatusByTransaction(ctx context.Context, transactionID, status string) error
}

type TransactionLogRepository struct {
	storage *pgxpool.Pool
}

func NewTransactionLogRepository(storage *pgxpool.Pool) TransactionLogRepositoryInterface {
	return &TransactionLogRepository{storage: storage}
}

func (r *TransactionLogRepository) Create(ctx context.Context, entry *entities.TransactionLogEntry) (int64, error) {
	query := `
		INSERT INTO transaction_log (transaction_id, operation_type, operation_data, rollback_data, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id int64
	err := r.storage.QueryRow(ctx, query,
		entry.TransactionID, entry.OperationType, entry.OperationData, entry.RollbackData, entry.Status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ошибка записи журнала транзакций: %w", err)
	}
	return id, nil
}

func (r *TransactionLogRepository) SetStatusByTransaction(ctx context.Context, transactionID, status string) error {
	query := `
		UPDATE transaction_log
		SET status = $2, updated_at = now()
		WHERE transaction_id = $1 AND status = 'pending'`

	if _, err := r.storage.Exec(ctx, query, transactionID, status); err != nil {
		return fmt.Errorf("ошибка обновления журнала транзакций: %w", err)
	}
	return nil
}
