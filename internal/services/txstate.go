package services

import (
	"context"

	"request-workflow/internal/entities"
	"request-workflow/internal/repositories"
	"request-workflow/pkg/constants"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Journal накапливает записи журнала транзакций одной многошаговой операции.
// Каждый под-шаг регистрируется ДО своей мутации, поэтому rollback_data
// доступна даже если сама мутация так и не выполнилась.
type Journal struct {
	TransactionID string

	repo   repositories.TransactionLogRepositoryInterface
	logger *zap.Logger
}

// Record пишет под-шаг мимо бизнес-транзакции: запись переживает её откат.
func (j *Journal) Record(ctx context.Context, operationType string, operationData, rollbackData map[string]interface{}) error {
	_, err := j.repo.Create(ctx, &entities.TransactionLogEntry{
		TransactionID: j.TransactionID,
		OperationType: operationType,
		OperationData: operationData,
		RollbackData:  rollbackData,
		Status:        constants.TxLogPending,
	})
	return err
}

type TxStateManagerInterface interface {
	// Run выполняет fn внутри одной транзакции БД со строковой блокировкой,
	// которую берет сам fn. Либо фиксируются все записи fn, либо ни одна;
	// статус журнала отражает исход (completed / rolled_back).
	Run(ctx context.Context, fn func(tx pgx.Tx, journal *Journal) error) error
}

type TxStateManager struct {
	txManager repositories.TxManagerInterface
	txLogRepo repositories.TransactionLogRepositoryInterface
	logger    *zap.Logger
}

func NewTxStateManager(
	txManager repositories.TxManagerInterface,
	txLogRepo repositories.TransactionLogRepositoryInterface,
	logger *zap.Logger,
) TxStateManagerInterface {
	return &TxStateManager{
		txManager: txManager,
		txLogRepo: txLogRepo,
		logger:    logger,
	}
}

func (m *TxStateManager) Run(ctx context.Context, fn func(tx pgx.Tx, journal *Journal) error) error {
	journal := &Journal{
		TransactionID: uuid.NewString(),
		repo:          m.txLogRepo,
		logger:        m.logger,
	}

	err := m.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		return fn(tx, journal)
	})

	// Финальный статус пишется вне транзакции: даже при отмененном ctx
	// журнал должен быть закрыт, иначе recovery увидит вечный pending.
	finalCtx := context.WithoutCancel(ctx)
	if err != nil {
		if logErr := m.txLogRepo.SetStatusByTransaction(finalCtx, journal.TransactionID, constants.TxLogRolledBack); logErr != nil {
			m.logger.Error("Не удалось закрыть журнал транзакции после отката",
				zap.String("transaction_id", journal.TransactionID), zap.Error(logErr))
		}
		return err
	}

	if logErr := m.txLogRepo.SetStatusByTransaction(finalCtx, journal.TransactionID, constants.TxLogCompleted); logErr != nil {
		m.logger.Error("Не удалось закрыть журнал завершенной транзакции",
			zap.String("transaction_id", journal.TransactionID), zap.Error(logErr))
	}
	return nil
}
