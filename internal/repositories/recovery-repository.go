package repositories

import (
	"context"
	"fmt"

	"request-workflow/internal/entities"

	"github.com/jackc/pgx/v5/pgxpool"
)

type RecoveryRepositoryInterface interface {
	CreateRecoveryLog(ctx context.Context, rec *entities.WorkflowRecoveryLog) error
	SaveHealthSnapshot(ctx context.Context, snap *entities.SystemHealthSnapshot) error
}

type RecoveryRepository struct {
	storage *pgxpool.Pool
}

func NewRecoveryRepository(storage *pgxpool.Pool) RecoveryRepositoryInterface {
	return &RecoveryRepository{storage: storage}
}

func (r *RecoveryRepository) CreateRecoveryLog(ctx context.Context, rec *entities.WorkflowRecoveryLog) error {
	query := `
		INSERT INTO workflow_recovery_log (request_id, action, state_before, state_after, success, performed_by)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.storage.Exec(ctx, query,
		rec.RequestID, rec.Action, rec.StateBefore, rec.StateAfter, rec.Success, rec.PerformedBy)
	if err != nil {
		return fmt.Errorf("ошибка записи журнала восстановления: %w", err)
	}
	return nil
}

func (r *RecoveryRepository) SaveHealthSnapshot(ctx context.Context, snap *entities.SystemHealthSnapshot) error {
	query := `
		INSERT INTO system_health_snapshots (
			active_requests, pending_notifications, errors_24h,
			inventory_discrepancies, stuck_workflows, system_status
		) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.storage.Exec(ctx, query,
		snap.ActiveRequests, snap.PendingNotifications, snap.Errors24h,
		snap.InventoryDiscrepancies, snap.StuckWorkflows, snap.SystemStatus)
	if err != nil {
		return fmt.Errorf("ошибка записи снимка состояния системы: %w", err)
	}
	return nil
}
