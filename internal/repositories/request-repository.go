package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"request-workflow/internal/entities"
	apperrors "request-workflow/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RequestRepositoryInterface interface {
	CreateInTx(ctx context.Context, tx pgx.Tx, req *entities.ServiceRequest) error
	FindByID(ctx context.Context, id string) (*entities.ServiceRequest, error)
	// FindForUpdateInTx берет строковую блокировку SELECT ... FOR UPDATE:
	// два конкурентных перехода по одной заявке сериализуются на ней.
	FindForUpdateInTx(ctx context.Context, tx pgx.Tx, id string) (*entities.ServiceRequest, error)
	UpdateStateInTx(ctx context.Context, tx pgx.Tx, id string, roleCurrent *string, status string, stateData map[string]interface{}) error
	SetEquipmentInTx(ctx context.Context, tx pgx.Tx, id string, equipmentUsed map[string]interface{}) error
	SetCompletionFeedbackInTx(ctx context.Context, tx pgx.Tx, id string, rating int, feedback *string) error
	CountActive(ctx context.Context) (int, error)
	FindStuck(ctx context.Context, threshold time.Duration) ([]entities.ServiceRequest, error)
}

type RequestRepository struct {
	storage *pgxpool.Pool
}

func NewRequestRepository(storage *pgxpool.Pool) RequestRepositoryInterface {
	return &RequestRepository{storage: storage}
}

const requestColumns = `
	id, workflow_type, client_id, role_current, status, priority,
	description, location, contact_info, state_data,
	equipment_used, inventory_updated, completion_rating, feedback_comments,
	created_by_staff, staff_creator_id, staff_creator_role, creation_source,
	created_at, updated_at`

func scanRequest(row pgx.Row) (*entities.ServiceRequest, error) {
	var req entities.ServiceRequest
	err := row.Scan(
		&req.ID, &req.WorkflowType, &req.ClientID, &req.RoleCurrent, &req.Status, &req.Priority,
		&req.Description, &req.Location, &req.ContactInfo, &req.StateData,
		&req.EquipmentUsed, &req.InventoryUpdated, &req.CompletionRating, &req.FeedbackComments,
		&req.CreatedByStaff, &req.StaffCreatorID, &req.StaffCreatorRole, &req.CreationSource,
		&req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка сканирования заявки: %w", err)
	}
	return &req, nil
}

func (r *RequestRepository) CreateInTx(ctx context.Context, tx pgx.Tx, req *entities.ServiceRequest) error {
	query := `
		INSERT INTO service_requests (
			id, workflow_type, client_id, role_current, status, priority,
			description, location, contact_info, state_data,
			created_by_staff, staff_creator_id, staff_creator_role, creation_source
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

	_, err := tx.Exec(ctx, query,
		req.ID, req.WorkflowType, req.ClientID, req.RoleCurrent, req.Status, req.Priority,
		req.Description, req.Location, req.ContactInfo, req.StateData,
		req.CreatedByStaff, req.StaffCreatorID, req.StaffCreatorRole, req.CreationSource,
	)
	if err != nil {
		return fmt.Errorf("ошибка вставки заявки: %w", err)
	}
	return nil
}

func (r *RequestRepository) findOne(ctx context.Context, q querier, suffix, id string) (*entities.ServiceRequest, error) {
	query := `SELECT` + requestColumns + ` FROM service_requests WHERE id = $1` + suffix
	return scanRequest(q.QueryRow(ctx, query, id))
}

func (r *RequestRepository) FindByID(ctx context.Context, id string) (*entities.ServiceRequest, error) {
	return r.findOne(ctx, r.storage, "", id)
}

func (r *RequestRepository) FindForUpdateInTx(ctx context.Context, tx pgx.Tx, id string) (*entities.ServiceRequest, error) {
	return r.findOne(ctx, tx, " FOR UPDATE", id)
}

func (r *RequestRepository) UpdateStateInTx(ctx context.Context, tx pgx.Tx, id string, roleCurrent *string, status string, stateData map[string]interface{}) error {
	query := `
		UPDATE service_requests
		SET role_current = $2, status = $3, state_data = $4, updated_at = now()
		WHERE id = $1`

	tag, err := tx.Exec(ctx, query, id, roleCurrent, status, stateData)
	if err != nil {
		return fmt.Errorf("ошибка обновления состояния заявки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *RequestRepository) SetEquipmentInTx(ctx context.Context, tx pgx.Tx, id string, equipmentUsed map[string]interface{}) error {
	query := `
		UPDATE service_requests
		SET equipment_used = $2, inventory_updated = TRUE, updated_at = now()
		WHERE id = $1`

	if _, err := tx.Exec(ctx, query, id, equipmentUsed); err != nil {
		return fmt.Errorf("ошибка записи использованного оборудования: %w", err)
	}
	return nil
}

// SetCompletionFeedbackInTx ставит оценку однократно: повторная попытка
// не затирает уже выставленную.
func (r *RequestRepository) SetCompletionFeedbackInTx(ctx context.Context, tx pgx.Tx, id string, rating int, feedback *string) error {
	query := `
		UPDATE service_requests
		SET completion_rating = $2, feedback_comments = $3, updated_at = now()
		WHERE id = $1 AND completion_rating IS NULL`

	tag, err := tx.Exec(ctx, query, id, rating, feedback)
	if err != nil {
		return fmt.Errorf("ошибка записи оценки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewValidationError("rating", "оценка по заявке %s уже выставлена", id)
	}
	return nil
}

func (r *RequestRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.storage.QueryRow(ctx,
		`SELECT COUNT(*) FROM service_requests WHERE status NOT IN ('completed', 'cancelled')`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчета активных заявок: %w", err)
	}
	return count, nil
}

func (r *RequestRepository) FindStuck(ctx context.Context, threshold time.Duration) ([]entities.ServiceRequest, error) {
	query := `SELECT` + requestColumns + `
		FROM service_requests
		WHERE status NOT IN ('completed', 'cancelled')
		  AND updated_at < now() - ($1 * interval '1 second')
		ORDER BY updated_at ASC`

	rows, err := r.storage.Query(ctx, query, int64(threshold.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска зависших заявок: %w", err)
	}
	defer rows.Close()

	requests := make([]entities.ServiceRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}
