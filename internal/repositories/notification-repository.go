package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"request-workflow/internal/dto"
	"request-workflow/internal/entities"
	apperrors "request-workflow/pkg/errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NotificationRepositoryInterface interface {
	CreateInTx(ctx context.Context, tx pgx.Tx, n *entities.PendingNotification) (int64, error)
	FindByID(ctx context.Context, id int64) (*entities.PendingNotification, error)
	// MarkHandled идемпотентен: повторный вызов по уже обработанному
	// уведомлению ничего не меняет и не возвращает ошибку.
	MarkHandled(ctx context.Context, id int64, userID uint64) (bool, error)
	MarkHandledBySystem(ctx context.Context, id int64) error
	Inbox(ctx context.Context, role string, filter dto.InboxFilterDTO, limit, offset uint64) ([]dto.InboxItemDTO, error)
	CountInbox(ctx context.Context, role string, filter dto.InboxFilterDTO) (uint64, error)
	CountPending(ctx context.Context) (int, error)

	UpsertRetry(ctx context.Context, notificationID int64, lastError string, nextRetryAt time.Time) error
	DueRetries(ctx context.Context, now time.Time, limit int) ([]entities.NotificationRetry, error)
	RescheduleRetry(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time, lastError string) error
	FinishRetry(ctx context.Context, id int64, status string) error
}

type NotificationRepository struct {
	storage *pgxpool.Pool
}

func NewNotificationRepository(storage *pgxpool.Pool) NotificationRepositoryInterface {
	return &NotificationRepository{storage: storage}
}

func (r *NotificationRepository) CreateInTx(ctx context.Context, tx pgx.Tx, n *entities.PendingNotification) (int64, error) {
	query := `
		INSERT INTO pending_notifications (recipient_role, recipient_user_id, request_id, workflow_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	var id int64
	err := tx.QueryRow(ctx, query, n.RecipientRole, n.RecipientUserID, n.RequestID, n.WorkflowType).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ошибка вставки уведомления: %w", err)
	}
	return id, nil
}

func (r *NotificationRepository) FindByID(ctx context.Context, id int64) (*entities.PendingNotification, error) {
	query := `
		SELECT id, recipient_role, recipient_user_id, request_id, workflow_type,
		       is_handled, handled_at, created_at
		FROM pending_notifications
		WHERE id = $1`

	var n entities.PendingNotification
	err := r.storage.QueryRow(ctx, query, id).Scan(
		&n.ID, &n.RecipientRole, &n.RecipientUserID, &n.RequestID, &n.WorkflowType,
		&n.IsHandled, &n.HandledAt, &n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска уведомления: %w", err)
	}
	return &n, nil
}

func (r *NotificationRepository) MarkHandled(ctx context.Context, id int64, userID uint64) (bool, error) {
	// handled_at не меняется при повторном вызове: условие is_handled = FALSE.
	query := `
		UPDATE pending_notifications
		SET is_handled = TRUE, handled_at = now(), recipient_user_id = COALESCE(recipient_user_id, $2)
		WHERE id = $1 AND is_handled = FALSE`

	tag, err := r.storage.Exec(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("ошибка отметки уведомления: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Либо уведомление уже обработано (no-op), либо его нет вовсе.
	if _, err := r.FindByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *NotificationRepository) MarkHandledBySystem(ctx context.Context, id int64) error {
	query := `
		UPDATE pending_notifications
		SET is_handled = TRUE, handled_at = now()
		WHERE id = $1 AND is_handled = FALSE`

	if _, err := r.storage.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("ошибка системной отметки уведомления: %w", err)
	}
	return nil
}

// inboxQuery собирает общий фильтр входящих для выборки и подсчета.
func inboxQuery(role string, filter dto.InboxFilterDTO) sq.SelectBuilder {
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	base := psql.Select().
		From("pending_notifications n").
		Join("service_requests r ON r.id = n.request_id").
		Where(sq.Eq{"n.recipient_role": role})

	if filter.WorkflowType.Valid {
		base = base.Where(sq.Eq{"n.workflow_type": filter.WorkflowType.String})
	}
	if filter.Priority.Valid {
		base = base.Where(sq.Eq{"r.priority": filter.Priority.String})
	}
	if filter.Unread.Valid {
		base = base.Where(sq.Eq{"n.is_handled": !filter.Unread.Bool})
	}
	return base
}

func (r *NotificationRepository) Inbox(ctx context.Context, role string, filter dto.InboxFilterDTO, limit, offset uint64) ([]dto.InboxItemDTO, error) {
	listSQL, listArgs, err := inboxQuery(role, filter).
		Columns("n.id", "n.request_id", "n.workflow_type", "r.priority", "r.status",
			"r.description", "n.is_handled", "n.handled_at", "n.created_at").
		OrderBy("n.created_at DESC").
		Limit(limit).
		Offset(offset).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки запроса входящих: %w", err)
	}

	rows, err := r.storage.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения входящих: %w", err)
	}
	defer rows.Close()

	items := make([]dto.InboxItemDTO, 0)
	for rows.Next() {
		var item dto.InboxItemDTO
		var handledAt *time.Time
		var createdAt time.Time
		if err := rows.Scan(
			&item.NotificationID, &item.RequestID, &item.WorkflowType, &item.Priority,
			&item.Status, &item.Description, &item.IsHandled, &handledAt, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования входящих: %w", err)
		}
		if handledAt != nil {
			s := handledAt.Format(time.RFC3339)
			item.HandledAt = &s
		}
		item.CreatedAt = createdAt.Format(time.RFC3339)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *NotificationRepository) CountInbox(ctx context.Context, role string, filter dto.InboxFilterDTO) (uint64, error) {
	countSQL, countArgs, err := inboxQuery(role, filter).Columns("COUNT(*)").ToSql()
	if err != nil {
		return 0, fmt.Errorf("ошибка сборки запроса подсчета входящих: %w", err)
	}

	var total uint64
	if err := r.storage.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return 0, fmt.Errorf("ошибка подсчета входящих: %w", err)
	}
	return total, nil
}

func (r *NotificationRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	err := r.storage.QueryRow(ctx,
		`SELECT COUNT(*) FROM pending_notifications WHERE is_handled = FALSE`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчета необработанных уведомлений: %w", err)
	}
	return count, nil
}

// UpsertRetry ставит уведомление в очередь повторов. Уже завершенная запись
// (completed/failed) при новом сбое возвращается в очередь с нулевым счетчиком.
func (r *NotificationRepository) UpsertRetry(ctx context.Context, notificationID int64, lastError string, nextRetryAt time.Time) error {
	query := `
		INSERT INTO notification_retries (notification_id, retry_count, next_retry_at, last_error, status)
		VALUES ($1, 0, $2, $3, 'pending')
		ON CONFLICT (notification_id) DO UPDATE
		SET status = 'pending', retry_count = 0, next_retry_at = EXCLUDED.next_retry_at,
		    last_error = EXCLUDED.last_error, updated_at = now()`

	if _, err := r.storage.Exec(ctx, query, notificationID, nextRetryAt, lastError); err != nil {
		return fmt.Errorf("ошибка постановки уведомления в очередь повторов: %w", err)
	}
	return nil
}

func (r *NotificationRepository) DueRetries(ctx context.Context, now time.Time, limit int) ([]entities.NotificationRetry, error) {
	query := `
		SELECT id, notification_id, retry_count, next_retry_at, last_error, status, updated_at
		FROM notification_retries
		WHERE status = 'pending' AND next_retry_at <= $1
		ORDER BY next_retry_at ASC
		LIMIT $2`

	rows, err := r.storage.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки повторов к отправке: %w", err)
	}
	defer rows.Close()

	retries := make([]entities.NotificationRetry, 0)
	for rows.Next() {
		var nr entities.NotificationRetry
		if err := rows.Scan(&nr.ID, &nr.NotificationID, &nr.RetryCount, &nr.NextRetryAt,
			&nr.LastError, &nr.Status, &nr.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования повтора: %w", err)
		}
		retries = append(retries, nr)
	}
	return retries, rows.Err()
}

func (r *NotificationRepository) RescheduleRetry(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time, lastError string) error {
	query := `
		UPDATE notification_retries
		SET retry_count = $2, next_retry_at = $3, last_error = $4, updated_at = now()
		WHERE id = $1`

	if _, err := r.storage.Exec(ctx, query, id, retryCount, nextRetryAt, lastError); err != nil {
		return fmt.Errorf("ошибка переноса повтора: %w", err)
	}
	return nil
}

func (r *NotificationRepository) FinishRetry(ctx context.Context, id int64, status string) error {
	query := `
		UPDATE notification_retries
		SET status = $2, updated_at = now()
		WHERE id = $1`

	if _, err := r.storage.Exec(ctx, query, id, status); err != nil {
		return fmt.Errorf("ошибка завершения повтора: %w", err)
	}
	return nil
}
