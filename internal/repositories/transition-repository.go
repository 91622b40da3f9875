package repositories

import (
	"context"
	"errors"
	"fmt"

	"request-workflow/internal/entities"
	apperrors "request-workflow/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TransitionRepositoryInterface interface {
	CreateInTx(ctx context.Context, tx pgx.Tx, t *entities.StateTransition) (int64, error)
	ListByRequest(ctx context.Context, requestID string) ([]entities.StateTransition, error)
	FindLastByRequest(ctx context.Context, requestID string) (*entities.StateTransition, error)
}

// TransitionRepository пишет в append-only таблицу state_transitions.
// UPDATE и DELETE по ней не существуют намеренно.
type TransitionRepository struct {
	storage *pgxpool.Pool
}

func NewTransitionRepository(storage *pgxpool.Pool) TransitionRepositoryInterface {
	return &TransitionRepository{storage: storage}
}

func (r *TransitionRepository) CreateInTx(ctx context.Context, tx pgx.Tx, t *entities.StateTransition) (int64, error) {
	query := `
		INSERT INTO state_transitions (
			request_id, from_role, to_role, action, actor_id,
			transition_data, comment_key, comment_params
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id`

	var id int64
	err := tx.QueryRow(ctx, query,
		t.RequestID, t.FromRole, t.ToRole, t.Action, t.ActorID,
		t.TransitionData, t.CommentKey, t.CommentParams,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ошибка вставки перехода: %w", err)
	}
	return id, nil
}

func (r *TransitionRepository) ListByRequest(ctx context.Context, requestID string) ([]entities.StateTransition, error) {
	query := `
		SELECT id, request_id, from_role, to_role, action, actor_id,
		       transition_data, comment_key, comment_params, created_at
		FROM state_transitions
		WHERE request_id = $1
		ORDER BY id ASC`

	rows, err := r.storage.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории переходов: %w", err)
	}
	defer rows.Close()

	transitions := make([]entities.StateTransition, 0)
	for rows.Next() {
		var t entities.StateTransition
		if err := rows.Scan(
			&t.ID, &t.RequestID, &t.FromRole, &t.ToRole, &t.Action, &t.ActorID,
			&t.TransitionData, &t.CommentKey, &t.CommentParams, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования перехода: %w", err)
		}
		transitions = append(transitions, t)
	}
	return transitions, rows.Err()
}

func (r *TransitionRepository) FindLastByRequest(ctx context.Context, requestID string) (*entities.StateTransition, error) {
	query := `
		SELECT id, request_id, from_role, to_role, action, actor_id,
		       transition_data, comment_key, comment_params, created_at
		FROM state_transitions
		WHERE request_id = $1
		ORDER BY id DESC
		LIMIT 1`

	var t entities.StateTransition
	err := r.storage.QueryRow(ctx, query, requestID).Scan(
		&t.ID, &t.RequestID, &t.FromRole, &t.ToRole, &t.Action, &t.ActorID,
		&t.TransitionData, &t.CommentKey, &t.CommentParams, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска последнего перехода: %w", err)
	}
	return &t, nil
}
