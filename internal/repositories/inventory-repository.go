package repositories

import (
	"context"
	"fmt"

	"request-workflow/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type InventoryRepositoryInterface interface {
	CreateInTx(ctx context.Context, tx pgx.Tx, t *entities.InventoryTransaction) (int64, error)
	Create(ctx context.Context, t *entities.InventoryTransaction) (int64, error)
	// FindNegativeBalances - материалы, у которых суммарный остаток ушел в минус.
	FindNegativeBalances(ctx context.Context) ([]entities.InventoryDiscrepancy, error)
	// FindOrphaned - движения, ссылающиеся на несуществующую заявку.
	FindOrphaned(ctx context.Context) ([]entities.InventoryTransaction, error)
	CountDiscrepancies(ctx context.Context) (int, error)
}

type InventoryRepository struct {
	storage *pgxpool.Pool
}

func NewInventoryRepository(storage *pgxpool.Pool) InventoryRepositoryInterface {
	return &InventoryRepository{storage: storage}
}

const insertInventorySQL = `
	INSERT INTO inventory_transactions (request_id, material, quantity, performed_by, note)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id`

func (r *InventoryRepository) create(ctx context.Context, q querier, t *entities.InventoryTransaction) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, insertInventorySQL, t.RequestID, t.Material, t.Quantity, t.PerformedBy, t.Note).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ошибка вставки движения склада: %w", err)
	}
	return id, nil
}

func (r *InventoryRepository) CreateInTx(ctx context.Context, tx pgx.Tx, t *entities.InventoryTransaction) (int64, error) {
	return r.create(ctx, tx, t)
}

func (r *InventoryRepository) Create(ctx context.Context, t *entities.InventoryTransaction) (int64, error) {
	return r.create(ctx, r.storage, t)
}

func (r *InventoryRepository) FindNegativeBalances(ctx context.Context) ([]entities.InventoryDiscrepancy, error) {
	query := `
		SELECT material, SUM(quantity) AS balance
		FROM inventory_transactions
		GROUP BY material
		HAVING SUM(quantity) < 0`

	rows, err := r.storage.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска отрицательных остатков: %w", err)
	}
	defer rows.Close()

	discrepancies := make([]entities.InventoryDiscrepancy, 0)
	for rows.Next() {
		var d entities.InventoryDiscrepancy
		if err := rows.Scan(&d.Material, &d.Balance); err != nil {
			return nil, fmt.Errorf("ошибка сканирования остатка: %w", err)
		}
		discrepancies = append(discrepancies, d)
	}
	return discrepancies, rows.Err()
}

func (r *InventoryRepository) FindOrphaned(ctx context.Context) ([]entities.InventoryTransaction, error) {
	query := `
		SELECT it.id, it.request_id, it.material, it.quantity, it.performed_by, it.note, it.created_at
		FROM inventory_transactions it
		LEFT JOIN service_requests r ON r.id = it.request_id
		WHERE it.request_id IS NOT NULL AND r.id IS NULL`

	rows, err := r.storage.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска осиротевших движений склада: %w", err)
	}
	defer rows.Close()

	orphans := make([]entities.InventoryTransaction, 0)
	for rows.Next() {
		var t entities.InventoryTransaction
		if err := rows.Scan(&t.ID, &t.RequestID, &t.Material, &t.Quantity, &t.PerformedBy, &t.Note, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования движения склада: %w", err)
		}
		orphans = append(orphans, t)
	}
	return orphans, rows.Err()
}

func (r *InventoryRepository) CountDiscrepancies(ctx context.Context) (int, error) {
	negatives, err := r.FindNegativeBalances(ctx)
	if err != nil {
		return 0, err
	}
	orphans, err := r.FindOrphaned(ctx)
	if err != nil {
		return 0, err
	}
	return len(negatives) + len(orphans), nil
}
