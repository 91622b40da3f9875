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

type UserRepositoryInterface interface {
	FindByID(ctx context.Context, id uint64) (*entities.User, error)
	FindByRole(ctx context.Context, role string) ([]entities.User, error)
}

// UserRepository читает внешнюю таблицу users: здесь только поиск актора
// и получателей уведомлений, управление пользователями живет в другом сервисе.
type UserRepository struct {
	storage *pgxpool.Pool
}

func NewUserRepository(storage *pgxpool.Pool) UserRepositoryInterface {
	return &UserRepository{storage: storage}
}

func (r *UserRepository) FindByID(ctx context.Context, id uint64) (*entities.User, error) {
	query := `SELECT id, fio, role, telegram_chat_id, locale, email FROM users WHERE id = $1`

	var u entities.User
	err := r.storage.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Fio, &u.Role, &u.TelegramChatID, &u.Locale, &u.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска пользователя: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) FindByRole(ctx context.Context, role string) ([]entities.User, error) {
	query := `SELECT id, fio, role, telegram_chat_id, locale, email FROM users WHERE role = $1`

	rows, err := r.storage.Query(ctx, query, role)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска пользователей роли %s: %w", role, err)
	}
	defer rows.Close()

	users := make([]entities.User, 0)
	for rows.Next() {
		var u entities.User
		if err := rows.Scan(&u.ID, &u.Fio, &u.Role, &u.TelegramChatID, &u.Locale, &u.Email); err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
