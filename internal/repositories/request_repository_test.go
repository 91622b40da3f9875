package repositories

import (
	"context"
	"os"
	"testing"
	"time"

	"request-workflow/internal/entities"
	"request-workflow/pkg/constants"
	apperrors "request-workflow/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Интеграционные тесты репозиториев работают с настоящей БД.
// Запуск: TEST_DATABASE_URL=postgres://... go test ./internal/repositories/
// Схема применяется заранее через goose (каталог migrations/).
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL не задан, интеграционные тесты пропущены")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func seedRequest(t *testing.T, pool *pgxpool.Pool, repo RequestRepositoryInterface) *entities.ServiceRequest {
	t.Helper()
	role := constants.RoleController
	req := &entities.ServiceRequest{
		ID:           uuid.NewString(),
		WorkflowType: "technical_service",
		ClientID:     10,
		RoleCurrent:  &role,
		Status:       constants.StatusCreated,
		Priority:     constants.PriorityMedium,
		Description:  "интеграционный тест",
		StateData:    map[string]interface{}{"seed": true},
	}

	tx, err := pool.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, repo.CreateInTx(context.Background(), tx, req))
	require.NoError(t, tx.Commit(context.Background()))
	return req
}

func TestRequestRepositoryCreateAndFind(t *testing.T) {
	pool := testPool(t)
	repo := NewRequestRepository(pool)
	req := seedRequest(t, pool, repo)

	found, err := repo.FindByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, found.ID)
	assert.Equal(t, "technical_service", found.WorkflowType)
	assert.Equal(t, constants.RoleController, found.CurrentRole())
	assert.Equal(t, true, found.StateData["seed"])
}

func TestRequestRepositoryFindMissing(t *testing.T) {
	pool := testPool(t)
	repo := NewRequestRepository(pool)

	_, err := repo.FindByID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRequestRepositoryUpdateState(t *testing.T) {
	pool := testPool(t)
	repo := NewRequestRepository(pool)
	req := seedRequest(t, pool, repo)

	role := constants.RoleTechnician
	tx, err := pool.Begin(context.Background())
	require.NoError(t, err)
	err = repo.UpdateStateInTx(context.Background(), tx, req.ID, &role, constants.StatusInProgress,
		map[string]interface{}{"seed": true, "technician_id": 33})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(context.Background()))

	found, err := repo.FindByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.RoleTechnician, found.CurrentRole())
	assert.Equal(t, constants.StatusInProgress, found.Status)
}

func TestRequestRepositoryFindForUpdateLocksRow(t *testing.T) {
	pool := testPool(t)
	repo := NewRequestRepository(pool)
	req := seedRequest(t, pool, repo)

	tx1, err := pool.Begin(context.Background())
	require.NoError(t, err)
	defer tx1.Rollback(context.Background())

	_, err = repo.FindForUpdateInTx(context.Background(), tx1, req.ID)
	require.NoError(t, err)

	// Вторая транзакция не может взять блокировку, пока держит первая.
	tx2, err := pool.Begin(context.Background())
	require.NoError(t, err)
	defer tx2.Rollback(context.Background())

	lockCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = tx2.Exec(lockCtx, `SELECT id FROM service_requests WHERE id = $1 FOR UPDATE NOWAIT`, req.ID)
	assert.Error(t, err)
}

func TestRequestRepositoryCompletionFeedbackOneShot(t *testing.T) {
	pool := testPool(t)
	repo := NewRequestRepository(pool)
	req := seedRequest(t, pool, repo)

	apply := func(rating int) error {
		tx, err := pool.Begin(context.Background())
		require.NoError(t, err)
		err = repo.SetCompletionFeedbackInTx(context.Background(), tx, req.ID, rating, nil)
		if err != nil {
			_ = tx.Rollback(context.Background())
			return err
		}
		return tx.Commit(context.Background())
	}

	require.NoError(t, apply(5))

	err := apply(1)
	var validationErr *apperrors.ValidationError
	require.ErrorAs(t, err, &validationErr)

	found, err := repo.FindByID(context.Background(), req.ID)
	require.NoError(t, err)
	require.NotNil(t, found.CompletionRating)
	assert.Equal(t, 5, *found.CompletionRating)
}

func TestTransitionRepositoryAppendAndList(t *testing.T) {
	pool := testPool(t)
	requestRepo := NewRequestRepository(pool)
	transitionRepo := NewTransitionRepository(pool)
	req := seedRequest(t, pool, requestRepo)

	from := constants.RoleController
	to := constants.RoleTechnician
	tx, err := pool.Begin(context.Background())
	require.NoError(t, err)
	id, err := transitionRepo.CreateInTx(context.Background(), tx, &entities.StateTransition{
		RequestID:      req.ID,
		FromRole:       &from,
		ToRole:         &to,
		Action:         constants.ActionAssignToTechnician,
		ActorID:        20,
		TransitionData: map[string]interface{}{"technician_id": 33},
		CommentKey:     "transition.assign_to_technician",
	})
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))
	require.NoError(t, tx.Commit(context.Background()))

	list, err := transitionRepo.ListByRequest(context.Background(), req.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, constants.ActionAssignToTechnician, list[0].Action)

	last, err := transitionRepo.FindLastByRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, id, last.ID)
}
