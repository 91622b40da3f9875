package services

import (
	"context"
	"fmt"
	"testing"

	"request-workflow/internal/dto"
	"request-workflow/internal/entities"
	"request-workflow/internal/workflow"
	"request-workflow/pkg/constants"
	apperrors "request-workflow/pkg/errors"
	"request-workflow/pkg/eventbus"

	"github.com/aarondl/null/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type engineFixture struct {
	engine        WorkflowEngineServiceInterface
	requests      *fakeRequestRepo
	transitions   *fakeTransitionRepo
	notifications *fakeNotificationRepo
	inventory     *fakeInventoryRepo
	accessLogs    *fakeAccessLogRepo
	txLogs        *fakeTxLogRepo
	cache         *fakeCache
}

func newEngineFixture(t *testing.T, users ...*entities.User) *engineFixture {
	t.Helper()

	registry, err := workflow.NewRegistry()
	require.NoError(t, err)

	logger := zap.NewNop()
	f := &engineFixture{
		requests:      newFakeRequestRepo(),
		transitions:   &fakeTransitionRepo{},
		notifications: newFakeNotificationRepo(),
		inventory:     &fakeInventoryRepo{},
		accessLogs:    &fakeAccessLogRepo{},
		txLogs:        &fakeTxLogRepo{},
		cache:         newFakeCache(),
	}

	access := NewAccessControlService(newFakeUserRepo(users...), f.accessLogs, &fakeErrorRepo{}, registry, logger)
	f.engine = NewWorkflowEngineService(
		&fakeTxState{txLogRepo: f.txLogs},
		f.requests, f.transitions, f.notifications, f.inventory,
		access, registry, f.cache, eventbus.New(logger), logger)
	return f
}

func staffUser(id uint64, role string) *entities.User {
	return &entities.User{ID: id, Fio: "Сотрудник", Role: role}
}

func clientUser(id uint64) *entities.User {
	return &entities.User{ID: id, Fio: "Клиент", Role: constants.RoleClient}
}

func TestCreateRequestByClient(t *testing.T) {
	f := newEngineFixture(t, clientUser(10))

	res, err := f.engine.CreateRequest(context.Background(), 10, constants.RoleClient, dto.CreateRequestDTO{
		WorkflowType: "technical_service",
		Description:  "Не работает интернет",
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(10), res.ClientID)
	assert.Equal(t, constants.StatusCreated, res.Status)
	require.NotNil(t, res.RoleCurrent)
	assert.Equal(t, constants.RoleController, *res.RoleCurrent)
	assert.False(t, res.CreatedByStaff)
	assert.Equal(t, constants.PriorityMedium, res.Priority)

	// Запись о создании в истории и уведомление начальной роли.
	history, err := f.engine.GetRequestHistory(context.Background(), res.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, constants.ActionCreateRequest, history[0].Action)

	require.Len(t, f.notifications.notifications, 1)
	for _, n := range f.notifications.notifications {
		assert.Equal(t, constants.RoleController, n.RecipientRole)
	}
}

func TestCreateRequestByStaffRequiresClientID(t *testing.T) {
	f := newEngineFixture(t, staffUser(5, constants.RoleCallCenter))

	_, err := f.engine.CreateRequest(context.Background(), 5, constants.RoleCallCenter, dto.CreateRequestDTO{
		WorkflowType: "call_center_direct",
		Description:  "Звонок клиента",
	})

	var validationErr *apperrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "client_id", validationErr.Field)
}

func TestCreateRequestByStaffStampsCreatorContext(t *testing.T) {
	f := newEngineFixture(t, staffUser(5, constants.RoleCallCenter))

	res, err := f.engine.CreateRequest(context.Background(), 5, constants.RoleCallCenter, dto.CreateRequestDTO{
		WorkflowType: "connection_request",
		ClientID:     null.Uint64From(77),
		Description:  "Подключение по звонку",
	})
	require.NoError(t, err)

	assert.True(t, res.CreatedByStaff)
	assert.Equal(t, uint64(77), res.ClientID)
	assert.Equal(t, constants.RoleCallCenter, res.CreationSource)

	info, ok := res.StateData[constants.StateKeyStaffCreatorInfo].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, uint64(5), info["staff_id"])
	assert.Equal(t, constants.RoleCallCenter, info["staff_role"])
}

func TestTransitionMovesRequestAndNotifies(t *testing.T) {
	f := newEngineFixture(t, clientUser(10), staffUser(20, constants.RoleController))

	res, err := f.engine.CreateRequest(context.Background(), 10, constants.RoleClient, dto.CreateRequestDTO{
		WorkflowType: "technical_service",
		Description:  "Сервис",
	})
	require.NoError(t, err)

	moved, err := f.engine.Transition(context.Background(), 20, res.ID, dto.TransitionDTO{
		Action: constants.ActionAssignToTechnician,
		Data:   map[string]interface{}{"technician_id": float64(33)},
	})
	require.NoError(t, err)

	require.NotNil(t, moved.RoleCurrent)
	assert.Equal(t, constants.RoleTechnician, *moved.RoleCurrent)
	assert.Equal(t, constants.StatusInProgress, moved.Status)
	// Данные перехода слились в state_data.
	assert.Equal(t, float64(33), moved.StateData["technician_id"])

	// Уведомление создано для новой роли.
	found := false
	for _, n := range f.notifications.notifications {
		if n.RecipientRole == constants.RoleTechnician {
			found = true
		}
	}
	assert.True(t, found)

	// Журнал транзакций закрыт как completed.
	for _, entry := range f.txLogs.entries {
		assert.Equal(t, "completed", entry.Status)
	}
}

func TestTransitionPreservesStaffCreatorContext(t *testing.T) {
	f := newEngineFixture(t,
		staffUser(5, constants.RoleCallCenter),
		staffUser(20, constants.RoleManager))

	res, err := f.engine.CreateRequest(context.Background(), 5, constants.RoleCallCenter, dto.CreateRequestDTO{
		WorkflowType: "connection_request",
		ClientID:     null.Uint64From(77),
		Description:  "Подключение",
	})
	require.NoError(t, err)

	_, err = f.engine.Transition(context.Background(), 20, res.ID, dto.TransitionDTO{
		Action: constants.ActionAssignToJuniorManager,
	})
	require.NoError(t, err)

	history, err := f.engine.GetRequestHistory(context.Background(), res.ID)
	require.NoError(t, err)
	last := f.transitions.transitions[len(f.transitions.transitions)-1]
	require.Len(t, history, 2)

	// Каждый переход несет контекст создателя и признак чужого актора.
	assert.NotNil(t, last.TransitionData[constants.TransitionKeyOriginalCreator])
	assert.Equal(t, true, last.TransitionData[constants.TransitionKeyActorDiffers])
	assert.NotEmpty(t, last.TransitionData[constants.TransitionKeyTimestamp])
}

func TestTransitionIllegalAction(t *testing.T) {
	f := newEngineFixture(t, clientUser(10), staffUser(20, constants.RoleController))

	res, err := f.engine.CreateRequest(context.Background(), 10, constants.RoleClient, dto.CreateRequestDTO{
		WorkflowType: "technical_service",
		Description:  "Сервис",
	})
	require.NoError(t, err)

	// issue_equipment - действие склада, а не контроллера.
	_, err = f.engine.Transition(context.Background(), 20, res.ID, dto.TransitionDTO{
		Action: constants.ActionIssueEquipment,
		Data:   map[string]interface{}{"materials": map[string]interface{}{"кабель": float64(1)}},
	})

	var illegalErr *apperrors.IllegalTransitionError
	require.ErrorAs(t, err, &illegalErr)
	assert.Equal(t, constants.RoleController, illegalErr.Role)
}

func TestTransitionMissingRequiredField(t *testing.T) {
	f := newEngineFixture(t, clientUser(10), staffUser(20, constants.RoleController))

	res, err := f.engine.CreateRequest(context.Background(), 10, constants.RoleClient, dto.CreateRequestDTO{
		WorkflowType: "technical_service",
		Description:  "Сервис",
	})
	require.NoError(t, err)

	_, err = f.engine.Transition(context.Background(), 20, res.ID, dto.TransitionDTO{
		Action: constants.ActionAssignToTechnician,
	})

	var validationErr *apperrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "technician_id", validationErr.Field)
}

func TestTransitionDeniedForWrongRole(t *testing.T) {
	f := newEngineFixture(t, clientUser(10), staffUser(40, constants.RoleWarehouse))

	res, err := f.engine.CreateRequest(context.Background(), 10, constants.RoleClient, dto.CreateRequestDTO{
		WorkflowType: "technical_service",
		Description:  "Сервис",
	})
	require.NoError(t, err)

	_, err = f.engine.Transition(context.Background(), 40, res.ID, dto.TransitionDTO{
		Action: constants.ActionAssignToTechnician,
		Data:   map[string]interface{}{"technician_id": float64(33)},
	})

	var permErr *apperrors.PermissionDeniedError
	require.ErrorAs(t, err, &permErr)

	// Отказ тоже попал в журнал доступа.
	denied := false
	for _, rec := range f.accessLogs.records {
		if !rec.Granted {
			denied = true
		}
	}
	assert.True(t, denied)
}

func TestTransitionOnTerminalRequest(t *testing.T) {
	f := newEngineFixture(t, staffUser(30, constants.RoleCallCenter))

	res, err := f.engine.CreateRequest(context.Background(), 30, constants.RoleCallCenter, dto.CreateRequestDTO{
		WorkflowType: "call_center_direct",
		ClientID:     null.Uint64From(10),
		Description:  "Вопрос по тарифу",
	})
	require.NoError(t, err)

	closed, err := f.engine.Transition(context.Background(), 30, res.ID, dto.TransitionDTO{
		Action: constants.ActionResolveDirectly,
	})
	require.NoError(t, err)
	assert.Equal(t, constants.StatusCompleted, closed.Status)
	assert.Nil(t, closed.RoleCurrent)

	_, err = f.engine.Transition(context.Background(), 30, res.ID, dto.TransitionDTO{
		Action: constants.ActionResolveDirectly,
	})
	var stateErr *apperrors.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, constants.StatusCompleted, stateErr.Status)
}

func TestRateServiceAfterCompletion(t *testing.T) {
	f := newEngineFixture(t, clientUser(10), staffUser(30, constants.RoleCallCenter))

	res, err := f.engine.CreateRequest(context.Background(), 30, constants.RoleCallCenter, dto.CreateRequestDTO{
		WorkflowType: "call_center_direct",
		ClientID:     null.Uint64From(10),
		Description:  "Вопрос",
	})
	require.NoError(t, err)

	// До закрытия заявки оценка отклоняется контролем доступа.
	_, err = f.engine.Transition(context.Background(), 10, res.ID, dto.TransitionDTO{
		Action: constants.ActionRateService,
		Data:   map[string]interface{}{"rating": float64(5)},
	})
	var permErr *apperrors.PermissionDeniedError
	require.ErrorAs(t, err, &permErr)
	assert.Contains(t, permErr.Reason, "до закрытия")

	_, err = f.engine.Transition(context.Background(), 30, res.ID, dto.TransitionDTO{
		Action: constants.ActionResolveDirectly,
	})
	require.NoError(t, err)

	rated, err := f.engine.Transition(context.Background(), 10, res.ID, dto.TransitionDTO{
		Action: constants.ActionRateService,
		Data:   map[string]interface{}{"rating": float64(4), "feedback": "спасибо"},
	})
	require.NoError(t, err)
	require.NotNil(t, rated.CompletionRating)
	assert.Equal(t, 4, *rated.CompletionRating)

	// Повторная оценка не затирает первую.
	_, err = f.engine.Transition(context.Background(), 10, res.ID, dto.TransitionDTO{
		Action: constants.ActionRateService,
		Data:   map[string]interface{}{"rating": float64(1)},
	})
	var validationErr *apperrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestIssueEquipmentWritesInventory(t *testing.T) {
	f := newEngineFixture(t,
		clientUser(10),
		staffUser(20, constants.RoleController),
		staffUser(33, constants.RoleTechnician),
		staffUser(40, constants.RoleWarehouse))

	res, err := f.engine.CreateRequest(context.Background(), 10, constants.RoleClient, dto.CreateRequestDTO{
		WorkflowType: "technical_service",
		Description:  "Ремонт",
	})
	require.NoError(t, err)

	_, err = f.engine.Transition(context.Background(), 20, res.ID, dto.TransitionDTO{
		Action: constants.ActionAssignToTechnician,
		Data:   map[string]interface{}{"technician_id": float64(33)},
	})
	require.NoError(t, err)

	_, err = f.engine.Transition(context.Background(), 33, res.ID, dto.TransitionDTO{
		Action: constants.ActionRequestEquipment,
		Data:   map[string]interface{}{"materials": map[string]interface{}{"кабель": float64(2)}},
	})
	require.NoError(t, err)

	issued, err := f.engine.Transition(context.Background(), 40, res.ID, dto.TransitionDTO{
		Action: constants.ActionIssueEquipment,
		Data:   map[string]interface{}{"materials": map[string]interface{}{"кабель": float64(2)}},
	})
	require.NoError(t, err)
	assert.True(t, issued.InventoryUpdated)

	require.Len(t, f.inventory.transactions, 1)
	assert.Equal(t, int64(-2), f.inventory.transactions[0].Quantity)
	assert.Equal(t, "кабель", f.inventory.transactions[0].Material)
}

func TestMarkNotificationHandledIdempotent(t *testing.T) {
	f := newEngineFixture(t, clientUser(10), staffUser(20, constants.RoleController))

	res, err := f.engine.CreateRequest(context.Background(), 10, constants.RoleClient, dto.CreateRequestDTO{
		WorkflowType: "technical_service",
		Description:  "Сервис",
	})
	require.NoError(t, err)
	_ = res

	var notificationID int64
	for id := range f.notifications.notifications {
		notificationID = id
	}

	changed, err := f.engine.MarkNotificationHandled(context.Background(), notificationID, 20)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = f.engine.MarkNotificationHandled(context.Background(), notificationID, 20)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRateServiceBeforeCompletionDeniedForAdmin(t *testing.T) {
	f := newEngineFixture(t,
		staffUser(1, constants.RoleAdmin),
		staffUser(30, constants.RoleCallCenter))

	res, err := f.engine.CreateRequest(context.Background(), 30, constants.RoleCallCenter, dto.CreateRequestDTO{
		WorkflowType: "call_center_direct",
		ClientID:     null.Uint64From(10),
		Description:  "Вопрос",
	})
	require.NoError(t, err)

	// Даже администратору оценка доступна только после закрытия.
	_, err = f.engine.Transition(context.Background(), 1, res.ID, dto.TransitionDTO{
		Action: constants.ActionRateService,
		Data:   map[string]interface{}{"rating": float64(5)},
	})
	var permErr *apperrors.PermissionDeniedError
	require.ErrorAs(t, err, &permErr)
}

func TestTransitionUnknownRequest(t *testing.T) {
	f := newEngineFixture(t, staffUser(20, constants.RoleController))

	_, err := f.engine.Transition(context.Background(), 20, "no-such-id", dto.TransitionDTO{
		Action: constants.ActionAssignToTechnician,
		Data:   map[string]interface{}{"technician_id": float64(33)},
	})

	var stateErr *apperrors.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Empty(t, stateErr.Status)
}

func TestGetRoleInboxServesCachedTotal(t *testing.T) {
	f := newEngineFixture(t, clientUser(10))

	res, err := f.engine.CreateRequest(context.Background(), 10, constants.RoleClient, dto.CreateRequestDTO{
		WorkflowType: "technical_service",
		Description:  "Сервис",
	})
	require.NoError(t, err)

	first, err := f.engine.GetRoleInbox(context.Background(), constants.RoleController, dto.InboxFilterDTO{}, 10, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Pagination.TotalCount)

	// Запись добавлена мимо движка: кеш не сброшен, счетчик отдается из кеша.
	_, err = f.notifications.CreateInTx(context.Background(), nil, &entities.PendingNotification{
		RecipientRole: constants.RoleController,
		RequestID:     res.ID,
		WorkflowType:  "technical_service",
	})
	require.NoError(t, err)

	second, err := f.engine.GetRoleInbox(context.Background(), constants.RoleController, dto.InboxFilterDTO{}, 10, 0, 1)
	require.NoError(t, err)
	assert.Len(t, second.List, 2)
	assert.Equal(t, uint64(1), second.Pagination.TotalCount)

	// После сброса кеша счетчик пересчитывается заново.
	key := fmt.Sprintf(constants.CacheKeyInboxTotal, constants.RoleController)
	require.NoError(t, f.cache.Del(context.Background(), key))

	third, err := f.engine.GetRoleInbox(context.Background(), constants.RoleController, dto.InboxFilterDTO{}, 10, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), third.Pagination.TotalCount)
}

func TestGetTransferOptions(t *testing.T) {
	f := newEngineFixture(t, clientUser(10))

	res, err := f.engine.CreateRequest(context.Background(), 10, constants.RoleClient, dto.CreateRequestDTO{
		WorkflowType: "technical_service",
		Description:  "Сервис",
	})
	require.NoError(t, err)

	options, err := f.engine.GetTransferOptions(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{constants.RoleTechnician}, options)
}
