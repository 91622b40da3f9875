package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"request-workflow/internal/dto"
	"request-workflow/internal/entities"
	apperrors "request-workflow/pkg/errors"
	"request-workflow/pkg/telegram"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Фейки репозиториев для юнит-тестов сервисного слоя. Транзакция pgx.Tx
// в фейках не используется: вся работа идет по памяти.

type fakeRequestRepo struct {
	mu       sync.Mutex
	requests map[string]*entities.ServiceRequest
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{requests: make(map[string]*entities.ServiceRequest)}
}

func (r *fakeRequestRepo) CreateInTx(ctx context.Context, tx pgx.Tx, req *entities.ServiceRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *req
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = time.Now()
	r.requests[req.ID] = &cp
	return nil
}

func (r *fakeRequestRepo) FindByID(ctx context.Context, id string) (*entities.ServiceRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *fakeRequestRepo) FindForUpdateInTx(ctx context.Context, tx pgx.Tx, id string) (*entities.ServiceRequest, error) {
	req, err := r.FindByID(ctx, id)
	if err != nil {
		// Сигнальная ошибка оборачивается: вызывающий код обязан
		// распознавать её через errors.Is, а не прямым сравнением.
		return nil, fmt.Errorf("блокировка заявки %s: %w", id, err)
	}
	return req, nil
}

func (r *fakeRequestRepo) UpdateStateInTx(ctx context.Context, tx pgx.Tx, id string, roleCurrent *string, status string, stateData map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	req.RoleCurrent = roleCurrent
	req.Status = status
	req.StateData = stateData
	req.UpdatedAt = time.Now()
	return nil
}

func (r *fakeRequestRepo) SetEquipmentInTx(ctx context.Context, tx pgx.Tx, id string, equipmentUsed map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	req.EquipmentUsed = equipmentUsed
	req.InventoryUpdated = true
	return nil
}

func (r *fakeRequestRepo) SetCompletionFeedbackInTx(ctx context.Context, tx pgx.Tx, id string, rating int, feedback *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if req.CompletionRating != nil {
		return apperrors.NewValidationError("rating", "оценка по заявке %s уже выставлена", id)
	}
	req.CompletionRating = &rating
	req.FeedbackComments = feedback
	return nil
}

func (r *fakeRequestRepo) CountActive(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, req := range r.requests {
		if req.Status != "completed" && req.Status != "cancelled" {
			count++
		}
	}
	return count, nil
}

func (r *fakeRequestRepo) FindStuck(ctx context.Context, threshold time.Duration) ([]entities.ServiceRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-threshold)
	stuck := make([]entities.ServiceRequest, 0)
	for _, req := range r.requests {
		if req.Status != "completed" && req.Status != "cancelled" && req.UpdatedAt.Before(cutoff) {
			stuck = append(stuck, *req)
		}
	}
	return stuck, nil
}

type fakeTransitionRepo struct {
	mu          sync.Mutex
	transitions []entities.StateTransition
	nextID      int64
}

func (r *fakeTransitionRepo) CreateInTx(ctx context.Context, tx pgx.Tx, t *entities.StateTransition) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cp := *t
	cp.ID = r.nextID
	cp.CreatedAt = time.Now()
	r.transitions = append(r.transitions, cp)
	return cp.ID, nil
}

func (r *fakeTransitionRepo) ListByRequest(ctx context.Context, requestID string) ([]entities.StateTransition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]entities.StateTransition, 0)
	for _, t := range r.transitions {
		if t.RequestID == requestID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (r *fakeTransitionRepo) FindLastByRequest(ctx context.Context, requestID string) (*entities.StateTransition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.transitions) - 1; i >= 0; i-- {
		if r.transitions[i].RequestID == requestID {
			cp := r.transitions[i]
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

type fakeNotificationRepo struct {
	mu            sync.Mutex
	notifications map[int64]*entities.PendingNotification
	retries       map[int64]*entities.NotificationRetry
	nextID        int64
	nextRetryID   int64
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{
		notifications: make(map[int64]*entities.PendingNotification),
		retries:       make(map[int64]*entities.NotificationRetry),
	}
}

func (r *fakeNotificationRepo) CreateInTx(ctx context.Context, tx pgx.Tx, n *entities.PendingNotification) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cp := *n
	cp.ID = r.nextID
	cp.CreatedAt = time.Now()
	r.notifications[cp.ID] = &cp
	return cp.ID, nil
}

func (r *fakeNotificationRepo) FindByID(ctx context.Context, id int64) (*entities.PendingNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifications[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (r *fakeNotificationRepo) MarkHandled(ctx context.Context, id int64, userID uint64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifications[id]
	if !ok {
		return false, apperrors.ErrNotFound
	}
	if n.IsHandled {
		return false, nil
	}
	now := time.Now()
	n.IsHandled = true
	n.HandledAt = &now
	n.RecipientUserID = &userID
	return true, nil
}

func (r *fakeNotificationRepo) MarkHandledBySystem(ctx context.Context, id int64) error {
	_, err := r.MarkHandled(ctx, id, 0)
	if err == apperrors.ErrNotFound {
		return err
	}
	return nil
}

func (r *fakeNotificationRepo) Inbox(ctx context.Context, role string, filter dto.InboxFilterDTO, limit, offset uint64) ([]dto.InboxItemDTO, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]dto.InboxItemDTO, 0)
	for _, n := range r.notifications {
		if !r.matches(n, role, filter) {
			continue
		}
		items = append(items, dto.InboxItemDTO{
			NotificationID: n.ID,
			RequestID:      n.RequestID,
			WorkflowType:   n.WorkflowType,
			IsHandled:      n.IsHandled,
			CreatedAt:      n.CreatedAt.Format(time.RFC3339),
		})
	}
	return items, nil
}

func (r *fakeNotificationRepo) CountInbox(ctx context.Context, role string, filter dto.InboxFilterDTO) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total uint64
	for _, n := range r.notifications {
		if r.matches(n, role, filter) {
			total++
		}
	}
	return total, nil
}

func (r *fakeNotificationRepo) matches(n *entities.PendingNotification, role string, filter dto.InboxFilterDTO) bool {
	if n.RecipientRole != role {
		return false
	}
	if filter.WorkflowType.Valid && n.WorkflowType != filter.WorkflowType.String {
		return false
	}
	if filter.Unread.Valid && n.IsHandled == filter.Unread.Bool {
		return false
	}
	return true
}

func (r *fakeNotificationRepo) CountPending(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.notifications {
		if !n.IsHandled {
			count++
		}
	}
	return count, nil
}

func (r *fakeNotificationRepo) UpsertRetry(ctx context.Context, notificationID int64, lastError string, nextRetryAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, retry := range r.retries {
		if retry.NotificationID == notificationID {
			retry.Status = "pending"
			retry.RetryCount = 0
			retry.NextRetryAt = nextRetryAt
			retry.LastError = lastError
			return nil
		}
	}
	r.nextRetryID++
	r.retries[r.nextRetryID] = &entities.NotificationRetry{
		ID:             r.nextRetryID,
		NotificationID: notificationID,
		NextRetryAt:    nextRetryAt,
		LastError:      lastError,
		Status:         "pending",
	}
	return nil
}

func (r *fakeNotificationRepo) DueRetries(ctx context.Context, now time.Time, limit int) ([]entities.NotificationRetry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	due := make([]entities.NotificationRetry, 0)
	for _, retry := range r.retries {
		if retry.Status == "pending" && !retry.NextRetryAt.After(now) {
			due = append(due, *retry)
		}
		if len(due) >= limit {
			break
		}
	}
	return due, nil
}

func (r *fakeNotificationRepo) RescheduleRetry(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	retry, ok := r.retries[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	retry.RetryCount = retryCount
	retry.NextRetryAt = nextRetryAt
	retry.LastError = lastError
	return nil
}

func (r *fakeNotificationRepo) FinishRetry(ctx context.Context, id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	retry, ok := r.retries[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	retry.Status = status
	return nil
}

type fakeInventoryRepo struct {
	mu           sync.Mutex
	transactions []entities.InventoryTransaction
	nextID       int64
}

func (r *fakeInventoryRepo) CreateInTx(ctx context.Context, tx pgx.Tx, t *entities.InventoryTransaction) (int64, error) {
	return r.Create(ctx, t)
}

func (r *fakeInventoryRepo) Create(ctx context.Context, t *entities.InventoryTransaction) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cp := *t
	cp.ID = r.nextID
	cp.CreatedAt = time.Now()
	r.transactions = append(r.transactions, cp)
	return cp.ID, nil
}

func (r *fakeInventoryRepo) FindNegativeBalances(ctx context.Context) ([]entities.InventoryDiscrepancy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	balances := make(map[string]int64)
	for _, t := range r.transactions {
		balances[t.Material] += t.Quantity
	}
	result := make([]entities.InventoryDiscrepancy, 0)
	for material, balance := range balances {
		if balance < 0 {
			result = append(result, entities.InventoryDiscrepancy{Material: material, Balance: balance})
		}
	}
	return result, nil
}

func (r *fakeInventoryRepo) FindOrphaned(ctx context.Context) ([]entities.InventoryTransaction, error) {
	return nil, nil
}

func (r *fakeInventoryRepo) CountDiscrepancies(ctx context.Context) (int, error) {
	negatives, _ := r.FindNegativeBalances(ctx)
	return len(negatives), nil
}

type fakeErrorRepo struct {
	mu      sync.Mutex
	records []entities.ErrorRecord
}

func (r *fakeErrorRepo) Create(ctx context.Context, rec *entities.ErrorRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *rec)
	return nil
}

func (r *fakeErrorRepo) CountSince(ctx context.Context, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records), nil
}

type fakeTxLogRepo struct {
	mu      sync.Mutex
	entries []entities.TransactionLogEntry
	nextID  int64
}

func (r *fakeTxLogRepo) Create(ctx context.Context, entry *entities.TransactionLogEntry) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cp := *entry
	cp.ID = r.nextID
	r.entries = append(r.entries, cp)
	return cp.ID, nil
}

func (r *fakeTxLogRepo) SetStatusByTransaction(ctx context.Context, transactionID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].TransactionID == transactionID && r.entries[i].Status == "pending" {
			r.entries[i].Status = status
		}
	}
	return nil
}

type fakeAccessLogRepo struct {
	mu      sync.Mutex
	records []entities.AccessControlLog
	fail    bool
}

func (r *fakeAccessLogRepo) Create(ctx context.Context, rec *entities.AccessControlLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return fmt.Errorf("журнал доступа недоступен")
	}
	r.records = append(r.records, *rec)
	return nil
}

type fakeRecoveryRepo struct {
	mu        sync.Mutex
	logs      []entities.WorkflowRecoveryLog
	snapshots []entities.SystemHealthSnapshot
}

func (r *fakeRecoveryRepo) CreateRecoveryLog(ctx context.Context, rec *entities.WorkflowRecoveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *rec)
	return nil
}

func (r *fakeRecoveryRepo) SaveHealthSnapshot(ctx context.Context, snap *entities.SystemHealthSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, *snap)
	return nil
}

type fakeUserRepo struct {
	users map[uint64]*entities.User
}

func newFakeUserRepo(users ...*entities.User) *fakeUserRepo {
	m := make(map[uint64]*entities.User, len(users))
	for _, u := range users {
		m[u.ID] = u
	}
	return &fakeUserRepo{users: m}
}

func (r *fakeUserRepo) FindByID(ctx context.Context, id uint64) (*entities.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) FindByRole(ctx context.Context, role string) ([]entities.User, error) {
	result := make([]entities.User, 0)
	for _, u := range r.users {
		if u.Role == role {
			result = append(result, *u)
		}
	}
	return result, nil
}

type fakeCache struct {
	mu   sync.Mutex
	data map[string]interface{}
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]interface{})}
}

func (c *fakeCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return "", apperrors.ErrNotFound
	}
	switch value := v.(type) {
	case string:
		return value, nil
	case []byte:
		return string(value), nil
	default:
		return fmt.Sprintf("%v", value), nil
	}
}

func (c *fakeCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *fakeCache) Del(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.data, key)
	}
	return nil
}

// fakeTxState выполняет fn без настоящей транзакции, но с настоящим журналом.
type fakeTxState struct {
	txLogRepo *fakeTxLogRepo
}

func (m *fakeTxState) Run(ctx context.Context, fn func(tx pgx.Tx, journal *Journal) error) error {
	journal := &Journal{
		TransactionID: fmt.Sprintf("tx-%d", time.Now().UnixNano()),
		repo:          m.txLogRepo,
		logger:        zap.NewNop(),
	}
	err := fn(nil, journal)
	status := "completed"
	if err != nil {
		status = "rolled_back"
	}
	_ = m.txLogRepo.SetStatusByTransaction(ctx, journal.TransactionID, status)
	return err
}

type fakeTelegram struct {
	mu    sync.Mutex
	sent  []int64
	fails int
}

func (t *fakeTelegram) SendMessage(ctx context.Context, chatID int64, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fails > 0 {
		t.fails--
		return fmt.Errorf("telegram недоступен")
	}
	t.sent = append(t.sent, chatID)
	return nil
}

func (t *fakeTelegram) SendMessageEx(ctx context.Context, chatID int64, text string, options ...telegram.MessageOption) error {
	return t.SendMessage(ctx, chatID, text)
}
