package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"request-workflow/internal/dto"
	"request-workflow/internal/entities"
	"request-workflow/internal/events"
	"request-workflow/internal/repositories"
	"request-workflow/internal/workflow"
	"request-workflow/pkg/constants"
	apperrors "request-workflow/pkg/errors"
	"request-workflow/pkg/eventbus"
	"request-workflow/pkg/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type WorkflowEngineServiceInterface interface {
	CreateRequest(ctx context.Context, actorID uint64, actorRole string, payload dto.CreateRequestDTO) (*dto.RequestDTO, error)
	Transition(ctx context.Context, actorID uint64, requestID string, payload dto.TransitionDTO) (*dto.RequestDTO, error)
	GetRequest(ctx context.Context, requestID string) (*dto.RequestDTO, error)
	GetRequestHistory(ctx context.Context, requestID string) ([]dto.TransitionRecordDTO, error)
	GetTransferOptions(ctx context.Context, requestID string) ([]string, error)
	GetRoleInbox(ctx context.Context, role string, filter dto.InboxFilterDTO, limit, offset, page uint64) (*dto.PaginatedResponse[dto.InboxItemDTO], error)
	MarkNotificationHandled(ctx context.Context, notificationID int64, userID uint64) (bool, error)
}

// WorkflowEngineService - ядро движения заявок: создание, переходы по
// таблицам маршрутизации, входящие ролей и отметка уведомлений.
type WorkflowEngineService struct {
	txState          TxStateManagerInterface
	requestRepo      repositories.RequestRepositoryInterface
	transitionRepo   repositories.TransitionRepositoryInterface
	notificationRepo repositories.NotificationRepositoryInterface
	inventoryRepo    repositories.InventoryRepositoryInterface
	access           AccessControlServiceInterface
	registry         *workflow.Registry
	cache            repositories.CacheRepositoryInterface
	bus              *eventbus.Bus
	logger           *zap.Logger
}

func NewWorkflowEngineService(
	txState TxStateManagerInterface,
	requestRepo repositories.RequestRepositoryInterface,
	transitionRepo repositories.TransitionRepositoryInterface,
	notificationRepo repositories.NotificationRepositoryInterface,
	inventoryRepo repositories.InventoryRepositoryInterface,
	access AccessControlServiceInterface,
	registry *workflow.Registry,
	cache repositories.CacheRepositoryInterface,
	bus *eventbus.Bus,
	logger *zap.Logger,
) WorkflowEngineServiceInterface {
	return &WorkflowEngineService{
		txState:          txState,
		requestRepo:      requestRepo,
		transitionRepo:   transitionRepo,
		notificationRepo: notificationRepo,
		inventoryRepo:    inventoryRepo,
		access:           access,
		registry:         registry,
		cache:            cache,
		bus:              bus,
		logger:           logger,
	}
}

func (s *WorkflowEngineService) CreateRequest(ctx context.Context, actorID uint64, actorRole string, payload dto.CreateRequestDTO) (*dto.RequestDTO, error) {
	initialRole, ok := s.registry.InitialRole(payload.WorkflowType)
	if !ok {
		return nil, apperrors.NewValidationError("workflow_type", "неизвестный тип workflow %q", payload.WorkflowType)
	}

	req := &entities.ServiceRequest{
		ID:           uuid.NewString(),
		WorkflowType: payload.WorkflowType,
		RoleCurrent:  &initialRole,
		Status:       constants.StatusCreated,
		Priority:     payload.Priority,
		Description:  payload.Description,
		Location:     payload.Location,
		ContactInfo:  payload.ContactInfo,
		StateData:    map[string]interface{}{},
	}
	if req.Priority == "" {
		req.Priority = constants.PriorityMedium
	}

	if actorRole == constants.RoleClient {
		req.ClientID = actorID
		req.CreationSource = constants.RoleClient
	} else {
		// Сотрудник создает заявку от имени клиента: client_id обязателен,
		// а контекст создателя фиксируется неизменяемо и в полях заявки,
		// и в state_data, откуда он переносится в каждый переход.
		if !payload.ClientID.Valid || payload.ClientID.Uint64 == 0 {
			return nil, apperrors.NewValidationError("client_id", "client_id обязателен при создании заявки сотрудником")
		}
		req.ClientID = payload.ClientID.Uint64
		req.CreatedByStaff = true
		req.StaffCreatorID = &actorID
		staffRole := actorRole
		req.StaffCreatorRole = &staffRole
		req.CreationSource = actorRole
		req.StateData[constants.StateKeyStaffCreatorInfo] = map[string]interface{}{
			"staff_id":   actorID,
			"staff_role": actorRole,
			"created_at": time.Now().UTC().Format(time.RFC3339),
		}
	}

	var notificationID int64
	err := s.txState.Run(ctx, func(tx pgx.Tx, journal *Journal) error {
		if err := journal.Record(ctx, "create_request",
			map[string]interface{}{
				"request_id":    req.ID,
				"workflow_type": req.WorkflowType,
				"client_id":     req.ClientID,
				"initial_role":  initialRole,
			},
			map[string]interface{}{"delete_request_id": req.ID},
		); err != nil {
			return err
		}

		if err := s.requestRepo.CreateInTx(ctx, tx, req); err != nil {
			return err
		}

		if _, err := s.transitionRepo.CreateInTx(ctx, tx, &entities.StateTransition{
			RequestID:      req.ID,
			FromRole:       nil,
			ToRole:         &initialRole,
			Action:         constants.ActionCreateRequest,
			ActorID:        actorID,
			TransitionData: map[string]interface{}{constants.TransitionKeyTimestamp: time.Now().UTC().Format(time.RFC3339)},
			CommentKey:     "request.created",
			CommentParams:  map[string]interface{}{"workflow_type": req.WorkflowType},
		}); err != nil {
			return err
		}

		id, err := s.notificationRepo.CreateInTx(ctx, tx, &entities.PendingNotification{
			RecipientRole: initialRole,
			RequestID:     req.ID,
			WorkflowType:  req.WorkflowType,
		})
		if err != nil {
			return err
		}
		notificationID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateInbox(ctx, initialRole)
	s.bus.Publish(ctx, events.RequestCreatedEvent{
		RequestID:      req.ID,
		WorkflowType:   req.WorkflowType,
		Priority:       req.Priority,
		NotificationID: notificationID,
		RecipientRole:  initialRole,
	})

	s.logger.Info("Заявка создана",
		zap.String("request_id", req.ID),
		zap.String("workflow_type", req.WorkflowType),
		zap.String("initial_role", initialRole),
		zap.Bool("created_by_staff", req.CreatedByStaff))

	return s.toRequestDTO(req), nil
}

func (s *WorkflowEngineService) Transition(ctx context.Context, actorID uint64, requestID string, payload dto.TransitionDTO) (*dto.RequestDTO, error) {
	var (
		result        *entities.ServiceRequest
		event         events.RequestTransitionedEvent
		touchedRoles  []string
		publishNeeded bool
	)

	err := s.txState.Run(ctx, func(tx pgx.Tx, journal *Journal) error {
		req, err := s.requestRepo.FindForUpdateInTx(ctx, tx, requestID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return &apperrors.InvalidStateError{RequestID: requestID}
			}
			return err
		}

		if constants.IsTerminalStatus(req.Status) {
			if _, ok := s.registry.CompletionRule(req.WorkflowType, payload.Action); ok {
				result = req
				return s.applyCompletionAction(ctx, tx, journal, actorID, req, payload)
			}
			return &apperrors.InvalidStateError{RequestID: req.ID, Status: req.Status}
		}

		rule, ok := s.registry.FindRule(req.WorkflowType, req.CurrentRole(), payload.Action)
		if !ok {
			// Завершающее действие на незакрытой заявке - отказ доступа,
			// а не неизвестный переход.
			if _, completion := s.registry.CompletionRule(req.WorkflowType, payload.Action); completion {
				granted, reason, authErr := s.access.Authorize(ctx, actorID, payload.Action, req)
				if authErr != nil {
					return authErr
				}
				if granted {
					reason = "завершающее действие до закрытия заявки"
				}
				return &apperrors.PermissionDeniedError{Reason: reason}
			}
			return &apperrors.IllegalTransitionError{
				WorkflowType: req.WorkflowType,
				Role:         req.CurrentRole(),
				Action:       payload.Action,
			}
		}

		for _, field := range rule.RequiredFields {
			if _, present := payload.Data[field]; !present {
				return apperrors.NewValidationError(field, "поле %q обязательно для действия %q", field, payload.Action)
			}
		}

		granted, reason, err := s.access.Authorize(ctx, actorID, payload.Action, req)
		if err != nil {
			return err
		}
		if !granted {
			return &apperrors.PermissionDeniedError{Reason: reason}
		}

		fromRole := req.CurrentRole()
		transitionData := enrichTransitionData(actorID, req, payload.Data)

		if err := journal.Record(ctx, "transition",
			map[string]interface{}{
				"request_id": req.ID,
				"action":     payload.Action,
				"from_role":  fromRole,
				"to_role":    rule.TargetRole,
				"to_status":  rule.TargetStatus,
			},
			map[string]interface{}{
				"request_id":  req.ID,
				"prev_role":   fromRole,
				"prev_status": req.Status,
				"prev_state":  req.StateData,
			},
		); err != nil {
			return err
		}

		var toRole *string
		if rule.TargetRole != "" {
			toRole = &rule.TargetRole
		}
		if _, err := s.transitionRepo.CreateInTx(ctx, tx, &entities.StateTransition{
			RequestID:      req.ID,
			FromRole:       &fromRole,
			ToRole:         toRole,
			Action:         payload.Action,
			ActorID:        actorID,
			TransitionData: transitionData,
			CommentKey:     "transition." + payload.Action,
			CommentParams:  map[string]interface{}{"from_role": fromRole, "to_role": rule.TargetRole},
		}); err != nil {
			return err
		}

		newState := utils.MergeStateData(req.StateData, payload.Data)
		if err := s.requestRepo.UpdateStateInTx(ctx, tx, req.ID, toRole, rule.TargetStatus, newState); err != nil {
			return err
		}

		if payload.Action == constants.ActionIssueEquipment {
			if err := s.recordEquipmentIssue(ctx, tx, actorID, req, payload.Data); err != nil {
				return err
			}
		}

		var notificationID int64
		// Переход внутри одной роли (подтверждение) и финальный переход
		// новых входящих не порождают.
		if rule.TargetRole != "" && rule.TargetRole != fromRole {
			notificationID, err = s.notificationRepo.CreateInTx(ctx, tx, &entities.PendingNotification{
				RecipientRole: rule.TargetRole,
				RequestID:     req.ID,
				WorkflowType:  req.WorkflowType,
			})
			if err != nil {
				return err
			}
			touchedRoles = append(touchedRoles, rule.TargetRole)
		}
		touchedRoles = append(touchedRoles, fromRole)

		req.RoleCurrent = toRole
		req.Status = rule.TargetStatus
		req.StateData = newState
		result = req

		event = events.RequestTransitionedEvent{
			RequestID:      req.ID,
			WorkflowType:   req.WorkflowType,
			Priority:       req.Priority,
			Action:         payload.Action,
			FromRole:       fromRole,
			ToRole:         rule.TargetRole,
			NewStatus:      rule.TargetStatus,
			NotificationID: notificationID,
			RecipientRole:  rule.TargetRole,
		}
		publishNeeded = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if publishNeeded {
		s.invalidateInbox(ctx, touchedRoles...)
		s.bus.Publish(ctx, event)
		s.logger.Info("Переход выполнен",
			zap.String("request_id", result.ID),
			zap.String("action", payload.Action),
			zap.String("from_role", event.FromRole),
			zap.String("to_role", event.ToRole),
			zap.String("status", event.NewStatus))
	}

	return s.toRequestDTO(result), nil
}

// applyCompletionAction обслуживает действия, допустимые только на закрытой
// заявке (оценка сервиса). Оценка однократна, фидбек необязателен.
func (s *WorkflowEngineService) applyCompletionAction(ctx context.Context, tx pgx.Tx, journal *Journal, actorID uint64, req *entities.ServiceRequest, payload dto.TransitionDTO) error {
	cr, _ := s.registry.CompletionRule(req.WorkflowType, payload.Action)
	for _, field := range cr.RequiredFields {
		if _, present := payload.Data[field]; !present {
			return apperrors.NewValidationError(field, "поле %q обязательно для действия %q", field, payload.Action)
		}
	}

	granted, reason, err := s.access.Authorize(ctx, actorID, payload.Action, req)
	if err != nil {
		return err
	}
	if !granted {
		return &apperrors.PermissionDeniedError{Reason: reason}
	}

	rating, ok := toInt(payload.Data["rating"])
	if !ok || rating < 1 || rating > 5 {
		return apperrors.NewValidationError("rating", "оценка должна быть целым числом от 1 до 5")
	}
	var feedback *string
	if raw, ok := payload.Data["feedback"].(string); ok && raw != "" {
		feedback = &raw
	}

	if err := journal.Record(ctx, "rate_service",
		map[string]interface{}{"request_id": req.ID, "rating": rating},
		map[string]interface{}{"request_id": req.ID, "clear_rating": true},
	); err != nil {
		return err
	}

	if err := s.requestRepo.SetCompletionFeedbackInTx(ctx, tx, req.ID, rating, feedback); err != nil {
		return err
	}

	if _, err := s.transitionRepo.CreateInTx(ctx, tx, &entities.StateTransition{
		RequestID:      req.ID,
		Action:         payload.Action,
		ActorID:        actorID,
		TransitionData: enrichTransitionData(actorID, req, payload.Data),
		CommentKey:     "request.rated",
		CommentParams:  map[string]interface{}{"rating": rating},
	}); err != nil {
		return err
	}

	req.CompletionRating = &rating
	req.FeedbackComments = feedback
	return nil
}

// enrichTransitionData дополняет данные перехода служебным контекстом:
// меткой времени и, для заявок от имени клиента, контекстом staff-создателя.
// Контекст создателя переносится в каждый переход независимо от актора,
// включая администратора и восстановительные действия.
func enrichTransitionData(actorID uint64, req *entities.ServiceRequest, data map[string]interface{}) map[string]interface{} {
	enriched := make(map[string]interface{}, len(data)+3)
	for k, v := range data {
		enriched[k] = v
	}
	enriched[constants.TransitionKeyTimestamp] = time.Now().UTC().Format(time.RFC3339)

	if req.CreatedByStaff {
		if info, ok := req.StateData[constants.StateKeyStaffCreatorInfo]; ok {
			enriched[constants.TransitionKeyOriginalCreator] = info
		}
		if req.StaffCreatorID != nil {
			enriched[constants.TransitionKeyActorDiffers] = actorID != *req.StaffCreatorID
		}
	}
	return enriched
}

// recordEquipmentIssue пишет расход склада по выданным материалам.
// materials - объект вида {"кабель": 2, "коннектор": 4}.
func (s *WorkflowEngineService) recordEquipmentIssue(ctx context.Context, tx pgx.Tx, actorID uint64, req *entities.ServiceRequest, data map[string]interface{}) error {
	materials, ok := data["materials"].(map[string]interface{})
	if !ok || len(materials) == 0 {
		return apperrors.NewValidationError("materials", "materials должен быть непустым объектом материал -> количество")
	}

	for material, rawQty := range materials {
		qty, ok := toInt(rawQty)
		if !ok || qty <= 0 {
			return apperrors.NewValidationError("materials", "количество материала %q должно быть положительным целым", material)
		}
		if _, err := s.inventoryRepo.CreateInTx(ctx, tx, &entities.InventoryTransaction{
			RequestID:   &req.ID,
			Material:    material,
			Quantity:    -int64(qty),
			PerformedBy: actorID,
			Note:        "выдача по заявке",
		}); err != nil {
			return err
		}
	}

	if err := s.requestRepo.SetEquipmentInTx(ctx, tx, req.ID, materials); err != nil {
		return err
	}
	req.EquipmentUsed = materials
	req.InventoryUpdated = true
	return nil
}

func (s *WorkflowEngineService) GetRequest(ctx context.Context, requestID string) (*dto.RequestDTO, error) {
	req, err := s.requestRepo.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return s.toRequestDTO(req), nil
}

func (s *WorkflowEngineService) GetRequestHistory(ctx context.Context, requestID string) ([]dto.TransitionRecordDTO, error) {
	transitions, err := s.transitionRepo.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	records := make([]dto.TransitionRecordDTO, 0, len(transitions))
	for _, t := range transitions {
		records = append(records, dto.TransitionRecordDTO{
			ID:            t.ID,
			FromRole:      t.FromRole,
			ToRole:        t.ToRole,
			Action:        t.Action,
			ActorID:       t.ActorID,
			CommentKey:    t.CommentKey,
			CommentParams: t.CommentParams,
			CreatedAt:     t.CreatedAt.Format(time.RFC3339),
		})
	}
	return records, nil
}

func (s *WorkflowEngineService) GetTransferOptions(ctx context.Context, requestID string) ([]string, error) {
	req, err := s.requestRepo.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if constants.IsTerminalStatus(req.Status) {
		return []string{}, nil
	}
	return s.registry.TransferOptions(req.WorkflowType, req.CurrentRole()), nil
}

func (s *WorkflowEngineService) GetRoleInbox(ctx context.Context, role string, filter dto.InboxFilterDTO, limit, offset, page uint64) (*dto.PaginatedResponse[dto.InboxItemDTO], error) {
	if !constants.IsStaffRole(role) {
		return nil, apperrors.NewValidationError("role", "неизвестная роль %q", role)
	}

	items, err := s.notificationRepo.Inbox(ctx, role, filter, limit, offset)
	if err != nil {
		return nil, err
	}

	// Счетчик без фильтров отдается из кеша: его дергают все клиенты роли
	// при каждом обновлении экрана. Кеш сбрасывается при переходах.
	unfiltered := !filter.WorkflowType.Valid && !filter.Priority.Valid && !filter.Unread.Valid
	key := fmt.Sprintf(constants.CacheKeyInboxTotal, role)

	var total uint64
	haveTotal := false
	if unfiltered {
		if raw, cacheErr := s.cache.Get(ctx, key); cacheErr == nil {
			if parsed, parseErr := strconv.ParseUint(raw, 10, 64); parseErr == nil {
				total = parsed
				haveTotal = true
			}
		}
	}
	if !haveTotal {
		total, err = s.notificationRepo.CountInbox(ctx, role, filter)
		if err != nil {
			return nil, err
		}
		if unfiltered {
			if cacheErr := s.cache.Set(ctx, key, total, time.Minute); cacheErr != nil {
				s.logger.Warn("Не удалось закешировать счетчик входящих", zap.String("role", role), zap.Error(cacheErr))
			}
		}
	}

	totalPages := uint64(0)
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return &dto.PaginatedResponse[dto.InboxItemDTO]{
		List: items,
		Pagination: dto.PaginationObject{
			TotalCount: total,
			Page:       page,
			Limit:      limit,
			TotalPages: totalPages,
		},
	}, nil
}

func (s *WorkflowEngineService) MarkNotificationHandled(ctx context.Context, notificationID int64, userID uint64) (bool, error) {
	notification, err := s.notificationRepo.FindByID(ctx, notificationID)
	if err != nil {
		return false, err
	}

	changed, err := s.notificationRepo.MarkHandled(ctx, notificationID, userID)
	if err != nil {
		return false, err
	}
	if changed {
		s.invalidateInbox(ctx, notification.RecipientRole)
	}
	return changed, nil
}

func (s *WorkflowEngineService) invalidateInbox(ctx context.Context, roles ...string) {
	keys := make([]string, 0, len(roles))
	for _, role := range roles {
		keys = append(keys, fmt.Sprintf(constants.CacheKeyInboxTotal, role))
	}
	if len(keys) == 0 {
		return
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.logger.Warn("Не удалось сбросить кеш входящих", zap.Strings("roles", roles), zap.Error(err))
	}
}

func (s *WorkflowEngineService) toRequestDTO(req *entities.ServiceRequest) *dto.RequestDTO {
	return &dto.RequestDTO{
		ID:               req.ID,
		WorkflowType:     req.WorkflowType,
		ClientID:         req.ClientID,
		RoleCurrent:      req.RoleCurrent,
		Status:           req.Status,
		Priority:         req.Priority,
		Description:      req.Description,
		Location:         req.Location,
		ContactInfo:      req.ContactInfo,
		StateData:        req.StateData,
		EquipmentUsed:    req.EquipmentUsed,
		InventoryUpdated: req.InventoryUpdated,
		CompletionRating: req.CompletionRating,
		FeedbackComments: req.FeedbackComments,
		CreatedByStaff:   req.CreatedByStaff,
		CreationSource:   req.CreationSource,
		CreatedAt:        req.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        req.UpdatedAt.Format(time.RFC3339),
	}
}

// toInt приводит значение из JSON-декодированной map к целому.
func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
		return 0, false
	default:
		return 0, false
	}
}
