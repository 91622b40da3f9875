package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"request-workflow/internal/dto"
	"request-workflow/internal/entities"
	"request-workflow/internal/repositories"
	"request-workflow/internal/workflow"
	"request-workflow/pkg/config"
	"request-workflow/pkg/constants"
	apperrors "request-workflow/pkg/errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type RecoveryServiceInterface interface {
	GetStuckWorkflows(ctx context.Context) ([]dto.StuckWorkflowDTO, error)
	// ExecuteRecoveryAction выполняет административное восстановление зависшей
	// заявки. История не правится: восстановление добавляет компенсирующий
	// переход, а факт вмешательства пишется в workflow_recovery_log.
	ExecuteRecoveryAction(ctx context.Context, adminID uint64, requestID, action string, payload dto.RecoveryActionDTO) (*dto.RecoveryResultDTO, error)
	ReconcileInventory(ctx context.Context, performedBy uint64) error
	CollectHealthSnapshot(ctx context.Context) (*dto.SystemHealthDTO, error)
	// GetSystemHealth отдает последний снимок из кеша; при промахе собирает
	// свежий. Кеш обновляется фоновым проходом и самим сбором.
	GetSystemHealth(ctx context.Context) (*dto.SystemHealthDTO, error)
	StartSweep(ctx context.Context)
}

type RecoveryService struct {
	txState          TxStateManagerInterface
	requestRepo      repositories.RequestRepositoryInterface
	transitionRepo   repositories.TransitionRepositoryInterface
	notificationRepo repositories.NotificationRepositoryInterface
	inventoryRepo    repositories.InventoryRepositoryInterface
	errorRepo        repositories.ErrorRepositoryInterface
	recoveryRepo     repositories.RecoveryRepositoryInterface
	registry         *workflow.Registry
	cache            repositories.CacheRepositoryInterface
	cfg              config.RecoveryConfig
	logger           *zap.Logger
}

func NewRecoveryService(
	txState TxStateManagerInterface,
	requestRepo repositories.RequestRepositoryInterface,
	transitionRepo repositories.TransitionRepositoryInterface,
	notificationRepo repositories.NotificationRepositoryInterface,
	inventoryRepo repositories.InventoryRepositoryInterface,
	errorRepo repositories.ErrorRepositoryInterface,
	recoveryRepo repositories.RecoveryRepositoryInterface,
	registry *workflow.Registry,
	cache repositories.CacheRepositoryInterface,
	cfg config.RecoveryConfig,
	logger *zap.Logger,
) RecoveryServiceInterface {
	return &RecoveryService{
		txState:          txState,
		requestRepo:      requestRepo,
		transitionRepo:   transitionRepo,
		notificationRepo: notificationRepo,
		inventoryRepo:    inventoryRepo,
		errorRepo:        errorRepo,
		recoveryRepo:     recoveryRepo,
		registry:         registry,
		cache:            cache,
		cfg:              cfg,
		logger:           logger,
	}
}

func (s *RecoveryService) GetStuckWorkflows(ctx context.Context) ([]dto.StuckWorkflowDTO, error) {
	stuck, err := s.requestRepo.FindStuck(ctx, s.cfg.StuckThreshold)
	if err != nil {
		return nil, err
	}

	result := make([]dto.StuckWorkflowDTO, 0, len(stuck))
	for _, req := range stuck {
		result = append(result, dto.StuckWorkflowDTO{
			RequestID:          req.ID,
			WorkflowType:       req.WorkflowType,
			RoleCurrent:        req.RoleCurrent,
			Status:             req.Status,
			Priority:           req.Priority,
			StuckSince:         req.UpdatedAt.Format(time.RFC3339),
			RecommendedActions: s.recommendActions(&req),
		})
	}
	return result, nil
}

// recommendActions собирает подсказки администратору: сначала обычные
// действия текущей роли, затем административные.
func (s *RecoveryService) recommendActions(req *entities.ServiceRequest) []string {
	actions := s.registry.LegalActions(req.WorkflowType, req.CurrentRole())
	return append(actions,
		constants.RecoveryForceTransition,
		constants.RecoveryResetToPrevious,
		constants.RecoveryForceComplete,
		constants.RecoveryReassign,
	)
}

func (s *RecoveryService) ExecuteRecoveryAction(ctx context.Context, adminID uint64, requestID, action string, payload dto.RecoveryActionDTO) (*dto.RecoveryResultDTO, error) {
	var (
		stateBefore map[string]interface{}
		newRole     *string
		newStatus   string
	)

	err := s.txState.Run(ctx, func(tx pgx.Tx, journal *Journal) error {
		req, err := s.requestRepo.FindForUpdateInTx(ctx, tx, requestID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return &apperrors.InvalidStateError{RequestID: requestID}
			}
			return err
		}

		stateBefore = map[string]interface{}{
			"role_current": req.CurrentRole(),
			"status":       req.Status,
		}

		targetRole, targetStatus, err := s.resolveRecoveryTarget(ctx, req, action, payload)
		if err != nil {
			return err
		}

		if err := journal.Record(ctx, "recovery_"+action,
			map[string]interface{}{
				"request_id": req.ID,
				"action":     action,
				"to_role":    derefOrEmpty(targetRole),
				"to_status":  targetStatus,
			},
			map[string]interface{}{
				"request_id":  req.ID,
				"prev_role":   req.CurrentRole(),
				"prev_status": req.Status,
			},
		); err != nil {
			return err
		}

		fromRole := req.CurrentRole()
		// Восстановительный переход несет тот же служебный контекст, что и
		// обычный: контекст staff-создателя не теряется и здесь.
		recoveryData := map[string]interface{}{"recovery_action": action}
		if payload.Comment != "" {
			recoveryData["comment"] = payload.Comment
		}
		transitionData := enrichTransitionData(adminID, req, recoveryData)
		if _, err := s.transitionRepo.CreateInTx(ctx, tx, &entities.StateTransition{
			RequestID:      req.ID,
			FromRole:       &fromRole,
			ToRole:         targetRole,
			Action:         action,
			ActorID:        adminID,
			TransitionData: transitionData,
			CommentKey:     "recovery." + action,
			CommentParams:  map[string]interface{}{"from_role": fromRole, "to_role": derefOrEmpty(targetRole)},
		}); err != nil {
			return err
		}

		if err := s.requestRepo.UpdateStateInTx(ctx, tx, req.ID, targetRole, targetStatus, req.StateData); err != nil {
			return err
		}

		if targetRole != nil && *targetRole != fromRole {
			if _, err := s.notificationRepo.CreateInTx(ctx, tx, &entities.PendingNotification{
				RecipientRole: *targetRole,
				RequestID:     req.ID,
				WorkflowType:  req.WorkflowType,
			}); err != nil {
				return err
			}
		}

		newRole = targetRole
		newStatus = targetStatus
		return nil
	})

	logErr := s.recoveryRepo.CreateRecoveryLog(context.WithoutCancel(ctx), &entities.WorkflowRecoveryLog{
		RequestID:   requestID,
		Action:      action,
		StateBefore: stateBefore,
		StateAfter: map[string]interface{}{
			"role_current": derefOrEmpty(newRole),
			"status":       newStatus,
		},
		Success:     err == nil,
		PerformedBy: adminID,
	})
	if logErr != nil {
		s.logger.Error("Не удалось записать журнал восстановления",
			zap.String("request_id", requestID), zap.Error(logErr))
	}

	if err != nil {
		return nil, err
	}

	s.logger.Info("Восстановление выполнено",
		zap.String("request_id", requestID),
		zap.String("action", action),
		zap.Uint64("admin_id", adminID))

	return &dto.RecoveryResultDTO{
		RequestID: requestID,
		Action:    action,
		Success:   true,
		NewRole:   newRole,
		NewStatus: newStatus,
	}, nil
}

func (s *RecoveryService) resolveRecoveryTarget(ctx context.Context, req *entities.ServiceRequest, action string, payload dto.RecoveryActionDTO) (*string, string, error) {
	switch action {
	case constants.RecoveryForceTransition:
		if payload.TargetRole.Valid {
			role := payload.TargetRole.String
			if !constants.IsStaffRole(role) {
				return nil, "", apperrors.NewValidationError("target_role", "неизвестная роль %q", role)
			}
			return &role, constants.StatusInProgress, nil
		}
		options := s.registry.TransferOptions(req.WorkflowType, req.CurrentRole())
		if len(options) == 0 {
			return nil, "", apperrors.NewValidationError("target_role", "для роли %q нет целей перехода, укажите target_role", req.CurrentRole())
		}
		role := options[0]
		return &role, constants.StatusInProgress, nil

	case constants.RecoveryResetToPrevious:
		last, err := s.transitionRepo.FindLastByRequest(ctx, req.ID)
		if err != nil {
			return nil, "", err
		}
		if last.FromRole == nil || *last.FromRole == "" {
			return nil, "", apperrors.NewValidationError("action", "у заявки %s нет предыдущей роли", req.ID)
		}
		role := *last.FromRole
		return &role, constants.StatusInProgress, nil

	case constants.RecoveryForceComplete:
		return nil, constants.StatusCompleted, nil

	case constants.RecoveryReassign:
		if !payload.TargetRole.Valid || payload.TargetRole.String == "" {
			return nil, "", apperrors.NewValidationError("target_role", "target_role обязателен для reassign")
		}
		role := payload.TargetRole.String
		if !constants.IsStaffRole(role) {
			return nil, "", apperrors.NewValidationError("target_role", "неизвестная роль %q", role)
		}
		return &role, constants.StatusInProgress, nil

	default:
		return nil, "", apperrors.NewValidationError("action", "неизвестное действие восстановления %q", action)
	}
}

// ReconcileInventory сверяет склад: небольшие отрицательные остатки
// компенсируются автоматической корректировкой, крупные и осиротевшие
// движения фиксируются как ошибки для ручного разбора.
func (s *RecoveryService) ReconcileInventory(ctx context.Context, performedBy uint64) error {
	negatives, err := s.inventoryRepo.FindNegativeBalances(ctx)
	if err != nil {
		return err
	}

	for _, d := range negatives {
		deficit := -d.Balance
		if deficit <= s.cfg.InventoryAutoCorrect {
			if _, err := s.inventoryRepo.Create(ctx, &entities.InventoryTransaction{
				Material:    d.Material,
				Quantity:    deficit,
				PerformedBy: performedBy,
				Note:        "автокоррекция сверки",
			}); err != nil {
				return err
			}
			s.logger.Info("Остаток скорректирован автоматически",
				zap.String("material", d.Material), zap.Int64("deficit", deficit))
			continue
		}

		if err := s.errorRepo.Create(ctx, &entities.ErrorRecord{
			Category: constants.ErrorCategoryInventory,
			Severity: constants.SeverityHigh,
			Message:  fmt.Sprintf("отрицательный остаток материала %q превышает порог автокоррекции", d.Material),
			Context: map[string]interface{}{
				"material": d.Material,
				"balance":  d.Balance,
				"limit":    s.cfg.InventoryAutoCorrect,
			},
		}); err != nil {
			return err
		}
	}

	orphans, err := s.inventoryRepo.FindOrphaned(ctx)
	if err != nil {
		return err
	}
	for _, t := range orphans {
		if err := s.errorRepo.Create(ctx, &entities.ErrorRecord{
			Category: constants.ErrorCategoryData,
			Severity: constants.SeverityMedium,
			Message:  "движение склада ссылается на несуществующую заявку",
			Context: map[string]interface{}{
				"inventory_transaction_id": t.ID,
				"request_id":               t.RequestID,
				"material":                 t.Material,
			},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *RecoveryService) CollectHealthSnapshot(ctx context.Context) (*dto.SystemHealthDTO, error) {
	active, err := s.requestRepo.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.notificationRepo.CountPending(ctx)
	if err != nil {
		return nil, err
	}
	errors24h, err := s.errorRepo.CountSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	discrepancies, err := s.inventoryRepo.CountDiscrepancies(ctx)
	if err != nil {
		return nil, err
	}
	stuck, err := s.requestRepo.FindStuck(ctx, s.cfg.StuckThreshold)
	if err != nil {
		return nil, err
	}

	status := s.classify(errors24h, len(stuck), discrepancies)
	snapshot := &entities.SystemHealthSnapshot{
		ActiveRequests:         active,
		PendingNotifications:   pending,
		Errors24h:              errors24h,
		InventoryDiscrepancies: discrepancies,
		StuckWorkflows:         len(stuck),
		SystemStatus:           status,
	}
	if err := s.recoveryRepo.SaveHealthSnapshot(ctx, snapshot); err != nil {
		return nil, err
	}

	result := &dto.SystemHealthDTO{
		ActiveRequests:         active,
		PendingNotifications:   pending,
		Errors24h:              errors24h,
		InventoryDiscrepancies: discrepancies,
		StuckWorkflows:         len(stuck),
		Status:                 status,
		CollectedAt:            time.Now().UTC().Format(time.RFC3339),
	}

	if raw, err := json.Marshal(result); err == nil {
		if cacheErr := s.cache.Set(ctx, constants.CacheKeyHealthSnapshot, raw, 5*time.Minute); cacheErr != nil {
			s.logger.Warn("Не удалось закешировать снимок состояния", zap.Error(cacheErr))
		}
	}
	return result, nil
}

func (s *RecoveryService) GetSystemHealth(ctx context.Context) (*dto.SystemHealthDTO, error) {
	if raw, err := s.cache.Get(ctx, constants.CacheKeyHealthSnapshot); err == nil {
		var cached dto.SystemHealthDTO
		if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
			return &cached, nil
		}
	}
	return s.CollectHealthSnapshot(ctx)
}

func (s *RecoveryService) classify(errors24h, stuck, discrepancies int) string {
	if errors24h >= s.cfg.ErrorsCritical || stuck >= s.cfg.StuckCritical {
		return constants.SystemCritical
	}
	if errors24h >= s.cfg.ErrorsDegraded || stuck >= s.cfg.StuckDegraded || discrepancies > 0 {
		return constants.SystemDegraded
	}
	return constants.SystemHealthy
}

// StartSweep периодически собирает снимок состояния и сверяет склад.
func (s *RecoveryService) StartSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.CollectHealthSnapshot(ctx); err != nil {
					s.logger.Error("Сбой сбора снимка состояния", zap.Error(err))
				}
				if err := s.ReconcileInventory(ctx, 0); err != nil {
					s.logger.Error("Сбой сверки склада", zap.Error(err))
				}
			}
		}
	}()
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
