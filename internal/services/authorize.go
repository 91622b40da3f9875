package services

import (
	"context"
	"fmt"

	"request-workflow/internal/entities"
	"request-workflow/internal/repositories"
	"request-workflow/internal/workflow"
	"request-workflow/pkg/constants"

	"go.uber.org/zap"
)

type AccessControlServiceInterface interface {
	// Authorize решает, может ли актор выполнить действие над заявкой.
	// Каждое решение (и разрешение, и отказ) пишется в access_control_log;
	// сбой логирования никогда не меняет само решение.
	Authorize(ctx context.Context, actorID uint64, action string, req *entities.ServiceRequest) (bool, string, error)
}

type AccessControlService struct {
	userRepo      repositories.UserRepositoryInterface
	accessLogRepo repositories.AccessLogRepositoryInterface
	errorRepo     repositories.ErrorRepositoryInterface
	registry      *workflow.Registry
	logger        *zap.Logger
}

func NewAccessControlService(
	userRepo repositories.UserRepositoryInterface,
	accessLogRepo repositories.AccessLogRepositoryInterface,
	errorRepo repositories.ErrorRepositoryInterface,
	registry *workflow.Registry,
	logger *zap.Logger,
) AccessControlServiceInterface {
	return &AccessControlService{
		userRepo:      userRepo,
		accessLogRepo: accessLogRepo,
		errorRepo:     errorRepo,
		registry:      registry,
		logger:        logger,
	}
}

func (s *AccessControlService) Authorize(ctx context.Context, actorID uint64, action string, req *entities.ServiceRequest) (bool, string, error) {
	actor, err := s.userRepo.FindByID(ctx, actorID)
	if err != nil {
		reason := fmt.Sprintf("актор %d не найден", actorID)
		s.appendLog(ctx, actorID, action, req.ID, false, reason)
		return false, reason, nil
	}

	granted, reason := s.decide(actor, action, req)
	s.appendLog(ctx, actorID, action, req.ID, granted, reason)
	return granted, reason, nil
}

func (s *AccessControlService) decide(actor *entities.User, action string, req *entities.ServiceRequest) (bool, string) {
	// Администратор - безусловное разрешение. Контекст staff-создателя
	// при этом сохраняется наравне с остальными (см. DESIGN.md).
	if actor.Role == constants.RoleAdmin {
		return true, "администратор"
	}

	if actor.Role == req.CurrentRole() && req.CurrentRole() != "" {
		return true, fmt.Sprintf("текущая ответственная роль %q", actor.Role)
	}

	// Клиент-владелец может выполнять завершающие действия (оценку)
	// только когда заявка дошла до финального статуса.
	if actor.ID == req.ClientID {
		if _, ok := s.registry.CompletionRule(req.WorkflowType, action); ok {
			if req.Status == constants.StatusCompleted {
				return true, "клиент-владелец, завершающее действие"
			}
			return false, "завершающее действие до закрытия заявки"
		}
		return false, "клиент не может выполнять действия персонала"
	}

	return false, fmt.Sprintf("роль актора %q не совпадает с ответственной ролью %q", actor.Role, req.CurrentRole())
}

// appendLog глотает собственные сбои: отказ журнала аудита не должен
// превращаться в отказ авторизации. Сбой фиксируется как системная ошибка.
func (s *AccessControlService) appendLog(ctx context.Context, actorID uint64, action, requestID string, granted bool, reason string) {
	err := s.accessLogRepo.Create(ctx, &entities.AccessControlLog{
		UserID:   actorID,
		Action:   action,
		Resource: requestID,
		Granted:  granted,
		Reason:   reason,
	})
	if err == nil {
		return
	}

	s.logger.Error("Не удалось записать журнал доступа", zap.Error(err),
		zap.Uint64("actor_id", actorID), zap.String("request_id", requestID))

	recErr := s.errorRepo.Create(ctx, &entities.ErrorRecord{
		Category: constants.ErrorCategorySystem,
		Severity: constants.SeverityMedium,
		Message:  "сбой записи журнала доступа",
		Context: map[string]interface{}{
			"actor_id":   actorID,
			"action":     action,
			"request_id": requestID,
			"error":      err.Error(),
		},
	})
	if recErr != nil {
		s.logger.Error("Не удалось записать ErrorRecord о сбое журнала доступа", zap.Error(recErr))
	}
}
