package services

import (
	"context"
	"fmt"
	"time"

	"request-workflow/internal/entities"
	"request-workflow/internal/repositories"
	"request-workflow/pkg/config"
	"request-workflow/pkg/constants"
	"request-workflow/pkg/telegram"

	"go.uber.org/zap"
)

const retryBatchSize = 50

type NotificationDeliveryServiceInterface interface {
	// Deliver пытается доставить уведомление в Telegram всем сотрудникам
	// роли-получателя. Сбой доставки не теряется: уведомление встает
	// в очередь повторов с экспоненциальным backoff.
	Deliver(ctx context.Context, notificationID int64) error
	ProcessDueRetries(ctx context.Context) error
	StartSweep(ctx context.Context)
}

type NotificationDeliveryService struct {
	notificationRepo repositories.NotificationRepositoryInterface
	requestRepo      repositories.RequestRepositoryInterface
	userRepo         repositories.UserRepositoryInterface
	errorRepo        repositories.ErrorRepositoryInterface
	telegram         telegram.ServiceInterface
	cfg              config.RetryConfig
	logger           *zap.Logger
}

func NewNotificationDeliveryService(
	notificationRepo repositories.NotificationRepositoryInterface,
	requestRepo repositories.RequestRepositoryInterface,
	userRepo repositories.UserRepositoryInterface,
	errorRepo repositories.ErrorRepositoryInterface,
	tg telegram.ServiceInterface,
	cfg config.RetryConfig,
	logger *zap.Logger,
) NotificationDeliveryServiceInterface {
	return &NotificationDeliveryService{
		notificationRepo: notificationRepo,
		requestRepo:      requestRepo,
		userRepo:         userRepo,
		errorRepo:        errorRepo,
		telegram:         tg,
		cfg:              cfg,
		logger:           logger,
	}
}

func (s *NotificationDeliveryService) Deliver(ctx context.Context, notificationID int64) error {
	if err := s.attemptDelivery(ctx, notificationID); err != nil {
		s.logger.Warn("Доставка уведомления не удалась, постановка в очередь повторов",
			zap.Int64("notification_id", notificationID), zap.Error(err))
		return s.notificationRepo.UpsertRetry(ctx, notificationID, err.Error(), time.Now().Add(s.cfg.BaseDelay))
	}
	return nil
}

func (s *NotificationDeliveryService) attemptDelivery(ctx context.Context, notificationID int64) error {
	notification, err := s.notificationRepo.FindByID(ctx, notificationID)
	if err != nil {
		return err
	}
	if notification.IsHandled {
		return nil
	}

	req, err := s.requestRepo.FindByID(ctx, notification.RequestID)
	if err != nil {
		return err
	}

	recipients, err := s.userRepo.FindByRole(ctx, notification.RecipientRole)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("Новая заявка для роли %s\nТип: %s\nПриоритет: %s\nЗаявка: %s\n%s",
		notification.RecipientRole, req.WorkflowType, req.Priority, req.ID, req.Description)

	delivered := 0
	var lastErr error
	for _, user := range recipients {
		if user.TelegramChatID == nil {
			continue
		}
		if err := s.telegram.SendMessage(ctx, *user.TelegramChatID, text); err != nil {
			lastErr = err
			s.logger.Warn("Не удалось отправить сообщение в Telegram",
				zap.Uint64("user_id", user.ID), zap.Error(err))
			continue
		}
		delivered++
	}

	// Роль без привязанных чатов - не сбой доставки: уведомление останется
	// видимым во входящих роли.
	if delivered == 0 && lastErr != nil {
		return fmt.Errorf("ни одна доставка роли %q не удалась: %w", notification.RecipientRole, lastErr)
	}
	return nil
}

func (s *NotificationDeliveryService) ProcessDueRetries(ctx context.Context) error {
	retries, err := s.notificationRepo.DueRetries(ctx, time.Now(), retryBatchSize)
	if err != nil {
		return err
	}

	for _, retry := range retries {
		deliveryErr := s.attemptDelivery(ctx, retry.NotificationID)
		if deliveryErr == nil {
			if err := s.notificationRepo.FinishRetry(ctx, retry.ID, constants.RetryCompleted); err != nil {
				s.logger.Error("Не удалось закрыть успешный повтор", zap.Int64("retry_id", retry.ID), zap.Error(err))
			}
			continue
		}
		s.handleRetryFailure(ctx, retry, deliveryErr)
	}
	return nil
}

func (s *NotificationDeliveryService) handleRetryFailure(ctx context.Context, retry entities.NotificationRetry, deliveryErr error) {
	nextCount := retry.RetryCount + 1
	if nextCount >= s.cfg.MaxRetries {
		if err := s.notificationRepo.FinishRetry(ctx, retry.ID, constants.RetryFailed); err != nil {
			s.logger.Error("Не удалось пометить повтор исчерпанным", zap.Int64("retry_id", retry.ID), zap.Error(err))
		}
		recErr := s.errorRepo.Create(ctx, &entities.ErrorRecord{
			Category: constants.ErrorCategoryNotification,
			Severity: constants.SeverityHigh,
			Message:  "уведомление не доставлено после исчерпания повторов",
			Context: map[string]interface{}{
				"notification_id": retry.NotificationID,
				"retry_count":     nextCount,
				"last_error":      deliveryErr.Error(),
			},
			RetryCount: nextCount,
			MaxRetries: s.cfg.MaxRetries,
		})
		if recErr != nil {
			s.logger.Error("Не удалось записать ErrorRecord об исчерпании повторов", zap.Error(recErr))
		}
		s.logger.Error("Доставка уведомления окончательно провалена",
			zap.Int64("notification_id", retry.NotificationID), zap.Error(deliveryErr))
		return
	}

	delay := BackoffDelay(s.cfg.BaseDelay, s.cfg.MaxDelay, nextCount)
	if err := s.notificationRepo.RescheduleRetry(ctx, retry.ID, nextCount, time.Now().Add(delay), deliveryErr.Error()); err != nil {
		s.logger.Error("Не удалось перенести повтор", zap.Int64("retry_id", retry.ID), zap.Error(err))
	}
}

// StartSweep запускает периодическую обработку очереди повторов.
// Останавливается по отмене ctx.
func (s *NotificationDeliveryService) StartSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.ProcessDueRetries(ctx); err != nil {
					s.logger.Error("Сбой прохода очереди повторов", zap.Error(err))
				}
			}
		}
	}()
}

// BackoffDelay - экспоненциальная задержка base * 2^retryCount с потолком max.
func BackoffDelay(base, max time.Duration, retryCount int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
