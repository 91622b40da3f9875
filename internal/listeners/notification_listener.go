package listeners

import (
	"context"
	"fmt"

	"request-workflow/internal/events"
	"request-workflow/internal/services"
	"request-workflow/pkg/eventbus"

	"go.uber.org/zap"
)

// NotificationListener доставляет уведомления после коммита транзакции:
// движок публикует событие, слушатель отправляет сообщения получателям.
// Сбой доставки уходит в очередь повторов внутри сервиса доставки.
type NotificationListener struct {
	delivery services.NotificationDeliveryServiceInterface
	logger   *zap.Logger
}

func NewNotificationListener(delivery services.NotificationDeliveryServiceInterface, logger *zap.Logger) *NotificationListener {
	return &NotificationListener{delivery: delivery, logger: logger}
}

// Register подписывает слушателя на события движка.
func (l *NotificationListener) Register(bus *eventbus.Bus) {
	bus.Subscribe(events.RequestCreatedEventName, l.handleCreated)
	bus.Subscribe(events.RequestTransitionedEventName, l.handleTransitioned)
}

func (l *NotificationListener) handleCreated(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(events.RequestCreatedEvent)
	if !ok {
		return fmt.Errorf("неожиданный тип события %T", event)
	}
	l.logger.Debug("Доставка уведомления о новой заявке",
		zap.String("request_id", e.RequestID),
		zap.String("recipient_role", e.RecipientRole))
	return l.delivery.Deliver(ctx, e.NotificationID)
}

func (l *NotificationListener) handleTransitioned(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(events.RequestTransitionedEvent)
	if !ok {
		return fmt.Errorf("неожиданный тип события %T", event)
	}
	// Переходы без нового владельца (финальные и внутри одной роли)
	// уведомлений не порождают.
	if e.NotificationID == 0 {
		return nil
	}
	l.logger.Debug("Доставка уведомления о переходе",
		zap.String("request_id", e.RequestID),
		zap.String("action", e.Action),
		zap.String("recipient_role", e.RecipientRole))
	return l.delivery.Deliver(ctx, e.NotificationID)
}
