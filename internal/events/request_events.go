package events

const (
	RequestCreatedEventName      = "request.created"
	RequestTransitionedEventName = "request.transitioned"
)

// RequestCreatedEvent публикуется после коммита транзакции создания заявки.
type RequestCreatedEvent struct {
	RequestID      string
	WorkflowType   string
	Priority       string
	NotificationID int64
	RecipientRole  string
}

func (e RequestCreatedEvent) Name() string {
	return RequestCreatedEventName
}

// RequestTransitionedEvent публикуется после коммита перехода.
// NotificationID равен нулю для переходов без смены владельца и финальных.
type RequestTransitionedEvent struct {
	RequestID      string
	WorkflowType   string
	Priority       string
	Action         string
	FromRole       string
	ToRole         string
	NewStatus      string
	NotificationID int64
	RecipientRole  string
}

func (e RequestTransitionedEvent) Name() string {
	return RequestTransitionedEventName
}
