package entities

import "time"

// PendingNotification - сигнал "роль X должна действовать по заявке Y".
type PendingNotification struct {
	ID              int64      `json:"id" db:"id"`
	RecipientRole   string     `json:"recipient_role" db:"recipient_role"`
	RecipientUserID *uint64    `json:"recipient_user_id" db:"recipient_user_id"`
	RequestID       string     `json:"request_id" db:"request_id"`
	WorkflowType    string     `json:"workflow_type" db:"workflow_type"`
	IsHandled       bool       `json:"is_handled" db:"is_handled"`
	HandledAt       *time.Time `json:"handled_at" db:"handled_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// NotificationRetry - строка очереди повторной доставки с backoff.
type NotificationRetry struct {
	ID             int64     `json:"id" db:"id"`
	NotificationID int64     `json:"notification_id" db:"notification_id"`
	RetryCount     int       `json:"retry_count" db:"retry_count"`
	NextRetryAt    time.Time `json:"next_retry_at" db:"next_retry_at"`
	LastError      string    `json:"last_error" db:"last_error"`
	Status         string    `json:"status" db:"status"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
