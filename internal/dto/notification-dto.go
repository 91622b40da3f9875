package dto

import (
	"github.com/aarondl/null/v8"
)

// InboxFilterDTO - фильтры входящих роли. Null-поля означают "без фильтра".
type InboxFilterDTO struct {
	WorkflowType null.String `json:"workflow_type" query:"workflow_type"`
	Priority     null.String `json:"priority" query:"priority"`
	Unread       null.Bool   `json:"unread" query:"unread"`
}

// InboxItemDTO - одна строка входящих: уведомление + срез заявки.
type InboxItemDTO struct {
	NotificationID int64   `json:"notification_id"`
	RequestID      string  `json:"request_id"`
	WorkflowType   string  `json:"workflow_type"`
	Priority       string  `json:"priority"`
	Status         string  `json:"status"`
	Description    string  `json:"description"`
	IsHandled      bool    `json:"is_handled"`
	HandledAt      *string `json:"handled_at,omitempty"`
	CreatedAt      string  `json:"created_at"`
}
