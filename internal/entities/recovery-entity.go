package entities

import "time"

// WorkflowRecoveryLog - запись административного восстановления заявки.
type WorkflowRecoveryLog struct {
	ID          int64                  `json:"id" db:"id"`
	RequestID   string                 `json:"request_id" db:"request_id"`
	Action      string                 `json:"action" db:"action"`
	StateBefore map[string]interface{} `json:"state_before" db:"state_before"`
	StateAfter  map[string]interface{} `json:"state_after" db:"state_after"`
	Success     bool                   `json:"success" db:"success"`
	PerformedBy uint64                 `json:"performed_by" db:"performed_by"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
}

// SystemHealthSnapshot - агрегат состояния системы за один проход.
type SystemHealthSnapshot struct {
	ID                     int64     `json:"id" db:"id"`
	ActiveRequests         int       `json:"active_requests" db:"active_requests"`
	PendingNotifications   int       `json:"pending_notifications" db:"pending_notifications"`
	Errors24h              int       `json:"errors_24h" db:"errors_24h"`
	InventoryDiscrepancies int       `json:"inventory_discrepancies" db:"inventory_discrepancies"`
	StuckWorkflows         int       `json:"stuck_workflows" db:"stuck_workflows"`
	SystemStatus           string    `json:"system_status" db:"system_status"`
	CreatedAt              time.Time `json:"created_at" db:"created_at"`
}
