package dto

// SystemHealthDTO - ответ GET /api/system/health.
type SystemHealthDTO struct {
	ActiveRequests         int    `json:"active_requests"`
	PendingNotifications   int    `json:"pending_notifications"`
	Errors24h              int    `json:"errors_24h"`
	InventoryDiscrepancies int    `json:"inventory_discrepancies"`
	StuckWorkflows         int    `json:"stuck_workflows"`
	Status                 string `json:"status"`
	CollectedAt            string `json:"collected_at"`
}
