package dto

import (
	"github.com/aarondl/null/v8"
)

// RecoveryActionDTO - параметры административного восстановления.
// TargetRole обязателен для reassign и необязателен для force_transition
// (по умолчанию берется первая разрешенная ветка из справочника).
type RecoveryActionDTO struct {
	TargetRole null.String            `json:"target_role"`
	Comment    string                 `json:"comment" validate:"max=2000"`
	Data       map[string]interface{} `json:"data"`
}

type StuckWorkflowDTO struct {
	RequestID          string   `json:"request_id"`
	WorkflowType       string   `json:"workflow_type"`
	RoleCurrent        *string  `json:"role_current"`
	Status             string   `json:"status"`
	Priority           string   `json:"priority"`
	StuckSince         string   `json:"stuck_since"`
	RecommendedActions []string `json:"recommended_actions"`
}

type RecoveryResultDTO struct {
	RequestID string  `json:"request_id"`
	Action    string  `json:"action"`
	Success   bool    `json:"success"`
	NewRole   *string `json:"new_role"`
	NewStatus string  `json:"new_status"`
}
