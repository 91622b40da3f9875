package entities

import (
	"time"

	"request-workflow/pkg/types"
)

// ServiceRequest - заявка, движущаяся по цепочке ролей.
// RoleCurrent равен nil только в финальном статусе.
type ServiceRequest struct {
	ID           string                 `json:"id" db:"id"`
	WorkflowType string                 `json:"workflow_type" db:"workflow_type"`
	ClientID     uint64                 `json:"client_id" db:"client_id"`
	RoleCurrent  *string                `json:"role_current" db:"role_current"`
	Status       string                 `json:"status" db:"status"`
	Priority     string                 `json:"priority" db:"priority"`
	Description  string                 `json:"description" db:"description"`
	Location     string                 `json:"location" db:"location"`
	ContactInfo  map[string]interface{} `json:"contact_info" db:"contact_info"`
	StateData    map[string]interface{} `json:"state_data" db:"state_data"`

	EquipmentUsed    map[string]interface{} `json:"equipment_used" db:"equipment_used"`
	InventoryUpdated bool                   `json:"inventory_updated" db:"inventory_updated"`

	CompletionRating *int    `json:"completion_rating" db:"completion_rating"`
	FeedbackComments *string `json:"feedback_comments" db:"feedback_comments"`

	// Провенанс: заявка, созданная сотрудником от имени клиента.
	// Неизменяемо после создания.
	CreatedByStaff   bool    `json:"created_by_staff" db:"created_by_staff"`
	StaffCreatorID   *uint64 `json:"staff_creator_id" db:"staff_creator_id"`
	StaffCreatorRole *string `json:"staff_creator_role" db:"staff_creator_role"`
	CreationSource   string  `json:"creation_source" db:"creation_source"`

	types.BaseEntity
}

func (r *ServiceRequest) CurrentRole() string {
	if r.RoleCurrent == nil {
		return ""
	}
	return *r.RoleCurrent
}

// StuckWorkflow - заявка без переходов дольше порога, с рекомендациями.
type StuckWorkflow struct {
	Request            ServiceRequest `json:"request"`
	StuckSince         time.Time      `json:"stuck_since"`
	RecommendedActions []string       `json:"recommended_actions"`
}
