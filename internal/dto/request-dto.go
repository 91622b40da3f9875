package dto

import (
	"github.com/aarondl/null/v8"
)

// CreateRequestDTO - входные данные создания заявки. ClientID обязателен,
// когда создатель - сотрудник (проверяет движок, а не валидатор).
type CreateRequestDTO struct {
	WorkflowType string                 `json:"workflow_type" validate:"required,oneof=connection_request technical_service call_center_direct"`
	ClientID     null.Uint64            `json:"client_id"`
	Priority     string                 `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Description  string                 `json:"description" validate:"required,max=4000"`
	Location     string                 `json:"location" validate:"max=500"`
	ContactInfo  map[string]interface{} `json:"contact_info"`
}

// TransitionDTO - входные данные перехода заявки.
type TransitionDTO struct {
	Action string                 `json:"action" validate:"required"`
	Data   map[string]interface{} `json:"data"`
}

type ShortUserDTO struct {
	ID  uint64 `json:"id"`
	Fio string `json:"fio"`
}

type RequestDTO struct {
	ID               string                 `json:"id"`
	WorkflowType     string                 `json:"workflow_type"`
	ClientID         uint64                 `json:"client_id"`
	RoleCurrent      *string                `json:"role_current"`
	Status           string                 `json:"status"`
	Priority         string                 `json:"priority"`
	Description      string                 `json:"description"`
	Location         string                 `json:"location"`
	ContactInfo      map[string]interface{} `json:"contact_info,omitempty"`
	StateData        map[string]interface{} `json:"state_data,omitempty"`
	EquipmentUsed    map[string]interface{} `json:"equipment_used,omitempty"`
	InventoryUpdated bool                   `json:"inventory_updated"`
	CompletionRating *int                   `json:"completion_rating,omitempty"`
	FeedbackComments *string                `json:"feedback_comments,omitempty"`
	CreatedByStaff   bool                   `json:"created_by_staff"`
	CreationSource   string                 `json:"creation_source"`
	CreatedAt        string                 `json:"created_at"`
	UpdatedAt        string                 `json:"updated_at"`
}

type TransitionRecordDTO struct {
	ID            int64                  `json:"id"`
	FromRole      *string                `json:"from_role"`
	ToRole        *string                `json:"to_role"`
	Action        string                 `json:"action"`
	ActorID       uint64                 `json:"actor_id"`
	CommentKey    string                 `json:"comment_key"`
	CommentParams map[string]interface{} `json:"comment_params,omitempty"`
	CreatedAt     string                 `json:"created_at"`
}
