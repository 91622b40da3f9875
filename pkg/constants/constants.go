package constants

//============== ТИПЫ WORKFLOW ==============

// WorkflowType определяет класс заявки и её таблицу маршрутизации.
type WorkflowType string

const (
	WorkflowConnectionRequest WorkflowType = "connection_request"
	WorkflowTechnicalService  WorkflowType = "technical_service"
	WorkflowCallCenterDirect  WorkflowType = "call_center_direct"
)

func (wt WorkflowType) String() string {
	return string(wt)
}

var AllWorkflowTypes = []WorkflowType{
	WorkflowConnectionRequest,
	WorkflowTechnicalService,
	WorkflowCallCenterDirect,
}

func IsKnownWorkflowType(code string) bool {
	for _, wt := range AllWorkflowTypes {
		if string(wt) == code {
			return true
		}
	}
	return false
}

//============== РОЛИ ==============

const (
	RoleClient        = "client"
	RoleAdmin         = "admin"
	RoleCallCenter    = "call_center"
	RoleManager       = "manager"
	RoleJuniorManager = "junior_manager"
	RoleController    = "controller"
	RoleTechnician    = "technician"
	RoleWarehouse     = "warehouse"
)

// StaffRoles - роли сотрудников, которые могут быть текущими владельцами заявки.
var StaffRoles = []string{
	RoleCallCenter,
	RoleManager,
	RoleJuniorManager,
	RoleController,
	RoleTechnician,
	RoleWarehouse,
}

func IsStaffRole(role string) bool {
	for _, r := range StaffRoles {
		if r == role {
			return true
		}
	}
	return false
}

//============== СТАТУСЫ ЗАЯВОК ==============

const (
	StatusCreated    = "created"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusOnHold     = "on_hold"
)

// Финальные статусы: из них нет прямых переходов, заявка закрыта.
var TerminalStatuses = []string{
	StatusCompleted,
	StatusCancelled,
}

func IsTerminalStatus(code string) bool {
	for _, s := range TerminalStatuses {
		if s == code {
			return true
		}
	}
	return false
}

//============== ПРИОРИТЕТЫ ==============

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

var AllPriorities = []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

//============== ДЕЙСТВИЯ ==============

const (
	// Служебное действие записи о создании заявки в истории переходов.
	ActionCreateRequest = "create_request"

	ActionAssignToJuniorManager = "assign_to_junior_manager"
	ActionForwardToController   = "forward_to_controller"
	ActionReturnToManager       = "return_to_manager"
	ActionAssignToTechnician    = "assign_to_technician"
	ActionStartWork             = "start_work"
	ActionRequestEquipment      = "request_equipment"
	ActionIssueEquipment        = "issue_equipment"
	ActionCompleteWork          = "complete_work"
	ActionPutOnHold             = "put_on_hold"
	ActionResume                = "resume"
	ActionCancelRequest         = "cancel_request"
	ActionResolveDirectly       = "resolve_directly"
	ActionEscalateToController  = "escalate_to_controller"
	ActionRateService           = "rate_service"
)

// Действия восстановления, доступные администратору для зависших заявок.
const (
	RecoveryForceTransition = "force_transition"
	RecoveryResetToPrevious = "reset_to_previous"
	RecoveryForceComplete   = "force_complete"
	RecoveryReassign        = "reassign"
)

//============== КАТЕГОРИИ И СЕРЬЕЗНОСТЬ ОШИБОК ==============

const (
	ErrorCategoryTransient    = "transient"
	ErrorCategoryData         = "data"
	ErrorCategoryBusiness     = "business"
	ErrorCategorySystem       = "system"
	ErrorCategoryInventory    = "inventory"
	ErrorCategoryNotification = "notification"
)

const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

//============== СТАТУСЫ ЖУРНАЛА ТРАНЗАКЦИЙ ==============

const (
	TxLogPending    = "pending"
	TxLogCompleted  = "completed"
	TxLogRolledBack = "rolled_back"
	TxLogFailed     = "failed"
)

//============== СТАТУСЫ ПОВТОРНОЙ ДОСТАВКИ ==============

const (
	RetryPending   = "pending"
	RetryCompleted = "completed"
	RetryFailed    = "failed"
)

//============== СТАТУС СИСТЕМЫ ==============

const (
	SystemHealthy  = "healthy"
	SystemDegraded = "degraded"
	SystemCritical = "critical"
)

//============== CACHE KEYS ==============

const (
	// Количество непрочитанных уведомлений роли.
	// Формат: inbox_total:<role> -> count
	CacheKeyInboxTotal = "inbox_total:%s"

	// Последний снимок состояния системы (JSON).
	CacheKeyHealthSnapshot = "system_health:latest"
)

//============== КЛЮЧИ КОНТЕКСТА ПЕРЕХОДА ==============

// Ключи, которые движок записывает в transition_data / state_data.
// Типом колонки контракт не проверяется, только кодом движка.
const (
	StateKeyStaffCreatorInfo     = "staff_creator_info"
	TransitionKeyOriginalCreator = "original_staff_creator_info"
	TransitionKeyTimestamp       = "workflow_transition_timestamp"
	TransitionKeyActorDiffers    = "actor_differs_from_creator"
)
