package workflow

import (
	"fmt"
	"sort"

	"request-workflow/pkg/constants"
)

// Rule - одна разрешенная ветка перехода: действие роли ведет к целевой роли
// и статусу. Пустой TargetRole означает финальный переход (заявка закрывается).
// TargetRole, равный исходной роли, - это подтверждение без смены владельца
// (уведомление новой роли не создается, но переход логируется для аудита).
type Rule struct {
	Action         string
	TargetRole     string
	TargetStatus   string
	RequiredFields []string
}

// CompletionRule - действие, допустимое только после закрытия заявки
// (например, оценка сервиса клиентом).
type CompletionRule struct {
	Action         string
	RequiredFields []string
}

// Definition - полная таблица маршрутизации одного типа workflow.
type Definition struct {
	InitialRole       string
	Transitions       map[string][]Rule
	CompletionActions []CompletionRule
}

// Registry - статический, read-only справочник маршрутов по типам workflow.
// Таблицы объявлены данными и валидируются на старте: неизвестная роль или
// цель перехода - ошибка запуска, а не KeyError во время работы.
type Registry struct {
	definitions map[constants.WorkflowType]Definition
}

func NewRegistry() (*Registry, error) {
	r := &Registry{definitions: buildDefinitions()}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func buildDefinitions() map[constants.WorkflowType]Definition {
	rate := CompletionRule{
		Action:         constants.ActionRateService,
		RequiredFields: []string{"rating"},
	}

	return map[constants.WorkflowType]Definition{
		constants.WorkflowConnectionRequest: {
			InitialRole: constants.RoleManager,
			Transitions: map[string][]Rule{
				constants.RoleManager: {
					{Action: constants.ActionAssignToJuniorManager, TargetRole: constants.RoleJuniorManager, TargetStatus: constants.StatusInProgress},
					{Action: constants.ActionPutOnHold, TargetRole: constants.RoleManager, TargetStatus: constants.StatusOnHold},
					{Action: constants.ActionResume, TargetRole: constants.RoleManager, TargetStatus: constants.StatusInProgress},
					{Action: constants.ActionCancelRequest, TargetStatus: constants.StatusCancelled},
				},
				constants.RoleJuniorManager: {
					{Action: constants.ActionForwardToController, TargetRole: constants.RoleController, TargetStatus: constants.StatusInProgress},
					{Action: constants.ActionReturnToManager, TargetRole: constants.RoleManager, TargetStatus: constants.StatusInProgress},
				},
				constants.RoleController: {
					{Action: constants.ActionAssignToTechnician, TargetRole: constants.RoleTechnician, TargetStatus: constants.StatusInProgress, RequiredFields: []string{"technician_id"}},
					{Action: constants.ActionCancelRequest, TargetStatus: constants.StatusCancelled},
				},
				constants.RoleTechnician: {
					{Action: constants.ActionStartWork, TargetRole: constants.RoleTechnician, TargetStatus: constants.StatusInProgress},
					{Action: constants.ActionRequestEquipment, TargetRole: constants.RoleWarehouse, TargetStatus: constants.StatusInProgress, RequiredFields: []string{"materials"}},
					{Action: constants.ActionCompleteWork, TargetStatus: constants.StatusCompleted},
				},
				constants.RoleWarehouse: {
					{Action: constants.ActionIssueEquipment, TargetRole: constants.RoleTechnician, TargetStatus: constants.StatusInProgress, RequiredFields: []string{"materials"}},
				},
			},
			CompletionActions: []CompletionRule{rate},
		},

		constants.WorkflowTechnicalService: {
			InitialRole: constants.RoleController,
			Transitions: map[string][]Rule{
				constants.RoleController: {
					{Action: constants.ActionAssignToTechnician, TargetRole: constants.RoleTechnician, TargetStatus: constants.StatusInProgress, RequiredFields: []string{"technician_id"}},
					{Action: constants.ActionCancelRequest, TargetStatus: constants.StatusCancelled},
				},
				constants.RoleTechnician: {
					{Action: constants.ActionStartWork, TargetRole: constants.RoleTechnician, TargetStatus: constants.StatusInProgress},
					{Action: constants.ActionRequestEquipment, TargetRole: constants.RoleWarehouse, TargetStatus: constants.StatusInProgress, RequiredFields: []string{"materials"}},
					{Action: constants.ActionCompleteWork, TargetStatus: constants.StatusCompleted},
				},
				constants.RoleWarehouse: {
					{Action: constants.ActionIssueEquipment, TargetRole: constants.RoleTechnician, TargetStatus: constants.StatusInProgress, RequiredFields: []string{"materials"}},
				},
			},
			CompletionActions: []CompletionRule{rate},
		},

		constants.WorkflowCallCenterDirect: {
			InitialRole: constants.RoleCallCenter,
			Transitions: map[string][]Rule{
				constants.RoleCallCenter: {
					{Action: constants.ActionResolveDirectly, TargetStatus: constants.StatusCompleted},
					{Action: constants.ActionEscalateToController, TargetRole: constants.RoleController, TargetStatus: constants.StatusInProgress},
					{Action: constants.ActionCancelRequest, TargetStatus: constants.StatusCancelled},
				},
				constants.RoleController: {
					{Action: constants.ActionAssignToTechnician, TargetRole: constants.RoleTechnician, TargetStatus: constants.StatusInProgress, RequiredFields: []string{"technician_id"}},
					{Action: constants.ActionCancelRequest, TargetStatus: constants.StatusCancelled},
				},
				constants.RoleTechnician: {
					{Action: constants.ActionStartWork, TargetRole: constants.RoleTechnician, TargetStatus: constants.StatusInProgress},
					{Action: constants.ActionCompleteWork, TargetStatus: constants.StatusCompleted},
				},
			},
			CompletionActions: []CompletionRule{rate},
		},
	}
}

// validate проверяет согласованность таблиц на старте процесса.
func (r *Registry) validate() error {
	for wt, def := range r.definitions {
		if !constants.IsStaffRole(def.InitialRole) {
			return fmt.Errorf("workflow %q: начальная роль %q не является ролью сотрудника", wt, def.InitialRole)
		}
		if _, ok := def.Transitions[def.InitialRole]; !ok {
			return fmt.Errorf("workflow %q: для начальной роли %q не определено ни одного перехода", wt, def.InitialRole)
		}
		for role, rules := range def.Transitions {
			if !constants.IsStaffRole(role) {
				return fmt.Errorf("workflow %q: неизвестная роль %q в таблице переходов", wt, role)
			}
			seen := make(map[string]bool, len(rules))
			for _, rule := range rules {
				if rule.Action == "" {
					return fmt.Errorf("workflow %q: пустое действие у роли %q", wt, role)
				}
				if seen[rule.Action] {
					return fmt.Errorf("workflow %q: действие %q объявлено дважды для роли %q", wt, rule.Action, role)
				}
				seen[rule.Action] = true
				if rule.TargetRole != "" && !constants.IsStaffRole(rule.TargetRole) {
					return fmt.Errorf("workflow %q: действие %q ведет к неизвестной роли %q", wt, rule.Action, rule.TargetRole)
				}
				if rule.TargetRole == "" && !constants.IsTerminalStatus(rule.TargetStatus) {
					return fmt.Errorf("workflow %q: действие %q без целевой роли должно вести в финальный статус", wt, rule.Action)
				}
				// У перехода к другой роли должна быть таблица для этой роли,
				// иначе заявка застрянет сразу после перехода.
				if rule.TargetRole != "" && rule.TargetRole != role {
					if _, ok := def.Transitions[rule.TargetRole]; !ok {
						return fmt.Errorf("workflow %q: целевая роль %q действия %q не имеет собственных переходов", wt, rule.TargetRole, rule.Action)
					}
				}
			}
		}
	}
	return nil
}

// Definition возвращает таблицу маршрутизации типа workflow.
func (r *Registry) Definition(workflowType string) (Definition, bool) {
	def, ok := r.definitions[constants.WorkflowType(workflowType)]
	return def, ok
}

// InitialRole - роль, назначаемая заявке при создании.
func (r *Registry) InitialRole(workflowType string) (string, bool) {
	def, ok := r.Definition(workflowType)
	if !ok {
		return "", false
	}
	return def.InitialRole, true
}

// LegalActions - чистая и тотальная функция: для любой известной пары
// (workflow_type, role) возвращает набор действий; пустой набор означает,
// что из этой роли нет прямых переходов.
func (r *Registry) LegalActions(workflowType, role string) []string {
	def, ok := r.Definition(workflowType)
	if !ok {
		return []string{}
	}
	rules := def.Transitions[role]
	actions := make([]string, 0, len(rules))
	for _, rule := range rules {
		actions = append(actions, rule.Action)
	}
	sort.Strings(actions)
	return actions
}

// FindRule ищет правило для конкретного действия роли.
func (r *Registry) FindRule(workflowType, role, action string) (Rule, bool) {
	def, ok := r.Definition(workflowType)
	if !ok {
		return Rule{}, false
	}
	for _, rule := range def.Transitions[role] {
		if rule.Action == action {
			return rule, true
		}
	}
	return Rule{}, false
}

// CompletionRule ищет действие, допустимое только на закрытой заявке.
func (r *Registry) CompletionRule(workflowType, action string) (CompletionRule, bool) {
	def, ok := r.Definition(workflowType)
	if !ok {
		return CompletionRule{}, false
	}
	for _, cr := range def.CompletionActions {
		if cr.Action == action {
			return cr, true
		}
	}
	return CompletionRule{}, false
}

// TransferOptions - роли, в которые заявка может уйти из текущей роли.
func (r *Registry) TransferOptions(workflowType, role string) []string {
	def, ok := r.Definition(workflowType)
	if !ok {
		return []string{}
	}
	seen := make(map[string]bool)
	options := make([]string, 0)
	for _, rule := range def.Transitions[role] {
		if rule.TargetRole == "" || rule.TargetRole == role || seen[rule.TargetRole] {
			continue
		}
		seen[rule.TargetRole] = true
		options = append(options, rule.TargetRole)
	}
	sort.Strings(options)
	return options
}

// Roles - все роли, определенные для типа workflow.
func (r *Registry) Roles(workflowType string) []string {
	def, ok := r.Definition(workflowType)
	if !ok {
		return []string{}
	}
	roles := make([]string, 0, len(def.Transitions))
	for role := range def.Transitions {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}
