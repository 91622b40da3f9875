package errors

import "fmt"

var (
	// JWT и токены
	ErrInvalidSigningMethod = fmt.Errorf("неверный метод подписи токена")
	ErrInvalidToken         = fmt.Errorf("недопустимый токен")
	ErrTokenExpired         = fmt.Errorf("срок действия токена истёк")

	// Авторизация
	ErrEmptyAuthHeader   = fmt.Errorf("заголовок авторизации отсутствует")
	ErrInvalidAuthHeader = fmt.Errorf("неверный формат заголовка авторизации")
	ErrUnauthorized      = fmt.Errorf("неавторизован")
	ErrForbidden         = fmt.Errorf("доступ запрещён")

	// Контекст
	ErrActorNotFoundInContext = fmt.Errorf("ID актора не найден в контексте запроса")

	// Общие
	ErrNotFound   = fmt.Errorf("запись не найдена")
	ErrBadRequest = fmt.Errorf("неверный запрос")
)

// ValidationError - синхронно отклоняемая ошибка входных данных. Не ретраится.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("ошибка валидации (%s): %s", e.Field, e.Message)
	}
	return fmt.Sprintf("ошибка валидации: %s", e.Message)
}

func NewValidationError(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IllegalTransitionError - действие не разрешено таблицей маршрутизации
// для текущей пары (workflow_type, role_current).
type IllegalTransitionError struct {
	WorkflowType string
	Role         string
	Action       string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("недопустимый переход: действие %q не разрешено для роли %q (workflow %q)",
		e.Action, e.Role, e.WorkflowType)
}

// PermissionDeniedError - отказ контроля доступа. Причина пишется в access_control_log.
type PermissionDeniedError struct {
	Reason string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("доступ запрещён: %s", e.Reason)
}

// InvalidStateError - попытка действия над несуществующей или закрытой заявкой.
type InvalidStateError struct {
	RequestID string
	Status    string
}

func (e *InvalidStateError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("заявка %s не найдена", e.RequestID)
	}
	return fmt.Sprintf("заявка %s находится в финальном статусе %q", e.RequestID, e.Status)
}

// HttpError - ошибка транспортного уровня с HTTP-кодом и контекстом для логов.
type HttpError struct {
	Code    int
	Message string
	Err     error
	Context map[string]interface{}
}

func (e *HttpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *HttpError) Unwrap() error {
	return e.Err
}

func NewHttpError(code int, message string, err error, context map[string]interface{}) error {
	return &HttpError{Code: code, Message: message, Err: err, Context: context}
}
