package utils

import (
	"errors"
	"net/http"

	apperrors "request-workflow/pkg/errors"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type HttpResponse struct {
	Status  bool        `json:"status"`
	Body    interface{} `json:"body,omitempty"`
	Message string      `json:"message"`
}

func SuccessResponse(ctx echo.Context, body interface{}, message string, code int) error {
	return ctx.JSON(code, &HttpResponse{
		Status:  true,
		Body:    body,
		Message: message,
	})
}

// ErrorResponse переводит ошибку движка в HTTP-ответ. Сам движок никогда не
// форматирует текст для пользователя: наружу уходит структурированный вид
// ошибки, локализация выполняется внешним слоем по коду.
func ErrorResponse(ctx echo.Context, err error, logger *zap.Logger) error {
	code := http.StatusInternalServerError
	kind := "internal_error"
	message := "внутренняя ошибка сервера"

	var validationErr *apperrors.ValidationError
	var illegalErr *apperrors.IllegalTransitionError
	var permErr *apperrors.PermissionDeniedError
	var stateErr *apperrors.InvalidStateError
	var httpErr *apperrors.HttpError

	switch {
	case errors.As(err, &validationErr):
		code, kind, message = http.StatusBadRequest, "validation_error", validationErr.Error()
	case errors.As(err, &illegalErr):
		code, kind, message = http.StatusConflict, "illegal_transition", illegalErr.Error()
	case errors.As(err, &permErr):
		code, kind, message = http.StatusForbidden, "permission_denied", permErr.Error()
	case errors.As(err, &stateErr):
		code, kind, message = http.StatusConflict, "invalid_state", stateErr.Error()
	case errors.As(err, &httpErr):
		code, kind, message = httpErr.Code, "http_error", httpErr.Message
		if httpErr.Err != nil {
			logger.Error("HTTP ошибка", zap.Int("code", code), zap.Error(httpErr.Err), zap.Any("context", httpErr.Context))
		}
	case errors.Is(err, apperrors.ErrNotFound):
		code, kind, message = http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, apperrors.ErrForbidden):
		code, kind, message = http.StatusForbidden, "forbidden", err.Error()
	case errors.Is(err, apperrors.ErrUnauthorized),
		errors.Is(err, apperrors.ErrEmptyAuthHeader),
		errors.Is(err, apperrors.ErrInvalidAuthHeader),
		errors.Is(err, apperrors.ErrTokenExpired),
		errors.Is(err, apperrors.ErrInvalidToken),
		errors.Is(err, apperrors.ErrActorNotFoundInContext):
		code, kind, message = http.StatusUnauthorized, "unauthorized", err.Error()
	default:
		logger.Error("Необработанная ошибка", zap.Error(err))
	}

	return ctx.JSON(code, &HttpResponse{
		Status:  false,
		Body:    map[string]string{"kind": kind},
		Message: message,
	})
}
