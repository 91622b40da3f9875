package controllers

import (
	"net/http"

	"request-workflow/internal/dto"
	"request-workflow/internal/services"
	apperrors "request-workflow/pkg/errors"
	"request-workflow/pkg/utils"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type RequestController struct {
	engine services.WorkflowEngineServiceInterface
	logger *zap.Logger
}

func NewRequestController(engine services.WorkflowEngineServiceInterface, logger *zap.Logger) *RequestController {
	return &RequestController{engine: engine, logger: logger}
}

func (c *RequestController) CreateRequest(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	actorID, err := utils.GetActorIDFromCtx(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	actorRole, err := utils.GetActorRoleFromCtx(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	var payload dto.CreateRequestDTO
	if err := ctx.Bind(&payload); err != nil {
		return utils.ErrorResponse(ctx,
			apperrors.NewHttpError(http.StatusBadRequest, "Неверное тело запроса", err, nil),
			c.logger)
	}
	if err := ctx.Validate(&payload); err != nil {
		return utils.ErrorResponse(ctx,
			apperrors.NewHttpError(http.StatusBadRequest, "Ошибка валидации", err, nil),
			c.logger)
	}

	res, err := c.engine.CreateRequest(reqCtx, actorID, actorRole, payload)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Заявка успешно создана", http.StatusCreated)
}

func (c *RequestController) Transition(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	actorID, err := utils.GetActorIDFromCtx(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	requestID := ctx.Param("id")
	var payload dto.TransitionDTO
	if err := ctx.Bind(&payload); err != nil {
		return utils.ErrorResponse(ctx,
			apperrors.NewHttpError(http.StatusBadRequest, "Неверное тело запроса", err, nil),
			c.logger)
	}
	if err := ctx.Validate(&payload); err != nil {
		return utils.ErrorResponse(ctx,
			apperrors.NewHttpError(http.StatusBadRequest, "Ошибка валидации", err, nil),
			c.logger)
	}

	res, err := c.engine.Transition(reqCtx, actorID, requestID, payload)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Переход успешно выполнен", http.StatusOK)
}

func (c *RequestController) FindRequest(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	res, err := c.engine.GetRequest(reqCtx, ctx.Param("id"))
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Заявка успешно найдена", http.StatusOK)
}

func (c *RequestController) GetHistory(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	res, err := c.engine.GetRequestHistory(reqCtx, ctx.Param("id"))
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "История переходов успешно получена", http.StatusOK)
}

// GetTransferOptions возвращает роли, в которые заявка может уйти из текущего
// состояния. Для закрытой заявки список пуст.
func (c *RequestController) GetTransferOptions(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	requestID := ctx.QueryParam("request_id")
	if requestID == "" {
		return utils.ErrorResponse(ctx,
			apperrors.NewHttpError(http.StatusBadRequest, "Параметр request_id обязателен", nil, nil),
			c.logger)
	}

	res, err := c.engine.GetTransferOptions(reqCtx, requestID)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Доступные цели перехода получены", http.StatusOK)
}
