package controllers

import (
	"net/http"
	"strconv"

	"request-workflow/internal/dto"
	"request-workflow/internal/services"
	apperrors "request-workflow/pkg/errors"
	"request-workflow/pkg/utils"

	"github.com/aarondl/null/v8"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type InboxController struct {
	engine services.WorkflowEngineServiceInterface
	logger *zap.Logger
}

func NewInboxController(engine services.WorkflowEngineServiceInterface, logger *zap.Logger) *InboxController {
	return &InboxController{engine: engine, logger: logger}
}

func (c *InboxController) GetRoleInbox(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	role := ctx.Param("role")

	limit, offset, page := utils.ParsePaginationParams(ctx.Request().URL.Query())
	filter := parseInboxFilter(ctx)

	res, err := c.engine.GetRoleInbox(reqCtx, role, filter, limit, offset, page)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Входящие роли успешно получены", http.StatusOK)
}

func (c *InboxController) MarkHandled(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	actorID, err := utils.GetActorIDFromCtx(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	notificationID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		return utils.ErrorResponse(ctx,
			apperrors.NewHttpError(http.StatusBadRequest, "Неверный ID уведомления", err,
				map[string]interface{}{"param": ctx.Param("id")}),
			c.logger)
	}

	changed, err := c.engine.MarkNotificationHandled(reqCtx, notificationID, actorID)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	message := "Уведомление отмечено обработанным"
	if !changed {
		message = "Уведомление уже было обработано"
	}
	return utils.SuccessResponse(ctx, map[string]bool{"changed": changed}, message, http.StatusOK)
}

func parseInboxFilter(ctx echo.Context) dto.InboxFilterDTO {
	var filter dto.InboxFilterDTO
	if v := ctx.QueryParam("workflow_type"); v != "" {
		filter.WorkflowType = null.StringFrom(v)
	}
	if v := ctx.QueryParam("priority"); v != "" {
		filter.Priority = null.StringFrom(v)
	}
	if v := ctx.QueryParam("unread"); v != "" {
		if unread, err := strconv.ParseBool(v); err == nil {
			filter.Unread = null.BoolFrom(unread)
		}
	}
	return filter
}
