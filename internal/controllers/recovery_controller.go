package controllers

import (
	"net/http"

	"request-workflow/internal/dto"
	"request-workflow/internal/services"
	"request-workflow/pkg/constants"
	apperrors "request-workflow/pkg/errors"
	"request-workflow/pkg/utils"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RecoveryController - административные операции над зависшими заявками.
// Все маршруты доступны только роли admin.
type RecoveryController struct {
	recovery services.RecoveryServiceInterface
	logger   *zap.Logger
}

func NewRecoveryController(recovery services.RecoveryServiceInterface, logger *zap.Logger) *RecoveryController {
	return &RecoveryController{recovery: recovery, logger: logger}
}

func (c *RecoveryController) GetStuckWorkflows(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	if err := requireAdmin(ctx); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.recovery.GetStuckWorkflows(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Список зависших заявок получен", http.StatusOK)
}

func (c *RecoveryController) ExecuteAction(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	if err := requireAdmin(ctx); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	adminID, err := utils.GetActorIDFromCtx(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	requestID := ctx.Param("id")
	action := ctx.Param("action")

	var payload dto.RecoveryActionDTO
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

	res, err := c.recovery.ExecuteRecoveryAction(reqCtx, adminID, requestID, action, payload)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Восстановление успешно выполнено", http.StatusOK)
}

func requireAdmin(ctx echo.Context) error {
	role, err := utils.GetActorRoleFromCtx(ctx.Request().Context())
	if err != nil {
		return err
	}
	if role != constants.RoleAdmin {
		return &apperrors.PermissionDeniedError{Reason: "операция доступна только администратору"}
	}
	return nil
}
