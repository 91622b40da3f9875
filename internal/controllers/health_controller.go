package controllers

import (
	"net/http"

	"request-workflow/internal/services"
	"request-workflow/pkg/utils"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type HealthController struct {
	recovery services.RecoveryServiceInterface
	logger   *zap.Logger
}

func NewHealthController(recovery services.RecoveryServiceInterface, logger *zap.Logger) *HealthController {
	return &HealthController{recovery: recovery, logger: logger}
}

// GetSystemHealth отдает снимок состояния системы. Свежий снимок берется
// из кеша, при промахе собирается заново и сохраняется в историю.
func (c *HealthController) GetSystemHealth(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	res, err := c.recovery.GetSystemHealth(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Состояние системы получено", http.StatusOK)
}
