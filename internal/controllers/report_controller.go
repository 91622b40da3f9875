package controllers

import (
	"fmt"
	"net/http"
	"time"

	"request-workflow/internal/dto"
	"request-workflow/internal/services"
	"request-workflow/pkg/utils"

	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type ReportController struct {
	recovery services.RecoveryServiceInterface
	logger   *zap.Logger
}

func NewReportController(recovery services.RecoveryServiceInterface, logger *zap.Logger) *ReportController {
	return &ReportController{recovery: recovery, logger: logger}
}

var stuckReportHeaders = []string{
	"ID заявки", "Тип workflow", "Текущая роль", "Статус", "Приоритет",
	"Зависла с", "Рекомендуемые действия",
}

// GetStuckReport выгружает зависшие заявки в XLSX для разбора администратором.
func (c *ReportController) GetStuckReport(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	if err := requireAdmin(ctx); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	stuck, err := c.recovery.GetStuckWorkflows(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return c.respondWithXLSX(ctx, stuck)
}

func stuckRowToSlice(item dto.StuckWorkflowDTO) []interface{} {
	role := ""
	if item.RoleCurrent != nil {
		role = *item.RoleCurrent
	}
	actions := ""
	for i, a := range item.RecommendedActions {
		if i > 0 {
			actions += ", "
		}
		actions += a
	}
	return []interface{}{
		item.RequestID, item.WorkflowType, role, item.Status, item.Priority,
		item.StuckSince, actions,
	}
}

func (c *ReportController) respondWithXLSX(ctx echo.Context, data []dto.StuckWorkflowDTO) error {
	f := excelize.NewFile()
	sheet := "Зависшие заявки"
	f.SetSheetName("Sheet1", sheet)
	f.SetSheetRow(sheet, "A1", &stuckReportHeaders)
	style, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	f.SetCellStyle(sheet, "A1", "G1", style)

	for i, item := range data {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := stuckRowToSlice(item)
		f.SetSheetRow(sheet, cell, &row)
	}
	f.SetColWidth(sheet, "A", "A", 38)
	f.SetColWidth(sheet, "B", "F", 22)
	f.SetColWidth(sheet, "G", "G", 60)

	fileName := fmt.Sprintf("stuck_workflows_%s.xlsx", time.Now().Format("2006-01-02"))
	ctx.Response().Header().Set(echo.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	ctx.Response().Header().Set("Content-Disposition", "attachment; filename="+fileName)
	ctx.Response().WriteHeader(http.StatusOK)
	return f.Write(ctx.Response().Writer)
}
