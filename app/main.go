package main

import (
	"context"
	"net/http"

	"request-workflow/internal/routes"
	"request-workflow/internal/workflow"
	"request-workflow/pkg/config"
	"request-workflow/pkg/database/postgresql"
	apperrors "request-workflow/pkg/errors"
	"request-workflow/pkg/eventbus"
	applogger "request-workflow/pkg/logger"
	"request-workflow/pkg/service"
	"request-workflow/pkg/telegram"
	"request-workflow/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	e := echo.New()
	logger := applogger.NewLogger()
	cfg := config.New()

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisableStackAll: true,
		StackSize:       1 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("Паника при обработке запроса",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Error(err),
				zap.String("stack", string(stack)),
			)
			if !c.Response().Committed {
				httpErr := apperrors.NewHttpError(http.StatusInternalServerError, "Внутренняя ошибка сервера", err, nil)
				utils.ErrorResponse(c, httpErr, logger)
			}
			return err
		},
	}))

	e.Validator = utils.NewValidator(validator.New())

	// Справочник маршрутов проверяется до любых подключений: несогласованная
	// таблица переходов - ошибка запуска, а не ошибка времени работы.
	registry, err := workflow.NewRegistry()
	if err != nil {
		logger.Fatal("Несогласованный справочник workflow", zap.Error(err))
	}

	if err := postgresql.RunMigrations(cfg.Postgres.DSN, "migrations"); err != nil {
		logger.Fatal("Ошибка применения миграций", zap.Error(err))
	}

	dbConn := postgresql.ConnectDB(cfg.Postgres.DSN, cfg.Postgres.StatementTimeout)
	defer dbConn.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Fatal("не удалось подключиться к Redis", zap.Error(err), zap.String("address", cfg.Redis.Address))
	}

	jwtSvc := service.NewJWTService(cfg.JWT.SecretKey, cfg.JWT.AccessTokenTTL)
	tgSvc := telegram.NewService(cfg.Telegram.BotToken)
	bus := eventbus.New(logger)

	background := routes.InitRouter(e, dbConn, redisClient, jwtSvc, tgSvc, bus, registry, cfg, logger)

	sweepCtx, cancelSweeps := context.WithCancel(context.Background())
	defer cancelSweeps()
	background.Delivery.StartSweep(sweepCtx)
	background.Recovery.StartSweep(sweepCtx)

	logger.Info("🚀 Сервер запущен", zap.String("port", cfg.Server.Port))
	if err := e.Start(":" + cfg.Server.Port); err != nil {
		logger.Fatal("Ошибка запуска сервера", zap.Error(err))
	}
}
