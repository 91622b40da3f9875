package routes

import (
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"request-workflow/internal/controllers"
	"request-workflow/internal/listeners"
	"request-workflow/internal/repositories"
	"request-workflow/internal/services"
	"request-workflow/internal/workflow"
	"request-workflow/pkg/config"
	"request-workflow/pkg/eventbus"
	"request-workflow/pkg/middleware"
	"request-workflow/pkg/service"
	"request-workflow/pkg/telegram"
)

// Background - сервисы с фоновыми проходами, которые запускает main.
type Background struct {
	Delivery services.NotificationDeliveryServiceInterface
	Recovery services.RecoveryServiceInterface
}

func InitRouter(
	e *echo.Echo,
	dbConn *pgxpool.Pool,
	redisClient *redis.Client,
	jwtSvc service.JWTService,
	tgSvc telegram.ServiceInterface,
	bus *eventbus.Bus,
	registry *workflow.Registry,
	cfg *config.Config,
	logger *zap.Logger,
) *Background {
	logger.Info("InitRouter: Начало создания маршрутов")

	api := e.Group("/api")
	authMW := middleware.NewAuthMiddleware(jwtSvc, logger)
	txManager := repositories.NewTxManager(dbConn)

	// --- РЕПОЗИТОРИИ ---
	requestRepo := repositories.NewRequestRepository(dbConn)
	transitionRepo := repositories.NewTransitionRepository(dbConn)
	notificationRepo := repositories.NewNotificationRepository(dbConn)
	inventoryRepo := repositories.NewInventoryRepository(dbConn)
	errorRepo := repositories.NewErrorRepository(dbConn)
	txLogRepo := repositories.NewTransactionLogRepository(dbConn)
	accessLogRepo := repositories.NewAccessLogRepository(dbConn)
	recoveryRepo := repositories.NewRecoveryRepository(dbConn)
	userRepo := repositories.NewUserRepository(dbConn)
	cacheRepo := repositories.NewRedisCacheRepository(redisClient)

	// --- СЕРВИСЫ ---
	txState := services.NewTxStateManager(txManager, txLogRepo, logger)
	access := services.NewAccessControlService(userRepo, accessLogRepo, errorRepo, registry, logger)
	engine := services.NewWorkflowEngineService(
		txState, requestRepo, transitionRepo, notificationRepo, inventoryRepo,
		access, registry, cacheRepo, bus, logger)
	delivery := services.NewNotificationDeliveryService(
		notificationRepo, requestRepo, userRepo, errorRepo, tgSvc, cfg.Retry, logger)
	recovery := services.NewRecoveryService(
		txState, requestRepo, transitionRepo, notificationRepo, inventoryRepo,
		errorRepo, recoveryRepo, registry, cacheRepo, cfg.Recovery, logger)

	// --- СЛУШАТЕЛИ ---
	listeners.NewNotificationListener(delivery, logger).Register(bus)

	// --- КОНТРОЛЛЕРЫ ---
	requestCtrl := controllers.NewRequestController(engine, logger)
	inboxCtrl := controllers.NewInboxController(engine, logger)
	recoveryCtrl := controllers.NewRecoveryController(recovery, logger)
	healthCtrl := controllers.NewHealthController(recovery, logger)
	reportCtrl := controllers.NewReportController(recovery, logger)

	// --- МАРШРУТЫ ---
	api.POST("/requests", requestCtrl.CreateRequest, authMW.Auth)
	api.GET("/requests/:id", requestCtrl.FindRequest, authMW.Auth)
	api.GET("/requests/:id/history", requestCtrl.GetHistory, authMW.Auth)
	api.POST("/requests/:id/transition", requestCtrl.Transition, authMW.Auth)
	api.GET("/transfer-options", requestCtrl.GetTransferOptions, authMW.Auth)

	api.GET("/inbox/:role", inboxCtrl.GetRoleInbox, authMW.Auth)
	api.POST("/notifications/:id/handled", inboxCtrl.MarkHandled, authMW.Auth)

	api.GET("/system/health", healthCtrl.GetSystemHealth, authMW.Auth)
	api.GET("/recovery/stuck", recoveryCtrl.GetStuckWorkflows, authMW.Auth)
	api.POST("/recovery/:id/:action", recoveryCtrl.ExecuteAction, authMW.Auth)
	api.GET("/reports/stuck.xlsx", reportCtrl.GetStuckReport, authMW.Auth)

	logger.Info("InitRouter: Маршруты созданы")
	return &Background{Delivery: delivery, Recovery: recovery}
}
