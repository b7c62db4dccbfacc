package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/sla-engine/internal/api/http"
	"github.com/spec-kit/sla-engine/internal/api/http/handlers"
	"github.com/spec-kit/sla-engine/internal/auth"
	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/persistence"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/service"
	"github.com/spec-kit/sla-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	departmentRepo := repository.NewDepartmentRepository(pool)
	policyRepo := repository.NewPolicyRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	snapshotRepo := repository.NewSnapshotRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	departmentService := service.NewDepartmentService(departmentRepo)
	policyService := service.NewPolicyService(service.PolicyDependencies{
		PolicyRepo:     policyRepo,
		DepartmentRepo: departmentRepo,
		Cache:          redis,
		Dispatcher:     dispatcher,
		Logger:         logger,
	})
	complianceService := service.NewComplianceService(service.ComplianceDependencies{
		SnapshotRepo: snapshotRepo,
		Policies:     policyService,
		Dispatcher:   dispatcher,
		Logger:       logger,
	})
	lifecycleService := service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo:     ticketRepo,
		DepartmentRepo: departmentRepo,
		Policies:       policyService,
		Compliance:     complianceService,
		Dispatcher:     dispatcher,
		Logger:         logger,
	})
	escalationService := service.NewEscalationService(service.EscalationDependencies{
		TicketRepo: ticketRepo,
		Policies:   policyService,
		Dispatcher: dispatcher,
		Cache:      redis,
		Metrics:    metrics,
		Logger:     logger,
		Workers:    cfg.Sweep.Workers,
	})
	notificationService := service.NewNotificationService(cfg.Webhook, dispatcher, logger)

	escalationService.RegisterHandlers()
	notificationService.RegisterHandlers()

	sweepWorker := worker.NewSweepWorker(escalationService, cfg.Sweep, logger)
	if err := sweepWorker.Start(); err != nil {
		logger.Fatal("failed to start sweep worker", zap.Error(err))
	}
	defer sweepWorker.Stop()

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret)
	authMiddleware := auth.NewAuthMiddleware(tokenManager)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Admin:          handlers.NewAdminHandler(departmentService, policyService, escalationService),
		TicketEvents:   handlers.NewTicketEventsHandler(lifecycleService),
		Queries:        handlers.NewSLAQueriesHandler(lifecycleService, escalationService),
		Reports:        handlers.NewReportsHandler(complianceService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
