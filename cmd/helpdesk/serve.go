package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-bot/internal/api/http"
	"github.com/spec-kit/helpdesk-bot/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-bot/internal/auth"
	"github.com/spec-kit/helpdesk-bot/internal/bot"
	"github.com/spec-kit/helpdesk-bot/internal/events"
	"github.com/spec-kit/helpdesk-bot/internal/observability"
	"github.com/spec-kit/helpdesk-bot/internal/persistence"
	"github.com/spec-kit/helpdesk-bot/internal/repository"
	"github.com/spec-kit/helpdesk-bot/internal/service"
	"github.com/spec-kit/helpdesk-bot/internal/transport/telegram"
	"github.com/spec-kit/helpdesk-bot/internal/worker"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot, the scheduler and the ops API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	location, err := cfg.App.Location()
	if err != nil {
		return err
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	var store repository.TicketStore
	if pg.Configured() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}
		store = repository.NewPostgresTicketStore(pg.PoolHandle())
	} else {
		logger.Warn("POSTGRES_DSN not set, tickets are kept in memory")
		store = repository.NewMemoryTicketStore()
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()
	flags := persistence.NewFlagStore(redis, "helpdesk:")

	connector, err := telegram.New(cfg.Telegram, logger)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)

	tickets := service.NewTicketService(service.TicketDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
		Location:   location,
	})
	stats := service.NewStatsService(service.StatsDependencies{Store: store, Location: location})
	routing := service.NewRoutingEngine(service.RoutingDependencies{
		Transport: connector,
		Routing:   cfg.Routing,
		Stats:     stats,
		Logger:    logger,
		Metrics:   metrics,
	})
	worker.StartNotificationWorker(dispatcher, routing, logger)

	conversations := service.NewConversationStore(cfg.Workflow.ConversationIdle())
	wizard := service.NewWizardService(service.WizardDependencies{
		Conversations: conversations,
		Tickets:       tickets,
		Catalog:       cfg.Catalog,
		Logger:        logger,
	})
	remarks := service.NewRemarksCoordinator(service.RemarksDependencies{
		Tickets:   tickets,
		Routing:   routing,
		Transport: connector,
		Logger:    logger,
		MaxAge:    cfg.Workflow.RemarksMaxAge(),
	})
	handler := bot.NewHandler(bot.HandlerDependencies{
		Transport: connector,
		Wizard:    wizard,
		Tickets:   tickets,
		Remarks:   remarks,
		Routing:   routing,
		Staff:     cfg.Staff,
		Flags:     flags,
		Logger:    logger,
		Metrics:   metrics,
	})

	scheduler := worker.NewScheduler(worker.SchedulerDependencies{
		Conversations: conversations,
		Remarks:       remarks,
		Tickets:       tickets,
		Stats:         stats,
		Routing:       routing,
		Flags:         flags,
		Workflow:      cfg.Workflow,
		Scheduler:     cfg.Scheduler,
		Location:      location,
		Logger:        logger,
		Metrics:       metrics,
	})
	if cfg.Scheduler.Enabled {
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer scheduler.Stop()
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:        handlers.NewTicketsHandler(tickets),
		Stats:          handlers.NewStatsHandler(stats, metrics),
		AuthMiddleware: auth.NewMiddleware(auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes), cfg.Staff),
	})

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := connector.Start(ctx, handler.Handle); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("telegram connector: %w", err)
		}
	}()

	go func() {
		logger.Info("ops api listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			errCh <- fmt.Errorf("fiber listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("component failed, shutting down", zap.Error(err))
	}

	cancel()
	if shutdownErr := app.ShutdownWithTimeout(shutdownTimeout); shutdownErr != nil {
		logger.Warn("fiber shutdown", zap.Error(shutdownErr))
	}
	wg.Wait()
	return err
}
