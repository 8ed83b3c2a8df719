package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/antonbillionaire/staffix/internal/api/router"
	"github.com/antonbillionaire/staffix/internal/app/bootstrap"
	"github.com/antonbillionaire/staffix/internal/automation"
	appconfig "github.com/antonbillionaire/staffix/internal/config"
	"github.com/antonbillionaire/staffix/internal/conversation"
	"github.com/antonbillionaire/staffix/internal/http/handlers"
	"github.com/antonbillionaire/staffix/pkg/logging"
)

func main() {
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting staffix API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	metricsHandler, reg := setupMetrics()

	core, err := bootstrap.BuildCore(ctx, cfg, reg, logger)
	if err != nil {
		logger.Error("failed to initialize core", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	service, err := bootstrap.BuildConversationService(ctx, cfg, core, logger)
	if err != nil {
		logger.Error("failed to initialize conversation service", "error", err)
		os.Exit(1)
	}
	scheduler, err := bootstrap.BuildScheduler(cfg, core, logger)
	if err != nil {
		logger.Error("failed to initialize automation", "error", err)
		os.Exit(1)
	}
	if cfg.CronSecret == "" {
		logger.Warn("CRON_SECRET not set; automation trigger will reject every call")
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin routes will reject every call")
	}
	if cfg.TelegramWebhookSecret == "" {
		logger.Warn("TELEGRAM_WEBHOOK_SECRET not set; telegram webhooks will reject every update")
	}
	registrar := bootstrap.BuildTelegramClient(cfg, bootstrap.TokenResolver(core.Store), logger)
	webhook := conversation.NewHandler(service, core.Sender, logger,
		conversation.WithWebhookMetrics(core.Metrics),
		conversation.WithUpdateDedup(conversation.NewRedisUpdateLog(core.Redis, 0)),
	)

	r := router.New(&router.Config{
		Logger:                logger,
		HealthHandler:         handlers.Health(healthChecks(core)),
		MetricsHandler:        metricsHandler,
		ConversationHandler:   webhook,
		AutomationHandler:     automation.NewHandler(scheduler, logger),
		AdminBookings:         handlers.NewAdminBookingsHandler(core.Engine, core.Businesses, logger),
		AdminCache:            handlers.NewAdminCacheHandler(core.Cache, logger),
		AdminWebhook:          handlers.NewAdminWebhookHandler(registrar, cfg.PublicBaseURL, cfg.TelegramWebhookSecret, logger),
		CronSecret:            cfg.CronSecret,
		AdminAuthSecret:       cfg.AdminJWTSecret,
		TelegramWebhookSecret: cfg.TelegramWebhookSecret,
		WebhookRatePerSecond:  cfg.WebhookRatePerSecond,
		WebhookBurst:          cfg.WebhookBurst,
	})

	// Webhook handling waits on the model, so writes get the LLM budget on top.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15*time.Second + time.Duration(cfg.AgentMaxRounds)*cfg.LLMTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics returns the /metrics handler and the registry the app
// instruments are registered on.
func setupMetrics() (http.Handler, prometheus.Registerer) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), reg
}

func healthChecks(core *bootstrap.Core) map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{}
	if core.Pool != nil {
		checks["postgres"] = handlers.PingFunc(core.Pool.Ping)
	}
	if core.Redis != nil {
		checks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return core.Redis.Ping(ctx).Err()
		})
	}
	return checks
}
