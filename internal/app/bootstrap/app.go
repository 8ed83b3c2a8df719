package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/antonbillionaire/staffix/internal/automation"
	"github.com/antonbillionaire/staffix/internal/bookings"
	"github.com/antonbillionaire/staffix/internal/business"
	"github.com/antonbillionaire/staffix/internal/clients"
	appconfig "github.com/antonbillionaire/staffix/internal/config"
	"github.com/antonbillionaire/staffix/internal/conversation"
	"github.com/antonbillionaire/staffix/internal/messaging"
	"github.com/antonbillionaire/staffix/internal/messaging/compliance"
	"github.com/antonbillionaire/staffix/internal/notify"
	"github.com/antonbillionaire/staffix/internal/observability/metrics"
	"github.com/antonbillionaire/staffix/pkg/logging"
)

// Core holds the stores and senders shared by the API and the scheduler.
type Core struct {
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Store      *business.PostgresStore
	Businesses business.Store
	Engine     *bookings.Engine
	Clients    *clients.PostgresRepository
	Sender     messaging.Sender
	Metrics    *metrics.MessagingMetrics
	// Cache is the same store as Businesses, exposed for invalidation.
	Cache *business.CachedStore
}

// BuildCore connects Postgres and Redis and wires the shared stores. Redis is
// optional here; without it the business cache runs on the local tier only.
func BuildCore(ctx context.Context, cfg *appconfig.Config, reg prometheus.Registerer, logger *logging.Logger) (*Core, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	pool, err := BuildPostgresPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rdb := BuildRedisClient(ctx, cfg, logger, true)

	store := business.NewPostgresStore(pool)
	cached, err := business.NewCachedStore(store, rdb,
		business.WithCacheTTL(cfg.BusinessCacheLocalTTL, cfg.BusinessCacheRemoteTTL),
		business.WithCacheLogger(logger),
	)
	if err != nil {
		pool.Close()
		return nil, err
	}

	engine := bookings.NewEngine(cached, bookings.NewPostgresRepository(pool),
		bookings.WithSlotStep(time.Duration(cfg.SlotStepMinutes)*time.Minute),
		bookings.WithMaxRangeDays(cfg.MaxRangeDays),
		bookings.WithLogger(logger),
	)

	m := metrics.NewMessagingMetrics(reg)
	conversation.RegisterMetrics(reg)
	automation.RegisterMetrics(reg)

	return &Core{
		Pool:       pool,
		Redis:      rdb,
		Store:      store,
		Businesses: cached,
		Engine:     engine,
		Clients:    clients.NewPostgresRepository(pool),
		Sender:     BuildSender(cfg, TokenResolver(store), m, logger),
		Metrics:    m,
		Cache:      cached,
	}, nil
}

// Close releases the connections opened by BuildCore.
func (c *Core) Close() {
	if c == nil {
		return
	}
	if c.Cache != nil {
		c.Cache.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// BuildConversationService wires the assistant turn pipeline. Conversation
// history lives in Redis, so a missing Redis client is fatal here.
func BuildConversationService(ctx context.Context, cfg *appconfig.Config, core *Core, logger *logging.Logger) (*conversation.Service, error) {
	if cfg == nil || core == nil {
		return nil, fmt.Errorf("bootstrap: config and core are required")
	}
	if core.Redis == nil {
		return nil, fmt.Errorf("bootstrap: redis is required for conversation history")
	}
	if logger == nil {
		logger = logging.Default()
	}

	llm, model, err := BuildLLMClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	notifier := notify.NewService(BuildEmailSender(ctx, cfg, logger), core.Businesses, core.Clients, logger)

	dispatcher := conversation.NewDispatcher(llm, core.Engine,
		conversation.WithMaxRounds(cfg.AgentMaxRounds),
		conversation.WithLLMTimeout(cfg.LLMTimeout),
		conversation.WithBookingObserver(notifier),
		conversation.WithDispatcherLogger(logger),
		conversation.WithModelLabel(model),
	)
	return conversation.NewService(conversation.ServiceDeps{
		Businesses: core.Businesses,
		Usage:      core.Businesses,
		Clients:    core.Clients,
		Builder:    conversation.NewContextBuilder(core.Businesses, core.Clients, core.Engine, logger),
		Dispatcher: dispatcher,
		History:    conversation.NewHistoryStore(core.Redis, cfg.HistoryTTL, cfg.HistoryWindow),
		Logger:     logger,
	}), nil
}

// SchedulerConfig maps environment settings onto job thresholds.
func SchedulerConfig(cfg *appconfig.Config) (automation.Config, error) {
	window, err := compliance.ParseSendWindow(cfg.SendWindowStart, cfg.SendWindowEnd)
	if err != nil {
		return automation.Config{}, fmt.Errorf("bootstrap: send window: %w", err)
	}
	return automation.Config{
		ReminderLeads:        cfg.ReminderLeads,
		ReviewDelay:          cfg.ReviewDelay,
		ReviewLookback:       cfg.ReviewLookback,
		ReactivationIdle:     cfg.ReactivationIdle,
		ReactivationCooldown: cfg.ReactivationCooldown,
		BatchSize:            cfg.AutomationBatchSize,
		BatchDelay:           cfg.AutomationBatchDelay,
		Window:               window,
	}, nil
}

// BuildScheduler wires the automation jobs over the shared core.
func BuildScheduler(cfg *appconfig.Config, core *Core, logger *logging.Logger) (*automation.Scheduler, error) {
	if cfg == nil || core == nil {
		return nil, fmt.Errorf("bootstrap: config and core are required")
	}
	jobCfg, err := SchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	return automation.NewScheduler(automation.Deps{
		Businesses: core.Businesses,
		Bookings:   core.Engine,
		Clients:    core.Clients,
		Sender:     core.Sender,
		Runs:       automation.NewPostgresRunStore(core.Pool),
		Logger:     logger,
	}, jobCfg), nil
}
