package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/antonbillionaire/staffix/internal/app/bootstrap"
	"github.com/antonbillionaire/staffix/internal/automation"
	appconfig "github.com/antonbillionaire/staffix/internal/config"
	"github.com/antonbillionaire/staffix/pkg/logging"
)

// runTimeout bounds one automation pass so a stuck send cannot pile runs up.
const runTimeout = 10 * time.Minute

func main() {
	once := flag.Bool("once", false, "run the automation jobs once and exit")
	flag.Parse()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting staffix automation scheduler", "env", cfg.Env, "schedule", cfg.AutomationSchedule)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := bootstrap.BuildCore(ctx, cfg, prometheus.DefaultRegisterer, logger)
	if err != nil {
		logger.Error("failed to initialize core", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	scheduler, err := bootstrap.BuildScheduler(cfg, core, logger)
	if err != nil {
		logger.Error("failed to initialize automation", "error", err)
		os.Exit(1)
	}

	if *once {
		runOnce(ctx, scheduler, logger)
		return
	}

	c, err := newCron(cfg.AutomationSchedule, scheduler, logger, func() context.Context { return ctx })
	if err != nil {
		logger.Error("invalid automation schedule", "schedule", cfg.AutomationSchedule, "error", err)
		os.Exit(1)
	}
	c.Start()
	<-ctx.Done()

	logger.Info("stopping scheduler, waiting for the running pass")
	<-c.Stop().Done()
	logger.Info("scheduler stopped")
}

// newCron schedules runs in UTC. Overlapping ticks are skipped while a pass
// is still running.
func newCron(spec string, runner automation.Runner, logger *logging.Logger, base func() context.Context) (*cron.Cron, error) {
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(spec, func() { runOnce(base(), runner, logger) }); err != nil {
		return nil, err
	}
	return c, nil
}

func runOnce(ctx context.Context, runner automation.Runner, logger *logging.Logger) {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	result := runner.Run(ctx, time.Now().UTC())
	for _, job := range result.Jobs {
		attrs := []any{
			"job", job.Job,
			"processed", job.Processed,
			"sent", job.Sent,
			"failed", job.Failed,
			"skipped", job.Skipped,
		}
		if job.Error != "" {
			logger.Warn("automation job finished with errors", append(attrs, "error", job.Error)...)
			continue
		}
		logger.Info("automation job finished", attrs...)
	}
}

// cronLogger adapts the structured logger to cron.Logger.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
