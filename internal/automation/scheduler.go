// Package automation runs the time-driven outbound jobs: booking reminders,
// post-visit review requests and win-back messages to idle clients.
package automation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/antonbillionaire/staffix/internal/bookings"
	"github.com/antonbillionaire/staffix/internal/business"
	"github.com/antonbillionaire/staffix/internal/clients"
	"github.com/antonbillionaire/staffix/internal/messaging"
	"github.com/antonbillionaire/staffix/internal/messaging/compliance"
	"github.com/antonbillionaire/staffix/internal/messaging/templates"
	"github.com/antonbillionaire/staffix/pkg/logging"
)

const (
	kindReminder     = "reminder"
	kindReview       = "review"
	kindReactivation = "reactivation"
)

var tracer = otel.Tracer("staffix.automation")

// BookingSource is the slice of the booking engine the jobs need.
type BookingSource interface {
	UpcomingBookings(ctx context.Context, businessID string, from, to time.Time) ([]bookings.Booking, error)
	EndedBookings(ctx context.Context, businessID string, from, to time.Time) ([]bookings.Booking, error)
	MarkCompleted(ctx context.Context, bookingID string) error
	AppendNote(ctx context.Context, bookingID, note string) error
	ServiceByID(ctx context.Context, businessID, serviceID string) (business.Service, error)
}

// ClientSource is the slice of the client repository the jobs need.
type ClientSource interface {
	Get(ctx context.Context, clientID string) (*clients.Client, error)
	AppendNote(ctx context.Context, clientID, note string) error
	ListIdle(ctx context.Context, businessID string, idleBefore, cooldownBefore time.Time) ([]clients.Client, error)
	ClaimReactivation(ctx context.Context, clientID string, at, cooldownBefore time.Time) (*time.Time, bool, error)
	ReleaseReactivation(ctx context.Context, clientID string, at time.Time, prev *time.Time) error
}

// Config holds the job thresholds.
type Config struct {
	ReminderLeads        []time.Duration
	ReviewDelay          time.Duration
	ReviewLookback       time.Duration
	ReactivationIdle     time.Duration
	ReactivationCooldown time.Duration
	BatchSize            int
	BatchDelay           time.Duration
	// Window limits review and reactivation sends to business-local hours.
	Window compliance.SendWindow
}

// Deps are the collaborators of a Scheduler.
type Deps struct {
	Businesses business.Reader
	Bookings   BookingSource
	Clients    ClientSource
	Sender     messaging.Sender
	Runs       RunStore
	Logger     *logging.Logger
}

// JobSummary reports one job of a run. Error carries a job-level fault or
// the joined per-business failures; the other businesses still ran.
type JobSummary struct {
	Job       string `json:"job"`
	Processed int    `json:"processed"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Error     string `json:"error,omitempty"`
}

// RunResult aggregates the three job summaries of one trigger.
type RunResult struct {
	StartedAt time.Time    `json:"started_at"`
	Jobs      []JobSummary `json:"jobs"`
}

// Scheduler runs the automation jobs against every business.
type Scheduler struct {
	businesses business.Reader
	bookings   BookingSource
	clients    ClientSource
	sender     messaging.Sender
	runs       RunStore
	renderer   *templates.Renderer
	cfg        Config
	logger     *logging.Logger
}

// NewScheduler wires a scheduler. Missing thresholds fall back to the
// defaults used in production.
func NewScheduler(deps Deps, cfg Config) *Scheduler {
	if deps.Businesses == nil || deps.Bookings == nil || deps.Clients == nil {
		panic("automation: business, booking and client sources required")
	}
	if deps.Sender == nil {
		panic("automation: sender required")
	}
	if deps.Runs == nil {
		panic("automation: run store required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if len(cfg.ReminderLeads) == 0 {
		cfg.ReminderLeads = []time.Duration{24 * time.Hour, 2 * time.Hour}
	}
	cfg.ReminderLeads = slices.Clone(cfg.ReminderLeads)
	slices.Sort(cfg.ReminderLeads)
	cfg.ReminderLeads = slices.Compact(cfg.ReminderLeads)
	if cfg.ReviewDelay <= 0 {
		cfg.ReviewDelay = 2 * time.Hour
	}
	if cfg.ReviewLookback <= 0 {
		cfg.ReviewLookback = 72 * time.Hour
	}
	if cfg.ReactivationIdle <= 0 {
		cfg.ReactivationIdle = 30 * 24 * time.Hour
	}
	if cfg.ReactivationCooldown <= 0 {
		cfg.ReactivationCooldown = 30 * 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Window == (compliance.SendWindow{}) {
		cfg.Window = compliance.SendWindow{StartMinutes: 9 * 60, EndMinutes: 21 * 60}
	}
	return &Scheduler{
		businesses: deps.Businesses,
		bookings:   deps.Bookings,
		clients:    deps.Clients,
		sender:     deps.Sender,
		runs:       deps.Runs,
		renderer:   &templates.Renderer{},
		cfg:        cfg,
		logger:     deps.Logger,
	}
}

type businessJob func(ctx context.Context, biz *business.Business, now time.Time, sum *JobSummary) error

// Run executes the three jobs concurrently. A failing or panicking job is
// reported in its own summary and never cancels the others.
func (s *Scheduler) Run(ctx context.Context, now time.Time) RunResult {
	now = now.UTC()
	ctx, span := tracer.Start(ctx, "automation.run")
	defer span.End()

	jobs := []struct {
		name string
		fn   businessJob
	}{
		{kindReminder, s.remindersFor},
		{kindReview, s.reviewsFor},
		{kindReactivation, s.reactivationFor},
	}

	result := RunResult{StartedAt: now, Jobs: make([]JobSummary, len(jobs))}
	var g errgroup.Group
	for i, job := range jobs {
		g.Go(func() error {
			result.Jobs[i] = s.runJob(ctx, job.name, job.fn, now)
			return nil
		})
	}
	_ = g.Wait()

	for _, sum := range result.Jobs {
		if sum.Error != "" {
			span.RecordError(errors.New(sum.Error), trace.WithAttributes(attribute.String("job", sum.Job)))
		}
	}
	return result
}

func (s *Scheduler) runJob(ctx context.Context, name string, fn businessJob, now time.Time) (sum JobSummary) {
	sum.Job = name
	start := time.Now()
	logger := s.logger.With("job", name)
	defer func() {
		if r := recover(); r != nil {
			sum.Error = fmt.Sprintf("panic: %v", r)
			logger.Error("automation job panicked", "panic", r)
		}
		observeJob(sum, time.Since(start))
		logger.Info("automation job finished",
			"processed", sum.Processed,
			"sent", sum.Sent,
			"failed", sum.Failed,
			"skipped", sum.Skipped,
			"error", sum.Error,
		)
	}()

	list, err := s.businesses.ListBusinesses(ctx)
	if err != nil {
		sum.Error = fmt.Sprintf("list businesses: %v", err)
		return sum
	}

	var failures []string
	for i := range list {
		biz := &list[i]
		if !biz.PlanActive(now) {
			logger.Debug("plan expired, skipping business", "business_id", biz.ID)
			continue
		}
		if err := fn(ctx, biz, now, &sum); err != nil {
			logger.Error("automation job failed for business", "business_id", biz.ID, "error", err)
			failures = append(failures, fmt.Sprintf("%s: %v", biz.ID, err))
		}
	}
	if len(failures) > 0 {
		sum.Error = strings.Join(failures, "; ")
	}
	return sum
}

// deliver sends the claimed items and settles their outcomes on sum.
func (s *Scheduler) deliver(ctx context.Context, items []delivery, sum *JobSummary) {
	if len(items) == 0 {
		return
	}
	outcomes := sendBatches(ctx, s.sender, items, s.cfg.BatchSize, s.cfg.BatchDelay)
	cleanup := context.WithoutCancel(ctx)
	for i, outcome := range outcomes {
		if outcome.Err == nil {
			sum.Sent++
			continue
		}
		sum.Failed++
		s.logger.Warn("automation send failed", "job", sum.Job, "target_id", outcome.TargetID, "error", outcome.Err)
		items[i].onFail(cleanup, outcome.Err)
	}
}

// failureNote is the text recorded on a target whose message could not be sent.
func failureNote(kind string, at time.Time, err error) string {
	return fmt.Sprintf("[%s] %s message not delivered: %v", at.UTC().Format(time.RFC3339), kind, err)
}

// lookupClient resolves the recipient of a booking message. A missing client
// or one without a channel yields nil.
func (s *Scheduler) lookupClient(ctx context.Context, clientID string) (*clients.Client, error) {
	client, err := s.clients.Get(ctx, clientID)
	if errors.Is(err, clients.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if client.ChannelID == "" {
		return nil, nil
	}
	return client, nil
}

func (s *Scheduler) serviceName(ctx context.Context, businessID, serviceID string) string {
	svc, err := s.bookings.ServiceByID(ctx, businessID, serviceID)
	if err != nil {
		return ""
	}
	return svc.Name
}

// releaseLogged releases a claim and only logs failures.
func (s *Scheduler) releaseLogged(ctx context.Context, kind, targetID string) {
	if err := s.runs.Release(ctx, kind, targetID); err != nil {
		s.logger.Error("release automation claim failed", "kind", kind, "target_id", targetID, "error", err)
	}
}
