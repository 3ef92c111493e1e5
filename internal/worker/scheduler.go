package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/config"
	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/observability"
	"github.com/spec-kit/helpdesk-bot/internal/persistence"
	"github.com/spec-kit/helpdesk-bot/internal/service"
	"github.com/spec-kit/helpdesk-bot/pkg/util/errorutil"
)

const (
	dailyDigestTTL  = 48 * time.Hour
	weeklyDigestTTL = 8 * 24 * time.Hour
)

// Scheduler runs the timer-driven policies: session and remarks sweeps, auto-confirmation and digests.
type Scheduler struct {
	conversations *service.ConversationStore
	remarks       *service.RemarksCoordinator
	tickets       *service.TicketService
	stats         *service.StatsService
	routing       *service.RoutingEngine
	flags         persistence.FlagStore
	workflow      config.WorkflowConfig
	cfg           config.SchedulerConfig
	location      *time.Location
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// SchedulerDependencies bundles collaborators for the scheduler.
type SchedulerDependencies struct {
	Conversations *service.ConversationStore
	Remarks       *service.RemarksCoordinator
	Tickets       *service.TicketService
	Stats         *service.StatsService
	Routing       *service.RoutingEngine
	Flags         persistence.FlagStore
	Workflow      config.WorkflowConfig
	Scheduler     config.SchedulerConfig
	Location      *time.Location
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	Now           func() time.Time
}

// NewScheduler constructs the scheduler. Jobs are registered by Start.
func NewScheduler(deps SchedulerDependencies) *Scheduler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	flags := deps.Flags
	if flags == nil {
		flags = persistence.NewMemoryFlagStore()
	}
	return &Scheduler{
		conversations: deps.Conversations,
		remarks:       deps.Remarks,
		tickets:       deps.Tickets,
		stats:         deps.Stats,
		routing:       deps.Routing,
		flags:         flags,
		workflow:      deps.Workflow,
		cfg:           deps.Scheduler,
		location:      loc,
		logger:        logger,
		metrics:       deps.Metrics,
		now:           now,
	}
}

// Start registers every job and starts the cron runner. Jobs run with ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	logger := cronLogger{s: s.logger.Sugar()}
	c := cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	jobs := []struct {
		name string
		spec string
		run  func(context.Context)
	}{
		{"session-sweep", s.cfg.SessionSweepSpec, func(context.Context) { s.RunSessionSweep() }},
		{"remarks-sweep", s.cfg.RemarksSweepSpec, func(ctx context.Context) { s.RunRemarksSweep(ctx) }},
		{"auto-confirm", s.cfg.AutoConfirmSpec, func(ctx context.Context) { _, _ = s.RunAutoConfirm(ctx) }},
		{"daily-digest", s.cfg.DailyDigestSpec, func(ctx context.Context) { _, _ = s.RunDailyDigest(ctx) }},
		{"weekly-digest", s.cfg.WeeklyDigestSpec, func(ctx context.Context) { _, _ = s.RunWeeklyDigest(ctx) }},
	}
	for _, job := range jobs {
		if job.spec == "" {
			s.logger.Info("scheduler job disabled", zap.String("job", job.name))
			continue
		}
		run := job.run
		if _, err := c.AddFunc(job.spec, func() { run(ctx) }); err != nil {
			return fmt.Errorf("scheduler: invalid schedule %q for %s: %w", job.spec, job.name, err)
		}
		s.logger.Info("scheduler job registered", zap.String("job", job.name), zap.String("spec", job.spec))
	}

	s.cron = c
	c.Start()
	s.logger.Info("scheduler started")
	return nil
}

// Stop halts the cron runner and waits for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunSessionSweep discards idle wizard conversations.
func (s *Scheduler) RunSessionSweep() int {
	removed := s.conversations.Sweep()
	if removed > 0 {
		s.logger.Info("idle conversations discarded", zap.Int("count", removed))
	}
	s.metrics.RecordSweep(removed, 0)
	return removed
}

// RunRemarksSweep discards remarks entries older than the configured max age.
func (s *Scheduler) RunRemarksSweep(ctx context.Context) int {
	removed := s.remarks.Sweep(ctx, s.workflow.RemarksMaxAge())
	if removed > 0 {
		s.logger.Info("stale remarks entries discarded", zap.Int("count", removed))
	}
	s.metrics.RecordSweep(0, removed)
	return removed
}

// RunAutoConfirm confirms resolved tickets the creator never answered. Tickets confirmed by a
// concurrent run are skipped.
func (s *Scheduler) RunAutoConfirm(ctx context.Context) (int, error) {
	tickets, err := s.tickets.ListAwaitingConfirmation(ctx, s.workflow.AutoConfirmAfter())
	if err != nil {
		s.logger.Error("auto-confirm query failed", zap.Error(err))
		return 0, err
	}
	confirmed := 0
	for _, ticket := range tickets {
		result, err := s.tickets.Transition(ctx, service.TransitionRequest{
			TicketID:  ticket.ID,
			NewStatus: domain.TicketStatusConfirmed,
			ActorID:   domain.SystemActorID,
			ActorName: domain.SystemActorID,
			Origin:    service.OriginSystem,
		})
		switch {
		case err == nil:
			if result.Changed {
				confirmed++
			}
		case errorutil.HasCode(err, errorutil.CodeAlreadyTerminal),
			errorutil.HasCode(err, errorutil.CodeNotFound),
			errorutil.HasCode(err, errorutil.CodeValidation):
			s.logger.Debug("auto-confirm skipped", zap.String("ticket_id", ticket.ID), zap.Error(err))
		default:
			s.logger.Warn("auto-confirm failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	if confirmed > 0 {
		s.logger.Info("tickets auto-confirmed", zap.Int("count", confirmed))
	}
	s.metrics.RecordAutoConfirmed(confirmed)
	return confirmed, nil
}

// RunDailyDigest sends today's report once per calendar day.
func (s *Scheduler) RunDailyDigest(ctx context.Context) (bool, error) {
	now := s.now()
	key := DailyDigestKey(now.In(s.location))
	return s.sendDigest(ctx, key, dailyDigestTTL, func() (string, error) {
		report, err := s.stats.Daily(ctx, now)
		if err != nil {
			return "", err
		}
		return service.FormatReport("Daily helpdesk report", report), nil
	})
}

// RunWeeklyDigest sends last week's report once per ISO week.
func (s *Scheduler) RunWeeklyDigest(ctx context.Context) (bool, error) {
	now := s.now()
	key := WeeklyDigestKey(now.In(s.location))
	return s.sendDigest(ctx, key, weeklyDigestTTL, func() (string, error) {
		report, err := s.stats.Weekly(ctx, s.previousWeekStart(now))
		if err != nil {
			return "", err
		}
		return service.FormatReport("Weekly helpdesk report", report), nil
	})
}

// sendDigest claims the window flag before sending, so a window gets at most one digest.
func (s *Scheduler) sendDigest(ctx context.Context, key string, ttl time.Duration, render func() (string, error)) (bool, error) {
	first, err := s.flags.SetOnce(ctx, key, ttl)
	if err != nil {
		s.logger.Error("digest flag unavailable", zap.String("key", key), zap.Error(err))
		return false, err
	}
	if !first {
		s.logger.Debug("digest already sent", zap.String("key", key))
		return false, nil
	}
	text, err := render()
	if err != nil {
		s.logger.Error("digest report failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	if err := s.routing.SendDigest(ctx, text); err != nil {
		s.logger.Error("digest delivery failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	s.logger.Info("digest sent", zap.String("key", key))
	return true, nil
}

func (s *Scheduler) previousWeekStart(now time.Time) time.Time {
	today := s.stats.StartOfDay(now)
	sinceMonday := (int(today.Weekday()) + 6) % 7
	return today.AddDate(0, 0, -sinceMonday-7)
}

// DailyDigestKey names the flag of the calendar day containing local.
func DailyDigestKey(local time.Time) string {
	return "digest:daily:" + local.Format("2006-01-02")
}

// WeeklyDigestKey names the flag of the ISO week containing local.
func WeeklyDigestKey(local time.Time) string {
	year, week := local.ISOWeek()
	return fmt.Sprintf("digest:weekly:%d-W%02d", year, week)
}

// cronLogger routes cron's logr-style output into zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
