package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-bot/internal/config"
	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/events"
	"github.com/spec-kit/helpdesk-bot/internal/persistence"
	"github.com/spec-kit/helpdesk-bot/internal/repository"
	"github.com/spec-kit/helpdesk-bot/internal/service"
	"github.com/spec-kit/helpdesk-bot/internal/transport"
)

const monitorChat = "-200"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type schedulerFixture struct {
	ctx           context.Context
	clock         *clock
	rec           *transport.Recorder
	tickets       *service.TicketService
	conversations *service.ConversationStore
	remarks       *service.RemarksCoordinator
	scheduler     *Scheduler
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	// Monday
	clk := &clock{t: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
	store := repository.NewMemoryTicketStore()
	rec := transport.NewRecorder()
	dispatcher := events.NewInMemoryDispatcher(nil)

	tickets := service.NewTicketService(service.TicketDependencies{Store: store, Dispatcher: dispatcher, Now: clk.Now})
	stats := service.NewStatsService(service.StatsDependencies{Store: store, Now: clk.Now})
	routing := service.NewRoutingEngine(service.RoutingDependencies{
		Transport: rec,
		Routing: config.RoutingConfig{
			BranchChannels:    map[string]string{"HQ": "-100"},
			MonitoringChannel: monitorChat,
			MonitoringEnabled: true,
		},
		Stats: stats,
	})
	StartNotificationWorker(dispatcher, routing, nil)

	conversations := service.NewConversationStore(30 * time.Minute)
	conversations.SetClock(clk.Now)
	remarks := service.NewRemarksCoordinator(service.RemarksDependencies{
		Tickets: tickets, Routing: routing, Transport: rec, MaxAge: 15 * time.Minute, Now: clk.Now,
	})
	flags := persistence.NewMemoryFlagStore()
	flags.SetClock(clk.Now)

	scheduler := NewScheduler(SchedulerDependencies{
		Conversations: conversations,
		Remarks:       remarks,
		Tickets:       tickets,
		Stats:         stats,
		Routing:       routing,
		Flags:         flags,
		Workflow:      config.WorkflowConfig{AutoConfirmAfterHours: 72},
		Now:           clk.Now,
	})
	return &schedulerFixture{
		ctx:           context.Background(),
		clock:         clk,
		rec:           rec,
		tickets:       tickets,
		conversations: conversations,
		remarks:       remarks,
		scheduler:     scheduler,
	}
}

func (f *schedulerFixture) resolvedTicket(t *testing.T) *domain.Ticket {
	t.Helper()
	ticket, err := f.tickets.CreateTicket(f.ctx, service.TicketCreateInput{
		CreatorID: "501", CreatorName: "Ana", Branch: "HQ", Description: "Printer jammed",
	})
	require.NoError(t, err)
	_, err = f.tickets.Transition(f.ctx, service.TransitionRequest{
		TicketID: ticket.ID, NewStatus: domain.TicketStatusResolved,
		ActorID: "S1", ActorName: "Sam", Remarks: "Replaced toner", Origin: service.OriginStaff,
	})
	require.NoError(t, err)
	return ticket
}

func TestAutoConfirmRunsOncePerTicket(t *testing.T) {
	f := newSchedulerFixture(t)
	ticket := f.resolvedTicket(t)

	n, err := f.scheduler.RunAutoConfirm(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "too recent")

	f.clock.Advance(73 * time.Hour)
	n, err = f.scheduler.RunAutoConfirm(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = f.scheduler.RunAutoConfirm(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	history, err := f.tickets.History(f.ctx, ticket.ID)
	require.NoError(t, err)
	confirmed := 0
	for _, entry := range history {
		if entry.ToStatus == domain.TicketStatusConfirmed {
			confirmed++
			assert.Equal(t, domain.SystemActorID, entry.ActorID)
			assert.Nil(t, entry.Remarks)
		}
	}
	assert.Equal(t, 1, confirmed)
}

func TestAutoConfirmConcurrentRunsConfirmOnce(t *testing.T) {
	f := newSchedulerFixture(t)
	f.resolvedTicket(t)
	f.clock.Advance(73 * time.Hour)

	var wg sync.WaitGroup
	results := make([]int, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := f.scheduler.RunAutoConfirm(f.ctx)
			assert.NoError(t, err)
			results[i] = n
		}(i)
	}
	wg.Wait()

	total := 0
	for _, n := range results {
		total += n
	}
	assert.Equal(t, 1, total)
}

func TestDailyDigestOncePerDay(t *testing.T) {
	f := newSchedulerFixture(t)
	f.resolvedTicket(t)
	before := len(f.rec.Messages(monitorChat))

	sent, err := f.scheduler.RunDailyDigest(f.ctx)
	require.NoError(t, err)
	assert.True(t, sent)
	sent, err = f.scheduler.RunDailyDigest(f.ctx)
	require.NoError(t, err)
	assert.False(t, sent)

	msgs := f.rec.Messages(monitorChat)
	require.Len(t, msgs, before+1)
	assert.Contains(t, msgs[len(msgs)-1].Text, "Daily helpdesk report (2026-01-05 to 2026-01-05)")

	f.clock.Advance(24 * time.Hour)
	sent, err = f.scheduler.RunDailyDigest(f.ctx)
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestWeeklyDigestCoversPreviousWeek(t *testing.T) {
	f := newSchedulerFixture(t)

	sent, err := f.scheduler.RunWeeklyDigest(f.ctx)
	require.NoError(t, err)
	require.True(t, sent)
	last, ok := f.rec.Last(monitorChat)
	require.True(t, ok)
	assert.Contains(t, last.Text, "Weekly helpdesk report (2025-12-29 to 2026-01-04)")

	sent, err = f.scheduler.RunWeeklyDigest(f.ctx)
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestDigestKeys(t *testing.T) {
	day := time.Date(2026, 1, 5, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "digest:daily:2026-01-05", DailyDigestKey(day))
	assert.Equal(t, "digest:weekly:2026-W02", WeeklyDigestKey(day))
	assert.Equal(t, "digest:weekly:2026-W01", WeeklyDigestKey(day.AddDate(0, 0, -1)))
}

func TestSweepsDropExpiredState(t *testing.T) {
	f := newSchedulerFixture(t)
	f.conversations.Start("501", "501", "Ana")
	ticket, err := f.tickets.CreateTicket(f.ctx, service.TicketCreateInput{
		CreatorID: "502", Branch: "HQ", Description: "Screen flickers",
	})
	require.NoError(t, err)
	_, err = f.remarks.Enqueue(f.ctx, "-100", "S1", service.RemarksRequest{
		TicketID: ticket.ID, RequestedStatus: domain.TicketStatusResolved, PriorStatus: domain.TicketStatusPending,
	})
	require.NoError(t, err)

	f.clock.Advance(31 * time.Minute)
	assert.Equal(t, 1, f.scheduler.RunSessionSweep())
	assert.Equal(t, 1, f.scheduler.RunRemarksSweep(f.ctx))
	assert.Empty(t, f.remarks.Pending("-100", "S1"))
	assert.Zero(t, f.conversations.Len())
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	f := newSchedulerFixture(t)
	s := NewScheduler(SchedulerDependencies{
		Conversations: f.conversations,
		Scheduler:     config.SchedulerConfig{SessionSweepSpec: "not a spec"},
	})
	assert.Error(t, s.Start(f.ctx))

	running := NewScheduler(SchedulerDependencies{
		Conversations: f.conversations,
		Scheduler:     config.SchedulerConfig{SessionSweepSpec: "@every 1m"},
	})
	require.NoError(t, running.Start(f.ctx))
	assert.Error(t, running.Start(f.ctx))
	running.Stop()
}
