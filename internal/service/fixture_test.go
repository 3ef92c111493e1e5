package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-bot/internal/config"
	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/events"
	"github.com/spec-kit/helpdesk-bot/internal/repository"
	"github.com/spec-kit/helpdesk-bot/internal/transport"
)

const (
	creatorChat  = "501"
	actionChat   = "-100"
	monitorChat  = "-200"
	staffSam     = "S1"
	staffRiley   = "S2"
	creatorName  = "Ana"
	staffSamName = "Sam"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// failingStore wraps a store and fails writes on demand.
type failingStore struct {
	repository.TicketStore
	mu          sync.Mutex
	updateErr   error
	createErr   error
	updateCalls int
}

func (s *failingStore) failUpdates(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateErr = err
}

func (s *failingStore) failCreates(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createErr = err
}

func (s *failingStore) CreateTicket(ctx context.Context, ticket *domain.Ticket, initial *domain.StatusHistoryEntry) error {
	s.mu.Lock()
	err := s.createErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.TicketStore.CreateTicket(ctx, ticket, initial)
}

func (s *failingStore) UpdateTicketStatus(ctx context.Context, ticket *domain.Ticket, expected domain.TicketStatus, entry *domain.StatusHistoryEntry) error {
	s.mu.Lock()
	s.updateCalls++
	err := s.updateErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.TicketStore.UpdateTicketStatus(ctx, ticket, expected, entry)
}

type fixture struct {
	ctx           context.Context
	clock         *fakeClock
	store         *failingStore
	rec           *transport.Recorder
	tickets       *TicketService
	stats         *StatsService
	routing       *RoutingEngine
	remarks       *RemarksCoordinator
	conversations *ConversationStore
	wizard        *WizardService
}

func testCatalog() config.CatalogConfig {
	return config.CatalogConfig{
		Branches:    []string{"HQ", "North"},
		Departments: []string{"IT", "Finance"},
		Categories:  []string{"Hardware", "Software"},
		Urgencies:   []string{"Low", "High"},
	}
}

func testRouting() config.RoutingConfig {
	return config.RoutingConfig{
		BranchChannels:    map[string]string{"HQ": actionChat},
		MonitoringChannel: monitorChat,
		MonitoringEnabled: true,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newClock()
	store := &failingStore{TicketStore: repository.NewMemoryTicketStore()}
	rec := transport.NewRecorder()
	dispatcher := events.NewInMemoryDispatcher(nil)

	tickets := NewTicketService(TicketDependencies{Store: store, Dispatcher: dispatcher, Now: clock.Now})
	stats := NewStatsService(StatsDependencies{Store: store, Now: clock.Now})
	routing := NewRoutingEngine(RoutingDependencies{Transport: rec, Routing: testRouting(), Stats: stats})
	NewNotificationService(dispatcher, routing, nil).RegisterHandlers()

	remarks := NewRemarksCoordinator(RemarksDependencies{
		Tickets:   tickets,
		Routing:   routing,
		Transport: rec,
		MaxAge:    15 * time.Minute,
		Now:       clock.Now,
	})
	conversations := NewConversationStore(30 * time.Minute)
	conversations.SetClock(clock.Now)
	wizard := NewWizardService(WizardDependencies{
		Conversations: conversations,
		Tickets:       tickets,
		Catalog:       testCatalog(),
	})

	return &fixture{
		ctx:           context.Background(),
		clock:         clock,
		store:         store,
		rec:           rec,
		tickets:       tickets,
		stats:         stats,
		routing:       routing,
		remarks:       remarks,
		conversations: conversations,
		wizard:        wizard,
	}
}

func (f *fixture) createTicket(t *testing.T) *domain.Ticket {
	t.Helper()
	ticket, err := f.tickets.CreateTicket(f.ctx, TicketCreateInput{
		CreatorID:   creatorChat,
		CreatorName: creatorName,
		Branch:      "HQ",
		Department:  "IT",
		Category:    "Hardware",
		Urgency:     "High",
		Description: "Printer jammed",
	})
	require.NoError(t, err)
	return ticket
}

func (f *fixture) staffChange(ticketID, actorID string, status domain.TicketStatus, remarks string) (*TransitionResult, error) {
	return f.tickets.Transition(f.ctx, TransitionRequest{
		TicketID:  ticketID,
		NewStatus: status,
		ActorID:   actorID,
		ActorName: actorID + " name",
		Remarks:   remarks,
		Origin:    OriginStaff,
	})
}

func (f *fixture) creatorChange(ticketID, actorID string, status domain.TicketStatus) (*TransitionResult, error) {
	return f.tickets.Transition(f.ctx, TransitionRequest{
		TicketID:  ticketID,
		NewStatus: status,
		ActorID:   actorID,
		ActorName: creatorName,
		Origin:    OriginCreator,
	})
}

func (f *fixture) mustGet(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	ticket, err := f.tickets.GetTicket(f.ctx, id)
	require.NoError(t, err)
	return ticket
}

func (f *fixture) actionCard(t *testing.T, ticketID string) transport.Message {
	t.Helper()
	for _, msg := range f.rec.Messages(actionChat) {
		if msg.Text != "" && containsLine(msg.Text, "Ticket "+ticketID) {
			return msg
		}
	}
	t.Fatalf("no action card for %s", ticketID)
	return transport.Message{}
}

func containsLine(text, line string) bool {
	for _, l := range strings.Split(text, "\n") {
		if l == line {
			return true
		}
	}
	return false
}
