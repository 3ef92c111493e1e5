package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
)

func seedTicket(t *testing.T, s *MemoryTicketStore, id, branch string, status domain.TicketStatus, created time.Time) {
	t.Helper()
	ticket := &domain.Ticket{
		ID:        id,
		CreatorID: "100",
		Branch:    branch,
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, s.CreateTicket(context.Background(), ticket, &domain.StatusHistoryEntry{
		ID: id + "-h0", TicketID: id, ToStatus: status, ActorID: "100", At: created,
	}))
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	s := NewMemoryTicketStore()
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	seedTicket(t, s, "ISSUE-20260105-0001", "HQ", domain.TicketStatusPending, now)

	err := s.CreateTicket(context.Background(), &domain.Ticket{ID: "ISSUE-20260105-0001"}, nil)
	assert.ErrorIs(t, err, ErrDuplicateTicket)
}

func TestUpdateTicketStatusIsConditional(t *testing.T) {
	s := NewMemoryTicketStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	seedTicket(t, s, "ISSUE-20260105-0001", "HQ", domain.TicketStatusPending, now)

	ticket, err := s.GetTicket(ctx, "ISSUE-20260105-0001")
	require.NoError(t, err)
	ticket.Status = domain.TicketStatusInProcess
	entry := &domain.StatusHistoryEntry{ID: "h1", TicketID: ticket.ID, ToStatus: domain.TicketStatusInProcess}

	require.NoError(t, s.UpdateTicketStatus(ctx, ticket, domain.TicketStatusPending, entry))
	assert.ErrorIs(t, s.UpdateTicketStatus(ctx, ticket, domain.TicketStatusPending, entry), ErrStaleTicket)

	history, err := s.ListHistory(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	ticket.ID = "ISSUE-20990101-0001"
	assert.ErrorIs(t, s.UpdateTicketStatus(ctx, ticket, domain.TicketStatusPending, entry), ErrTicketNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewMemoryTicketStore()
	ctx := context.Background()
	seedTicket(t, s, "ISSUE-20260105-0001", "HQ", domain.TicketStatusPending, time.Now())

	ticket, err := s.GetTicket(ctx, "ISSUE-20260105-0001")
	require.NoError(t, err)
	ticket.Status = domain.TicketStatusConfirmed

	again, err := s.GetTicket(ctx, "ISSUE-20260105-0001")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, again.Status)
}

func TestQueryTicketsFilters(t *testing.T) {
	s := NewMemoryTicketStore()
	ctx := context.Background()
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	seedTicket(t, s, "ISSUE-20260104-0001", "HQ", domain.TicketStatusResolved, day.Add(-2*time.Hour))
	seedTicket(t, s, "ISSUE-20260105-0001", "HQ", domain.TicketStatusPending, day.Add(time.Hour))
	seedTicket(t, s, "ISSUE-20260105-0002", "NORTH", domain.TicketStatusResolved, day.Add(2*time.Hour))

	from, to := day, day.Add(24*time.Hour)
	sameDay, err := s.QueryTickets(ctx, TicketFilter{CreatedFrom: &from, CreatedTo: &to})
	require.NoError(t, err)
	require.Len(t, sameDay, 2)
	assert.Equal(t, "ISSUE-20260105-0002", sameDay[0].ID)

	resolved, err := s.QueryTickets(ctx, TicketFilter{Statuses: []domain.TicketStatus{domain.TicketStatusResolved}})
	require.NoError(t, err)
	assert.Len(t, resolved, 2)

	branch := "HQ"
	before := day
	stale, err := s.QueryTickets(ctx, TicketFilter{Branch: &branch, UpdatedBefore: &before})
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "ISSUE-20260104-0001", stale[0].ID)

	limited, err := s.QueryTickets(ctx, TicketFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "ISSUE-20260105-0001", limited[0].ID)

	count, err := s.CountCreatedBetween(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
