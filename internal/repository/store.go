package repository

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
)

var (
	// ErrTicketNotFound is returned when no ticket has the requested ID.
	ErrTicketNotFound = errors.New("ticket not found")
	// ErrStaleTicket is returned when the stored status no longer matches the expected one.
	ErrStaleTicket = errors.New("ticket status changed concurrently")
	// ErrDuplicateTicket is returned when the ticket ID is already taken.
	ErrDuplicateTicket = errors.New("ticket id already exists")
)

// TicketFilter narrows ticket queries. A zero Limit means no limit.
type TicketFilter struct {
	CreatorID     *string
	Branch        *string
	Department    *string
	Statuses      []domain.TicketStatus
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	UpdatedBefore *time.Time
	Limit         int
	Offset        int
}

// TicketStore is the durable record of tickets and their status history.
// Status writes go through UpdateTicketStatus only, which appends the history entry in the same unit of work.
type TicketStore interface {
	CreateTicket(ctx context.Context, ticket *domain.Ticket, initial *domain.StatusHistoryEntry) error
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)
	UpdateTicketStatus(ctx context.Context, ticket *domain.Ticket, expected domain.TicketStatus, entry *domain.StatusHistoryEntry) error
	ListHistory(ctx context.Context, ticketID string) ([]domain.StatusHistoryEntry, error)
	QueryTickets(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error)
}
