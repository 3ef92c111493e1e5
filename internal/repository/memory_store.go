package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
)

// MemoryTicketStore keeps tickets in process. It backs tests and deployments without Postgres.
type MemoryTicketStore struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	history map[string][]domain.StatusHistoryEntry
}

// NewMemoryTicketStore builds an empty store.
func NewMemoryTicketStore() *MemoryTicketStore {
	return &MemoryTicketStore{
		tickets: make(map[string]*domain.Ticket),
		history: make(map[string][]domain.StatusHistoryEntry),
	}
}

func (s *MemoryTicketStore) CreateTicket(_ context.Context, ticket *domain.Ticket, initial *domain.StatusHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tickets[ticket.ID]; exists {
		return ErrDuplicateTicket
	}
	s.tickets[ticket.ID] = ticket.Clone()
	if initial != nil {
		s.history[ticket.ID] = append(s.history[ticket.ID], *initial)
	}
	return nil
}

func (s *MemoryTicketStore) GetTicket(_ context.Context, id string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return nil, ErrTicketNotFound
	}
	return ticket.Clone(), nil
}

func (s *MemoryTicketStore) UpdateTicketStatus(_ context.Context, ticket *domain.Ticket, expected domain.TicketStatus, entry *domain.StatusHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tickets[ticket.ID]
	if !ok {
		return ErrTicketNotFound
	}
	if current.Status != expected {
		return ErrStaleTicket
	}
	updated := current.Clone()
	updated.Status = ticket.Status
	updated.AssignedTo = ticket.AssignedTo
	updated.AssignedToName = ticket.AssignedToName
	updated.Remarks = ticket.Remarks
	updated.UpdatedAt = ticket.UpdatedAt
	updated.ResolvedAt = ticket.ResolvedAt
	s.tickets[ticket.ID] = updated.Clone()
	if entry != nil {
		s.history[ticket.ID] = append(s.history[ticket.ID], *entry)
	}
	return nil
}

func (s *MemoryTicketStore) ListHistory(_ context.Context, ticketID string) ([]domain.StatusHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.history[ticketID]
	out := make([]domain.StatusHistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *MemoryTicketStore) QueryTickets(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	s.mu.Lock()
	result := make([]domain.Ticket, 0, len(s.tickets))
	for _, ticket := range s.tickets {
		if matches(ticket, filter) {
			result = append(result, *ticket.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []domain.Ticket{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *MemoryTicketStore) CountCreatedBetween(_ context.Context, from, to time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, ticket := range s.tickets {
		if !ticket.CreatedAt.Before(from) && ticket.CreatedAt.Before(to) {
			count++
		}
	}
	return count, nil
}

func matches(ticket *domain.Ticket, filter TicketFilter) bool {
	if filter.CreatorID != nil && ticket.CreatorID != *filter.CreatorID {
		return false
	}
	if filter.Branch != nil && ticket.Branch != *filter.Branch {
		return false
	}
	if filter.Department != nil && ticket.Department != *filter.Department {
		return false
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if ticket.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.CreatedFrom != nil && ticket.CreatedAt.Before(*filter.CreatedFrom) {
		return false
	}
	if filter.CreatedTo != nil && !ticket.CreatedAt.Before(*filter.CreatedTo) {
		return false
	}
	if filter.UpdatedBefore != nil && !ticket.UpdatedAt.Before(*filter.UpdatedBefore) {
		return false
	}
	return true
}
