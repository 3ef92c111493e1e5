package events

import (
	"time"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventConfirmationRequested EventType = "confirmation_requested"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Event represents a domain event emitted by services.
// Ticket is a snapshot taken right after the change was committed.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	TicketID  string         `json:"ticket_id"`
	Ticket    *domain.Ticket `json:"-"`
	Actor     Actor          `json:"actor"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   interface{}    `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Branch     string `json:"branch"`
	Department string `json:"department"`
	Urgency    string `json:"urgency"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Remarks   string              `json:"remarks,omitempty"`
}

// ConfirmationRequestedPayload payload.
type ConfirmationRequestedPayload struct {
	Status domain.TicketStatus `json:"status"`
}
