package domain

import "time"

// StatusHistoryEntry is an immutable audit trail entry.
// The first entry of every ticket has a nil FromStatus.
type StatusHistoryEntry struct {
	ID         string
	TicketID   string
	FromStatus *TicketStatus
	ToStatus   TicketStatus
	ActorID    string
	ActorName  string
	Remarks    *string
	At         time.Time
}
