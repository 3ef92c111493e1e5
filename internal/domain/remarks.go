package domain

import "time"

// PendingRemarks is a staff action waiting for its free-text justification.
type PendingRemarks struct {
	ID              string
	TicketID        string
	RequestedStatus TicketStatus
	PriorStatus     TicketStatus
	IsCancellation  bool
	// PromptMessageID is zero until the entry reaches the head of its queue and is prompted.
	PromptMessageID int
	SourceChatID    string
	SourceMessageID int
	QueuedAt        time.Time
}
