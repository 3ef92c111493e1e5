package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusPending            TicketStatus = "pending"
	TicketStatusInProcess          TicketStatus = "in-process"
	TicketStatusResolved           TicketStatus = "resolved"
	TicketStatusResolvedWithIssues TicketStatus = "resolved-with-issues"
	TicketStatusConfirmed          TicketStatus = "confirmed"
	TicketStatusCancelledStaff     TicketStatus = "cancelled-staff"
	TicketStatusCancelledUser      TicketStatus = "cancelled-user"
	// TicketStatusClosed is kept for rows written by older deployments; nothing transitions into it.
	TicketStatusClosed TicketStatus = "closed"
)

// SystemActorID identifies transitions made by scheduled jobs.
const SystemActorID = "SYSTEM"

var statusCodes = map[string]TicketStatus{
	"ip":  TicketStatusInProcess,
	"rv":  TicketStatusResolved,
	"rwi": TicketStatusResolvedWithIssues,
	"cs":  TicketStatusCancelledStaff,
	"cu":  TicketStatusCancelledUser,
	"cf":  TicketStatusConfirmed,
}

// IsTerminal reports whether no further transitions are accepted.
func (s TicketStatus) IsTerminal() bool {
	switch s {
	case TicketStatusConfirmed, TicketStatusCancelledStaff, TicketStatusCancelledUser, TicketStatusClosed:
		return true
	}
	return false
}

// IsResolved reports whether the status is one of the resolved variants awaiting confirmation.
func (s TicketStatus) IsResolved() bool {
	return s == TicketStatusResolved || s == TicketStatusResolvedWithIssues
}

// RequiresRemarks reports whether a human actor must justify entering this status.
func (s TicketStatus) RequiresRemarks() bool {
	return s.IsResolved() || s == TicketStatusCancelledStaff
}

// Code returns the short alias used in callback payloads.
func (s TicketStatus) Code() string {
	for code, status := range statusCodes {
		if status == s {
			return code
		}
	}
	return ""
}

// Label returns a human readable status name.
func (s TicketStatus) Label() string {
	switch s {
	case TicketStatusPending:
		return "Pending"
	case TicketStatusInProcess:
		return "In process"
	case TicketStatusResolved:
		return "Resolved"
	case TicketStatusResolvedWithIssues:
		return "Resolved with issues"
	case TicketStatusConfirmed:
		return "Confirmed"
	case TicketStatusCancelledStaff:
		return "Cancelled by staff"
	case TicketStatusCancelledUser:
		return "Cancelled by user"
	case TicketStatusClosed:
		return "Closed"
	}
	return string(s)
}

// ParseStatus accepts a short code or a full status name.
func ParseStatus(raw string) (TicketStatus, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if status, ok := statusCodes[raw]; ok {
		return status, true
	}
	switch status := TicketStatus(raw); status {
	case TicketStatusPending, TicketStatusInProcess, TicketStatusResolved, TicketStatusResolvedWithIssues,
		TicketStatusConfirmed, TicketStatusCancelledStaff, TicketStatusCancelledUser, TicketStatusClosed:
		return status, true
	}
	return "", false
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID             string
	CreatorID      string
	CreatorName    string
	Branch         string
	Department     string
	Category       string
	Urgency        string
	Description    string
	ContactPerson  string
	Status         TicketStatus
	AssignedTo     *string
	AssignedToName *string
	Remarks        *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ResolvedAt     *time.Time
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	out := *t
	out.AssignedTo = cloneString(t.AssignedTo)
	out.AssignedToName = cloneString(t.AssignedToName)
	out.Remarks = cloneString(t.Remarks)
	if t.ResolvedAt != nil {
		v := *t.ResolvedAt
		out.ResolvedAt = &v
	}
	return &out
}

// OwnerName returns the assignee name, or an empty string when unassigned.
func (t *Ticket) OwnerName() string {
	if t.AssignedToName != nil {
		return *t.AssignedToName
	}
	if t.AssignedTo != nil {
		return *t.AssignedTo
	}
	return ""
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}
