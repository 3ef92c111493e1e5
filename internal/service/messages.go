package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/transport"
	"github.com/spec-kit/helpdesk-bot/pkg/util/errorutil"
)

// Reply is a chat message the caller should send back to the user.
type Reply struct {
	Text    string
	Buttons [][]transport.Button
}

// TicketCard renders the summary posted to action and monitoring channels.
func TicketCard(t *domain.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket %s\n", t.ID)
	fmt.Fprintf(&b, "Status: %s\n", t.Status.Label())
	fmt.Fprintf(&b, "Branch: %s\n", t.Branch)
	if t.Department != "" {
		fmt.Fprintf(&b, "Department: %s\n", t.Department)
	}
	if t.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", t.Category)
	}
	if t.Urgency != "" {
		fmt.Fprintf(&b, "Urgency: %s\n", t.Urgency)
	}
	fmt.Fprintf(&b, "From: %s\n", nonEmpty(t.CreatorName, t.CreatorID))
	if t.ContactPerson != "" {
		fmt.Fprintf(&b, "Contact: %s\n", t.ContactPerson)
	}
	if owner := t.OwnerName(); owner != "" {
		fmt.Fprintf(&b, "Handled by: %s\n", owner)
	}
	if t.Remarks != nil && *t.Remarks != "" {
		fmt.Fprintf(&b, "Remarks: %s\n", *t.Remarks)
	}
	fmt.Fprintf(&b, "\n%s", t.Description)
	return b.String()
}

// StaffButtons returns one button per status staff may move the ticket to. Terminal tickets get none.
func StaffButtons(t *domain.Ticket) [][]transport.Button {
	var row []transport.Button
	for _, next := range NextStaffStatuses(t.Status) {
		data, err := domain.StaffStatusCallback(t.ID, next)
		if err != nil {
			continue
		}
		row = append(row, transport.Button{Text: next.Label(), Data: data})
	}
	if len(row) == 0 {
		return nil
	}
	// two per row keeps labels readable on phones
	var rows [][]transport.Button
	for len(row) > 2 {
		rows = append(rows, row[:2])
		row = row[2:]
	}
	return append(rows, row)
}

// ConfirmButtons returns the creator's yes/no keyboard.
func ConfirmButtons(ticketID string) [][]transport.Button {
	yes, errYes := domain.ConfirmCallback(ticketID, true)
	no, errNo := domain.ConfirmCallback(ticketID, false)
	if errYes != nil || errNo != nil {
		return nil
	}
	return [][]transport.Button{{
		{Text: "Yes, resolved", Data: yes},
		{Text: "Not resolved", Data: no},
	}}
}

// CreatorTicketButtons offers the creator a cancel button while the ticket is still open.
func CreatorTicketButtons(t *domain.Ticket) [][]transport.Button {
	if t.Status.IsTerminal() || t.Status.IsResolved() {
		return nil
	}
	data, err := domain.CancelCallback(t.ID)
	if err != nil {
		return nil
	}
	return [][]transport.Button{{{Text: "Cancel ticket", Data: data}}}
}

// StatusChangeText is the creator notification for a committed change.
func StatusChangeText(t *domain.Ticket, old domain.TicketStatus, actorName, remarks string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket %s: %s -> %s", t.ID, old.Label(), t.Status.Label())
	if actorName != "" {
		fmt.Fprintf(&b, " by %s", actorName)
	}
	if remarks != "" {
		fmt.Fprintf(&b, "\nRemarks: %s", remarks)
	}
	return b.String()
}

// DescribeError turns an engine error into a message for the chat actor.
func DescribeError(err error) string {
	if err == nil {
		return ""
	}
	var de *errorutil.DomainError
	if !errors.As(err, &de) {
		return "Something went wrong. Please try again."
	}
	switch de.Code {
	case errorutil.CodeNotFound:
		if id, ok := de.Details["ticket_id"].(string); ok {
			return fmt.Sprintf("Ticket %s was not found.", id)
		}
		return "Not found."
	case errorutil.CodeAlreadyTerminal:
		return fmt.Sprintf("Nothing to do: %s.", de.Message)
	case errorutil.CodeOwnershipConflict:
		if name, ok := de.Details["owner_name"].(string); ok && name != "" {
			return fmt.Sprintf("This ticket is already handled by %s.", name)
		}
		return "This ticket is already handled by another staff member."
	case errorutil.CodeNotTicketOwner:
		return "Only the person who opened this ticket can do that."
	case errorutil.CodeForbidden, errorutil.CodeUnauthorized:
		return "You are not allowed to do that."
	case errorutil.CodeValidation:
		return capitalize(de.Message) + "."
	case errorutil.CodeConflict:
		return capitalize(de.Message) + "."
	case errorutil.CodeNoActiveConversation:
		return "You have no ticket in progress. Send /new to start one."
	case errorutil.CodeConfiguration:
		return "The helpdesk is not configured for this request. Please contact an administrator."
	}
	return "Could not save your change. Please try again."
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func nonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
