package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/pkg/util/errorutil"
)

func TestStaffButtonsFollowStatus(t *testing.T) {
	ticket := routedTicket()

	rows := StaffButtons(ticket)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], 2)
	action, err := domain.ParseCallback(rows[0][0].Data)
	require.NoError(t, err)
	assert.Equal(t, domain.CallbackStaffStatus, action.Kind)
	assert.Equal(t, ticket.ID, action.TicketID)
	assert.Equal(t, domain.TicketStatusInProcess, action.Status)

	ticket.Status = domain.TicketStatusResolved
	rows = StaffButtons(ticket)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.TicketStatusCancelledStaff.Label(), rows[0][0].Text)

	ticket.Status = domain.TicketStatusConfirmed
	assert.Nil(t, StaffButtons(ticket))
}

func TestCreatorTicketButtons(t *testing.T) {
	ticket := routedTicket()
	require.Len(t, CreatorTicketButtons(ticket), 1)

	ticket.Status = domain.TicketStatusResolved
	assert.Nil(t, CreatorTicketButtons(ticket))
	ticket.Status = domain.TicketStatusCancelledStaff
	assert.Nil(t, CreatorTicketButtons(ticket))
}

func TestDescribeError(t *testing.T) {
	assert.Equal(t, "This ticket is already handled by Sam.",
		DescribeError(errorutil.NewOwnershipConflict("ISSUE-20260105-0001", "S1", "Sam")))
	assert.Equal(t, "Ticket ISSUE-20260105-0001 was not found.",
		DescribeError(errorutil.NewNotFound("ticket", map[string]any{"ticket_id": "ISSUE-20260105-0001"})))
	assert.Equal(t, "Remarks are required for this status.",
		DescribeError(errorutil.NewValidationError("remarks are required for this status", nil)))
	assert.Equal(t, "Something went wrong. Please try again.", DescribeError(errors.New("boom")))
	assert.Empty(t, DescribeError(nil))
}

func TestTicketCard(t *testing.T) {
	ticket := routedTicket()
	owner, name, remarks := "S1", "Sam", "Replaced toner"
	ticket.AssignedTo, ticket.AssignedToName, ticket.Remarks = &owner, &name, &remarks

	card := TicketCard(ticket)
	assert.Contains(t, card, "Ticket ISSUE-20260105-0001\n")
	assert.Contains(t, card, "Handled by: Sam")
	assert.Contains(t, card, "Remarks: Replaced toner")
	assert.Contains(t, card, "From: Ana")
}
