package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
)

func (f *fixture) answer(text string) WizardResult {
	return f.wizard.Handle(f.ctx, creatorChat, creatorChat, creatorName, text)
}

func (f *fixture) step(t *testing.T) domain.WizardStep {
	t.Helper()
	conv, ok := f.conversations.Get(creatorChat)
	require.True(t, ok)
	return conv.Step
}

func TestWizardCollectsTicket(t *testing.T) {
	f := newFixture(t)
	f.wizard.Begin(creatorChat, creatorChat, creatorName)

	for _, input := range []string{"hq", "IT", "hardware", "High", "Printer jammed on floor 2", ContactSelf} {
		f.answer(input)
	}
	assert.Equal(t, domain.StepConfirmation, f.step(t))

	result := f.answer("yes")
	require.NotNil(t, result.Ticket)
	assert.Equal(t, "HQ", result.Ticket.Branch)
	assert.Equal(t, "Hardware", result.Ticket.Category)
	assert.Equal(t, creatorName, result.Ticket.ContactPerson)
	assert.Equal(t, "Printer jammed on floor 2", result.Ticket.Description)
	assert.Contains(t, result.Reply.Text, result.Ticket.ID)
	assert.False(t, f.wizard.Active(creatorChat))

	f.actionCard(t, result.Ticket.ID)
}

func TestWizardRejectsUnknownOption(t *testing.T) {
	f := newFixture(t)
	f.wizard.Begin(creatorChat, creatorChat, creatorName)

	result := f.answer("Mars")
	assert.Contains(t, result.Reply.Text, `"Mars" is not a valid branch`)
	assert.Equal(t, domain.StepBranch, f.step(t))
	assert.Len(t, result.Reply.Buttons, 2)
}

func TestWizardButtonsCarryOptions(t *testing.T) {
	f := newFixture(t)
	reply := f.wizard.Begin(creatorChat, creatorChat, creatorName)

	require.Len(t, reply.Buttons, 2)
	action, err := domain.ParseCallback(reply.Buttons[0][0].Data)
	require.NoError(t, err)
	assert.Equal(t, domain.CallbackWizard, action.Kind)
	assert.Equal(t, domain.StepBranch, action.Step)
	assert.Equal(t, "HQ", action.Value)
}

func TestWizardIgnoresRepeatedButtonTap(t *testing.T) {
	f := newFixture(t)
	f.wizard.Begin(creatorChat, creatorChat, creatorName)
	f.answer("hq")
	f.answer("IT")
	urgency := f.answer("hardware").Reply

	var high domain.CallbackAction
	for _, row := range urgency.Buttons {
		for _, button := range row {
			action, err := domain.ParseCallback(button.Data)
			require.NoError(t, err)
			if action.Value == "High" {
				high = action
			}
		}
	}
	require.Equal(t, domain.StepUrgency, high.Step)

	f.wizard.HandleButton(f.ctx, creatorChat, creatorChat, creatorName, high.Step, high.Value)
	result := f.wizard.HandleButton(f.ctx, creatorChat, creatorChat, creatorName, high.Step, high.Value)

	assert.Contains(t, result.Reply.Text, "earlier question")
	assert.Equal(t, domain.StepDescription, f.step(t))
	conv, ok := f.conversations.Get(creatorChat)
	require.True(t, ok)
	assert.Equal(t, "High", conv.Fields[domain.FieldUrgency])
	assert.Empty(t, conv.Fields[domain.FieldDescription])
}

func TestWizardStartsOnFirstMessage(t *testing.T) {
	f := newFixture(t)

	result := f.answer("my printer is broken")
	assert.Contains(t, result.Reply.Text, "Which branch")
	assert.Equal(t, domain.StepBranch, f.step(t))
}

func TestWizardBeginTwiceKeepsProgress(t *testing.T) {
	f := newFixture(t)
	f.wizard.Begin(creatorChat, creatorChat, creatorName)
	f.answer("North")

	reply := f.wizard.Begin(creatorChat, creatorChat, creatorName)
	assert.Contains(t, reply.Text, "already have a ticket in progress")
	assert.Equal(t, domain.StepDepartment, f.step(t))
}

func TestWizardDeclineDiscards(t *testing.T) {
	f := newFixture(t)
	f.wizard.Begin(creatorChat, creatorChat, creatorName)
	for _, input := range []string{"HQ", "IT", "Software", "Low", "VPN drops", "Dana"} {
		f.answer(input)
	}

	result := f.answer("maybe")
	assert.Contains(t, result.Reply.Text, "yes or no")
	assert.Equal(t, domain.StepConfirmation, f.step(t))

	result = f.answer("no")
	assert.Nil(t, result.Ticket)
	assert.False(t, f.wizard.Active(creatorChat))
	assert.Empty(t, f.rec.Messages(actionChat))
}

func TestWizardSubmissionFailureKeepsConversation(t *testing.T) {
	f := newFixture(t)
	f.wizard.Begin(creatorChat, creatorChat, creatorName)
	for _, input := range []string{"HQ", "IT", "Software", "Low", "VPN drops", "Dana"} {
		f.answer(input)
	}

	f.store.failCreates(errors.New("connection reset"))
	result := f.answer("yes")
	assert.Nil(t, result.Ticket)
	assert.Contains(t, result.Reply.Text, "Could not save")
	assert.Equal(t, domain.StepConfirmation, f.step(t))

	f.store.failCreates(nil)
	result = f.answer("yes")
	require.NotNil(t, result.Ticket)
	assert.Equal(t, "Dana", result.Ticket.ContactPerson)
}

func TestWizardCancel(t *testing.T) {
	f := newFixture(t)

	assert.Contains(t, f.wizard.Cancel(creatorChat).Text, "no ticket in progress")

	f.wizard.Begin(creatorChat, creatorChat, creatorName)
	assert.Contains(t, f.wizard.Cancel(creatorChat).Text, "cancelled")
	assert.False(t, f.wizard.Active(creatorChat))
}
