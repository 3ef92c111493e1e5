package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaffStatusCallbackRoundTrip(t *testing.T) {
	data, err := StaffStatusCallback("ISSUE-20260105-0001", TicketStatusResolvedWithIssues)
	require.NoError(t, err)
	assert.Equal(t, "st:ISSUE-20260105-0001:rwi", data)

	action, err := ParseCallback(data)
	require.NoError(t, err)
	assert.Equal(t, CallbackStaffStatus, action.Kind)
	assert.Equal(t, "ISSUE-20260105-0001", action.TicketID)
	assert.Equal(t, TicketStatusResolvedWithIssues, action.Status)
}

func TestParseCallbackKinds(t *testing.T) {
	action, err := ParseCallback("cf:ISSUE-20260105-0001:no")
	require.NoError(t, err)
	assert.Equal(t, CallbackConfirm, action.Kind)
	assert.False(t, action.Confirmed)

	action, err = ParseCallback("cancel:ISSUE-20260105-0001")
	require.NoError(t, err)
	assert.Equal(t, CallbackCancel, action.Kind)
	assert.Equal(t, "ISSUE-20260105-0001", action.TicketID)

	action, err = ParseCallback("wz:BRANCH:Head Office:2")
	require.NoError(t, err)
	assert.Equal(t, StepBranch, action.Step)
	assert.Equal(t, "Head Office:2", action.Value)

	action, err = ParseCallback(RemarksSkipCallback())
	require.NoError(t, err)
	assert.Equal(t, CallbackRemarks, action.Kind)
}

func TestParseCallbackRejectsGarbage(t *testing.T) {
	for _, data := range []string{
		"",
		"st:ISSUE-20260105-0001",
		"st:ISSUE-20260105-0001:zz",
		"cf:ISSUE-20260105-0001:maybe",
		"rq:later",
		"wz:High",
		"wz:URGENCY:",
		"xx:1",
		strings.Repeat("a", MaxCallbackBytes+1),
	} {
		_, err := ParseCallback(data)
		assert.Error(t, err, data)
	}
}

func TestEncodeEnforcesLimit(t *testing.T) {
	_, err := WizardCallback(StepUrgency, strings.Repeat("x", MaxCallbackBytes-10))
	assert.ErrorIs(t, err, ErrCallbackTooLong)

	_, err = StaffStatusCallback("ISSUE-20260105-0001", TicketStatusPending)
	assert.Error(t, err)
}
