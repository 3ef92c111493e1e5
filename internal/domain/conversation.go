package domain

import "time"

// WizardStep is the position of a user in the ticket wizard.
type WizardStep string

const (
	StepBranch       WizardStep = "BRANCH"
	StepDepartment   WizardStep = "DEPARTMENT"
	StepCategory     WizardStep = "CATEGORY"
	StepUrgency      WizardStep = "URGENCY"
	StepDescription  WizardStep = "DESCRIPTION"
	StepContact      WizardStep = "CONTACT"
	StepConfirmation WizardStep = "CONFIRMATION"
)

// Field names collected by the wizard.
const (
	FieldBranch        = "branch"
	FieldDepartment    = "department"
	FieldCategory      = "category"
	FieldUrgency       = "urgency"
	FieldDescription   = "description"
	FieldContactPerson = "contact_person"
)

// Conversation is the in-memory wizard state of one user.
type Conversation struct {
	UserID         string
	ChatID         string
	DisplayName    string
	Step           WizardStep
	Fields         map[string]string
	StartedAt      time.Time
	LastActivityAt time.Time
}

// Clone copies the conversation including its field map.
func (c Conversation) Clone() Conversation {
	fields := make(map[string]string, len(c.Fields))
	for k, v := range c.Fields {
		fields[k] = v
	}
	c.Fields = fields
	return c
}
