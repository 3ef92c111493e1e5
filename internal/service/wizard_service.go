package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/config"
	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/transport"
)

// ContactSelf is the contact-step answer meaning "use my own name".
const ContactSelf = "@me"

const maxDescriptionRunes = 2000

// WizardService walks a user through opening a ticket.
type WizardService struct {
	conversations *ConversationStore
	tickets       *TicketService
	catalog       config.CatalogConfig
	logger        *zap.Logger
	locks         *keyLock
}

// WizardDependencies bundles collaborators for the wizard.
type WizardDependencies struct {
	Conversations *ConversationStore
	Tickets       *TicketService
	Catalog       config.CatalogConfig
	Logger        *zap.Logger
}

// WizardResult is what one wizard input produced. Ticket is set once a submission succeeds.
type WizardResult struct {
	Reply  Reply
	Ticket *domain.Ticket
}

// NewWizardService constructs the wizard.
func NewWizardService(deps WizardDependencies) *WizardService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WizardService{
		conversations: deps.Conversations,
		tickets:       deps.Tickets,
		catalog:       deps.Catalog,
		logger:        logger,
		locks:         newKeyLock(),
	}
}

// Begin starts a wizard, or repeats the current question when one is already running.
func (w *WizardService) Begin(userID, chatID, displayName string) Reply {
	unlock := w.locks.Lock(userID)
	defer unlock()

	conv, created := w.conversations.Start(userID, chatID, displayName)
	if created {
		return w.withIntro("Let's open a new ticket.", w.prompt(conv))
	}
	return w.withIntro("You already have a ticket in progress. Send /cancel to drop it.", w.prompt(conv))
}

// Active reports whether the user has a live wizard.
func (w *WizardService) Active(userID string) bool {
	_, ok := w.conversations.Get(userID)
	return ok
}

// Handle feeds one typed answer into the user's wizard. Without a live conversation a new one is
// started and the input is not treated as an answer.
func (w *WizardService) Handle(ctx context.Context, userID, chatID, displayName, input string) WizardResult {
	return w.handle(ctx, userID, chatID, displayName, "", input)
}

// HandleButton feeds a button answer into the wizard. A button that belongs to another question,
// such as a double tap or a stale keyboard, is ignored and the current question is asked again.
func (w *WizardService) HandleButton(ctx context.Context, userID, chatID, displayName string, step domain.WizardStep, value string) WizardResult {
	return w.handle(ctx, userID, chatID, displayName, step, value)
}

func (w *WizardService) handle(ctx context.Context, userID, chatID, displayName string, step domain.WizardStep, input string) WizardResult {
	unlock := w.locks.Lock(userID)
	defer unlock()

	conv, ok := w.conversations.Get(userID)
	if !ok {
		conv, _ = w.conversations.Start(userID, chatID, displayName)
		return WizardResult{Reply: w.withIntro("Let's open a new ticket.", w.prompt(conv))}
	}
	if step != "" && step != conv.Step {
		w.logger.Debug("stale wizard button ignored",
			zap.String("user_id", userID),
			zap.String("button_step", string(step)),
			zap.String("step", string(conv.Step)))
		return w.reprompt(conv, "That button belongs to an earlier question.")
	}

	input = strings.TrimSpace(input)
	switch conv.Step {
	case domain.StepBranch:
		return w.choose(conv, input, w.catalog.Branches, domain.FieldBranch, domain.StepDepartment, "branch")
	case domain.StepDepartment:
		return w.choose(conv, input, w.catalog.Departments, domain.FieldDepartment, domain.StepCategory, "department")
	case domain.StepCategory:
		return w.choose(conv, input, w.catalog.Categories, domain.FieldCategory, domain.StepUrgency, "category")
	case domain.StepUrgency:
		return w.choose(conv, input, w.catalog.Urgencies, domain.FieldUrgency, domain.StepDescription, "urgency")
	case domain.StepDescription:
		if input == "" || utf8.RuneCountInString(input) > maxDescriptionRunes {
			return w.reprompt(conv, fmt.Sprintf("Please describe the issue in up to %d characters.", maxDescriptionRunes))
		}
		return w.advance(conv, domain.FieldDescription, input, domain.StepContact)
	case domain.StepContact:
		contact := input
		if isSelf(input) {
			contact = nonEmpty(displayName, conv.DisplayName, userID)
		}
		if contact == "" {
			return w.reprompt(conv, "Please tell me who we should contact.")
		}
		return w.advance(conv, domain.FieldContactPerson, contact, domain.StepConfirmation)
	case domain.StepConfirmation:
		return w.confirm(ctx, conv, input)
	}
	return WizardResult{Reply: w.prompt(conv)}
}

// Cancel aborts the user's wizard.
func (w *WizardService) Cancel(userID string) Reply {
	unlock := w.locks.Lock(userID)
	defer unlock()

	if _, ok := w.conversations.End(userID); !ok {
		return Reply{Text: "You have no ticket in progress."}
	}
	return Reply{Text: "Ticket creation cancelled. Send /new to start again."}
}

func (w *WizardService) choose(conv domain.Conversation, input string, options []string, field string, next domain.WizardStep, label string) WizardResult {
	value, ok := matchOption(input, options)
	if !ok {
		return w.reprompt(conv, fmt.Sprintf("%q is not a valid %s.", input, label))
	}
	return w.advance(conv, field, value, next)
}

func (w *WizardService) advance(conv domain.Conversation, field, value string, next domain.WizardStep) WizardResult {
	if err := w.conversations.Advance(conv.UserID, field, value, next); err != nil {
		return WizardResult{Reply: Reply{Text: DescribeError(err)}}
	}
	conv.Fields[field] = value
	conv.Step = next
	return WizardResult{Reply: w.prompt(conv)}
}

func (w *WizardService) confirm(ctx context.Context, conv domain.Conversation, input string) WizardResult {
	switch strings.ToLower(input) {
	case "yes", "y", "confirm", "submit":
	case "no", "n":
		w.conversations.End(conv.UserID)
		return WizardResult{Reply: Reply{Text: "Ticket discarded. Send /new to start again."}}
	default:
		return w.reprompt(conv, "Please answer yes or no.")
	}

	ticket, err := w.tickets.CreateTicket(ctx, TicketCreateInput{
		CreatorID:     conv.UserID,
		CreatorName:   conv.DisplayName,
		Branch:        conv.Fields[domain.FieldBranch],
		Department:    conv.Fields[domain.FieldDepartment],
		Category:      conv.Fields[domain.FieldCategory],
		Urgency:       conv.Fields[domain.FieldUrgency],
		Description:   conv.Fields[domain.FieldDescription],
		ContactPerson: conv.Fields[domain.FieldContactPerson],
	})
	if err != nil {
		w.logger.Error("ticket submission failed", zap.String("user_id", conv.UserID), zap.Error(err))
		return w.reprompt(conv, DescribeError(err))
	}
	w.conversations.End(conv.UserID)
	return WizardResult{
		Reply: Reply{
			Text:    fmt.Sprintf("Ticket %s submitted. We will keep you posted here.", ticket.ID),
			Buttons: CreatorTicketButtons(ticket),
		},
		Ticket: ticket,
	}
}

func (w *WizardService) reprompt(conv domain.Conversation, reason string) WizardResult {
	return WizardResult{Reply: w.withIntro(reason, w.prompt(conv))}
}

func (w *WizardService) withIntro(intro string, reply Reply) Reply {
	reply.Text = intro + "\n" + reply.Text
	return reply
}

func (w *WizardService) prompt(conv domain.Conversation) Reply {
	switch conv.Step {
	case domain.StepBranch:
		return optionsReply(conv.Step, "Which branch are you at?", w.catalog.Branches)
	case domain.StepDepartment:
		return optionsReply(conv.Step, "Which department are you in?", w.catalog.Departments)
	case domain.StepCategory:
		return optionsReply(conv.Step, "What kind of problem is it?", w.catalog.Categories)
	case domain.StepUrgency:
		return optionsReply(conv.Step, "How urgent is it?", w.catalog.Urgencies)
	case domain.StepDescription:
		return Reply{Text: "Describe the problem in one message."}
	case domain.StepContact:
		return optionsReply(conv.Step, "Who should we contact? Type a name, or tap the button to use yours.", []string{ContactSelf})
	case domain.StepConfirmation:
		return optionsReply(conv.Step, summary(conv)+"\n\nSubmit this ticket?", []string{"yes", "no"})
	}
	return Reply{Text: "Send /new to open a ticket."}
}

func optionsReply(step domain.WizardStep, text string, options []string) Reply {
	var rows [][]transport.Button
	for _, option := range options {
		data, err := domain.WizardCallback(step, option)
		if err != nil {
			continue
		}
		label := option
		if option == ContactSelf {
			label = "Use my name"
		}
		rows = append(rows, []transport.Button{{Text: label, Data: data}})
	}
	return Reply{Text: text, Buttons: rows}
}

func summary(conv domain.Conversation) string {
	f := conv.Fields
	return strings.Join([]string{
		"Branch: " + f[domain.FieldBranch],
		"Department: " + f[domain.FieldDepartment],
		"Category: " + f[domain.FieldCategory],
		"Urgency: " + f[domain.FieldUrgency],
		"Contact: " + f[domain.FieldContactPerson],
		"Description: " + f[domain.FieldDescription],
	}, "\n")
}

func matchOption(input string, options []string) (string, bool) {
	for _, option := range options {
		if strings.EqualFold(strings.TrimSpace(option), input) {
			return option, true
		}
	}
	return "", false
}

func isSelf(input string) bool {
	return strings.EqualFold(input, ContactSelf) || strings.EqualFold(input, "self")
}
