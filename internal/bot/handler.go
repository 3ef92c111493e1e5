package bot

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/config"
	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/observability"
	"github.com/spec-kit/helpdesk-bot/internal/persistence"
	"github.com/spec-kit/helpdesk-bot/internal/service"
	"github.com/spec-kit/helpdesk-bot/internal/transport"
	"github.com/spec-kit/helpdesk-bot/pkg/util/errorutil"
)

// updateFlagTTL is how long an update ID is remembered for redelivery detection.
const updateFlagTTL = 24 * time.Hour

const myTicketsLimit = 10

var ticketIDPattern = regexp.MustCompile(`ISSUE-\d{8}-\d{4}`)

const helpText = `Helpdesk bot
/new - open a ticket
/cancel - drop the ticket you are writing
/mytickets - your recent tickets
/help - this message

Support staff:
/status <ticket> <status> [remarks] - change a ticket
/status <status> [remarks] - as a reply to a ticket message
/skip - skip the remarks you are asked for
Statuses: ip (in process), rv (resolved), rwi (resolved with issues), cs (cancelled)`

// Handler classifies inbound updates and dispatches them to the engine.
type Handler struct {
	transport transport.Transport
	wizard    *service.WizardService
	tickets   *service.TicketService
	remarks   *service.RemarksCoordinator
	routing   *service.RoutingEngine
	staff     config.StaffConfig
	flags     persistence.FlagStore
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// HandlerDependencies bundles collaborators for the handler.
type HandlerDependencies struct {
	Transport transport.Transport
	Wizard    *service.WizardService
	Tickets   *service.TicketService
	Remarks   *service.RemarksCoordinator
	Routing   *service.RoutingEngine
	Staff     config.StaffConfig
	Flags     persistence.FlagStore
	Logger    *zap.Logger
	Metrics   *observability.Metrics
}

// NewHandler constructs the handler.
func NewHandler(deps HandlerDependencies) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		transport: deps.Transport,
		wizard:    deps.Wizard,
		tickets:   deps.Tickets,
		remarks:   deps.Remarks,
		routing:   deps.Routing,
		staff:     deps.Staff,
		flags:     deps.Flags,
		logger:    logger,
		metrics:   deps.Metrics,
	}
}

// Handle processes one update. Redelivered updates are dropped.
func (h *Handler) Handle(ctx context.Context, u transport.Update) error {
	if h.duplicate(ctx, u) {
		return nil
	}
	if u.IsCallback() {
		return h.handleCallback(ctx, u)
	}
	text := strings.TrimSpace(u.Text)
	if text == "" {
		return nil
	}
	if strings.HasPrefix(text, "/") {
		return h.handleCommand(ctx, u, text)
	}

	outcome := h.remarks.Resolve(ctx, u.ChatID, u.SenderID, h.actorName(u), text)
	if outcome.Handled {
		return nil
	}
	if !u.Private {
		return nil
	}
	result := h.wizard.Handle(ctx, u.SenderID, u.ChatID, u.SenderName, text)
	return h.reply(ctx, u.ChatID, result.Reply)
}

func (h *Handler) duplicate(ctx context.Context, u transport.Update) bool {
	if h.flags == nil || u.ID == 0 {
		return false
	}
	first, err := h.flags.SetOnce(ctx, "update:"+strconv.Itoa(u.ID), updateFlagTTL)
	if err != nil {
		h.logger.Warn("update dedupe unavailable", zap.Int("update_id", u.ID), zap.Error(err))
		return false
	}
	if !first {
		h.metrics.RecordDuplicate()
		h.logger.Debug("duplicate update dropped", zap.Int("update_id", u.ID))
		return true
	}
	return false
}

func (h *Handler) handleCommand(ctx context.Context, u transport.Update, text string) error {
	command, args := splitCommand(text)
	switch command {
	case "start", "new":
		if !u.Private {
			return h.say(ctx, u.ChatID, "Please message me privately to open a ticket.")
		}
		return h.reply(ctx, u.ChatID, h.wizard.Begin(u.SenderID, u.ChatID, u.SenderName))
	case "cancel":
		if !u.Private {
			return nil
		}
		return h.reply(ctx, u.ChatID, h.wizard.Cancel(u.SenderID))
	case "skip":
		if !h.remarks.Cancel(ctx, u.ChatID, u.SenderID) {
			return h.say(ctx, u.ChatID, "Nothing is waiting for your remarks.")
		}
		return nil
	case "help":
		return h.say(ctx, u.ChatID, helpText)
	case "mytickets":
		return h.myTickets(ctx, u)
	case "status":
		return h.statusCommand(ctx, u, text, args)
	}
	return h.say(ctx, u.ChatID, "Unknown command. Send /help for the list.")
}

func (h *Handler) myTickets(ctx context.Context, u transport.Update) error {
	tickets, err := h.tickets.ListCreatorTickets(ctx, u.SenderID, myTicketsLimit)
	if err != nil {
		return h.say(ctx, u.ChatID, service.DescribeError(err))
	}
	if len(tickets) == 0 {
		return h.say(ctx, u.ChatID, "You have no tickets yet. Send /new to open one.")
	}
	lines := make([]string, 0, len(tickets)+1)
	lines = append(lines, "Your recent tickets:")
	for _, t := range tickets {
		lines = append(lines, fmt.Sprintf("%s | %s | %s", t.ID, t.Status.Label(), t.Category))
	}
	return h.say(ctx, u.ChatID, strings.Join(lines, "\n"))
}

// statusCommand handles both "/status <id> <status> [remarks]" and, as a reply to a ticket
// message, "/status <status> [remarks]".
func (h *Handler) statusCommand(ctx context.Context, u transport.Update, text string, args []string) error {
	if !h.staff.IsStaff(u.SenderID) {
		return h.say(ctx, u.ChatID, service.DescribeError(errorutil.NewForbidden("staff only")))
	}

	var ticketID string
	// command and status token precede the remarks
	consumed := 2
	switch {
	case len(args) > 0 && ticketIDPattern.MatchString(args[0]) && ticketIDPattern.FindString(args[0]) == args[0]:
		ticketID, args = args[0], args[1:]
		consumed++
	case u.ReplyToText != "":
		ticketID = ticketIDPattern.FindString(u.ReplyToText)
	}
	if ticketID == "" || len(args) == 0 {
		return h.say(ctx, u.ChatID, "Usage: /status <ticket> <status> [remarks], or reply to a ticket with /status <status> [remarks].")
	}

	status, ok := domain.ParseStatus(args[0])
	if !ok {
		return h.say(ctx, u.ChatID, fmt.Sprintf("Unknown status %q. Use ip, rv, rwi or cs.", args[0]))
	}
	remarks := remainderAfter(text, consumed)

	notice, err := h.staffChange(ctx, u, ticketID, status, remarks, transport.MessageRef{})
	if err != nil {
		return h.say(ctx, u.ChatID, fmt.Sprintf("%s: %s", ticketID, service.DescribeError(err)))
	}
	if notice == "" {
		return nil
	}
	return h.say(ctx, u.ChatID, notice)
}

// staffChange applies a staff status change, or enters the remarks flow when remarks are needed
// and missing. The returned notice is empty when the remarks coordinator already replied.
func (h *Handler) staffChange(ctx context.Context, u transport.Update, ticketID string, status domain.TicketStatus, remarks string, source transport.MessageRef) (string, error) {
	req := service.TransitionRequest{
		TicketID:  ticketID,
		NewStatus: status,
		ActorID:   u.SenderID,
		ActorName: h.actorName(u),
		Remarks:   remarks,
		Origin:    service.OriginStaff,
	}

	if status.RequiresRemarks() && remarks == "" {
		ticket, err := h.tickets.Precheck(ctx, req)
		if err != nil {
			return "", err
		}
		if ticket.Status == status {
			return fmt.Sprintf("Ticket %s is already %s.", ticket.ID, status.Label()), nil
		}
		_, err = h.remarks.Enqueue(ctx, u.ChatID, u.SenderID, service.RemarksRequest{
			TicketID:        ticket.ID,
			RequestedStatus: status,
			PriorStatus:     ticket.Status,
			Source:          source,
		})
		if err != nil {
			h.logger.Warn("remarks prompt not delivered", zap.String("ticket_id", ticketID), zap.Error(err))
		}
		return "", nil
	}

	result, err := h.tickets.Transition(ctx, req)
	if err != nil {
		return "", err
	}
	if !result.Changed {
		return fmt.Sprintf("Ticket %s is already %s.", result.Ticket.ID, result.Ticket.Status.Label()), nil
	}
	h.routing.RefreshCard(ctx, result.Ticket, source)
	return fmt.Sprintf("Ticket %s is now %s.", result.Ticket.ID, result.Ticket.Status.Label()), nil
}

func (h *Handler) handleCallback(ctx context.Context, u transport.Update) error {
	action, err := domain.ParseCallback(u.CallbackData)
	if err != nil {
		h.logger.Debug("unknown callback", zap.String("data", u.CallbackData), zap.Error(err))
		return h.answer(ctx, u, "This button is no longer valid.")
	}

	switch action.Kind {
	case domain.CallbackStaffStatus:
		if !h.staff.IsStaff(u.SenderID) {
			return h.answer(ctx, u, service.DescribeError(errorutil.NewForbidden("staff only")))
		}
		source := transport.MessageRef{ChatID: u.ChatID, MessageID: u.MessageID}
		notice, err := h.staffChange(ctx, u, action.TicketID, action.Status, "", source)
		if err != nil {
			return h.answer(ctx, u, service.DescribeError(err))
		}
		if notice == "" {
			notice = "Reply with your remarks."
		}
		return h.answer(ctx, u, notice)

	case domain.CallbackConfirm:
		next := domain.TicketStatusInProcess
		text := fmt.Sprintf("Ticket %s was reopened. The assigned staff member will follow up.", action.TicketID)
		if action.Confirmed {
			next = domain.TicketStatusConfirmed
			text = fmt.Sprintf("Thanks, ticket %s is confirmed as resolved.", action.TicketID)
		}
		return h.creatorChange(ctx, u, action.TicketID, next, text)

	case domain.CallbackCancel:
		return h.creatorChange(ctx, u, action.TicketID, domain.TicketStatusCancelledUser,
			fmt.Sprintf("Ticket %s was cancelled.", action.TicketID))

	case domain.CallbackWizard:
		if err := h.answer(ctx, u, ""); err != nil {
			h.logger.Debug("callback answer failed", zap.Error(err))
		}
		if !u.Private {
			return nil
		}
		result := h.wizard.HandleButton(ctx, u.SenderID, u.ChatID, u.SenderName, action.Step, action.Value)
		return h.reply(ctx, u.ChatID, result.Reply)

	case domain.CallbackRemarks:
		if !h.remarks.Cancel(ctx, u.ChatID, u.SenderID) {
			return h.answer(ctx, u, "Nothing is waiting for your remarks.")
		}
		return h.answer(ctx, u, "Skipped.")
	}
	return h.answer(ctx, u, "This button is no longer valid.")
}

// creatorChange applies a creator action and replaces the clicked message with text.
func (h *Handler) creatorChange(ctx context.Context, u transport.Update, ticketID string, next domain.TicketStatus, text string) error {
	result, err := h.tickets.Transition(ctx, service.TransitionRequest{
		TicketID:  ticketID,
		NewStatus: next,
		ActorID:   u.SenderID,
		ActorName: u.SenderName,
		Origin:    service.OriginCreator,
	})
	if err != nil {
		return h.answer(ctx, u, service.DescribeError(err))
	}
	if !result.Changed {
		text = fmt.Sprintf("Ticket %s is already %s.", result.Ticket.ID, result.Ticket.Status.Label())
	}
	if err := h.transport.EditMessage(ctx, u.ChatID, u.MessageID, text, nil); err != nil {
		h.logger.Debug("creator message not edited", zap.String("ticket_id", ticketID), zap.Error(err))
	}
	return h.answer(ctx, u, "Done.")
}

func (h *Handler) actorName(u transport.Update) string {
	if name, ok := h.staff.Names[u.SenderID]; ok && name != "" {
		return name
	}
	if u.SenderName != "" {
		return u.SenderName
	}
	return u.SenderID
}

func (h *Handler) reply(ctx context.Context, chatID string, r service.Reply) error {
	_, err := h.transport.SendWithButtons(ctx, chatID, r.Text, r.Buttons)
	return err
}

func (h *Handler) say(ctx context.Context, chatID, text string) error {
	_, err := h.transport.SendDirect(ctx, chatID, text)
	return err
}

func (h *Handler) answer(ctx context.Context, u transport.Update, text string) error {
	return h.transport.AnswerCallback(ctx, u.CallbackID, text)
}

// remainderAfter returns text after its first n whitespace-separated tokens, keeping the
// spacing and line breaks of the rest.
func remainderAfter(text string, n int) string {
	rest := text
	for i := 0; i < n; i++ {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			return ""
		}
		rest = rest[end:]
	}
	return strings.TrimSpace(rest)
}

// splitCommand returns the lower-cased command without its slash or @bot suffix, and its arguments.
func splitCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	command := strings.TrimPrefix(fields[0], "/")
	if at := strings.Index(command, "@"); at >= 0 {
		command = command[:at]
	}
	return strings.ToLower(command), fields[1:]
}
