package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/config"
	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/observability"
	"github.com/spec-kit/helpdesk-bot/internal/transport"
	"github.com/spec-kit/helpdesk-bot/pkg/util/errorutil"
)

// Delivery kinds used for metrics and logs.
const (
	deliveryAction     = "action"
	deliveryMonitoring = "monitoring"
	deliveryCreator    = "creator"
	deliveryDigest     = "digest"
)

// RoutingEngine decides where ticket messages go and delivers them.
type RoutingEngine struct {
	transport transport.Transport
	cfg       config.RoutingConfig
	stats     *StatsService
	logger    *zap.Logger
	metrics   *observability.Metrics

	// cards remembers the action card of every open ticket routed by this process. Cards of
	// tickets that reached a terminal status move to retired, which keeps only the newest
	// retiredCardLimit entries.
	mu           sync.Mutex
	cards        map[string]transport.MessageRef
	retired      map[string]transport.MessageRef
	retiredOrder []string
}

const retiredCardLimit = 256

// RoutingDependencies bundles collaborators for the routing engine.
type RoutingDependencies struct {
	Transport transport.Transport
	Routing   config.RoutingConfig
	Stats     *StatsService
	Logger    *zap.Logger
	Metrics   *observability.Metrics
}

// RouteResult holds the messages a ticket was delivered as. Zero refs mean no delivery.
type RouteResult struct {
	Action     transport.MessageRef
	Monitoring transport.MessageRef
}

// NewRoutingEngine constructs the engine.
func NewRoutingEngine(deps RoutingDependencies) *RoutingEngine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoutingEngine{
		transport: deps.Transport,
		cfg:       deps.Routing,
		stats:     deps.Stats,
		logger:    logger,
		metrics:   deps.Metrics,
		cards:     make(map[string]transport.MessageRef),
		retired:   make(map[string]transport.MessageRef),
	}
}

// ActionChannel resolves the staff channel for a branch, falling back to the legacy channel.
func (r *RoutingEngine) ActionChannel(branch string) (string, error) {
	if channel, ok := r.cfg.BranchChannels[branch]; ok && channel != "" {
		return channel, nil
	}
	for code, channel := range r.cfg.BranchChannels {
		if strings.EqualFold(code, branch) && channel != "" {
			return channel, nil
		}
	}
	if r.cfg.LegacyChannel != "" {
		return r.cfg.LegacyChannel, nil
	}
	return "", errorutil.NewConfigurationError("no channel configured for branch",
		map[string]any{"branch": branch})
}

// Route posts the action card and the monitoring copy. The two deliveries are independent;
// a monitoring failure is logged and never returned.
func (r *RoutingEngine) Route(ctx context.Context, ticket *domain.Ticket) (RouteResult, error) {
	var result RouteResult
	var actionErr error

	channel, err := r.ActionChannel(ticket.Branch)
	if err != nil {
		actionErr = err
		r.logger.Error("ticket not routed",
			zap.String("ticket_id", ticket.ID),
			zap.String("branch", ticket.Branch),
			zap.Error(err))
	} else {
		ref, err := r.transport.SendWithButtons(ctx, channel, TicketCard(ticket), StaffButtons(ticket))
		r.record(deliveryAction, err)
		if err != nil {
			actionErr = fmt.Errorf("deliver ticket %s to %s: %w", ticket.ID, channel, err)
			r.logger.Warn("action delivery failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		} else {
			result.Action = ref
			r.trackCard(ticket.ID, ref)
		}
	}

	if channel := r.monitoringChannel(); channel != "" {
		ref, err := r.transport.SendDirect(ctx, channel, "New ticket\n"+TicketCard(ticket))
		r.record(deliveryMonitoring, err)
		if err != nil {
			r.logger.Warn("monitoring delivery failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		} else {
			result.Monitoring = ref
		}
	}
	return result, actionErr
}

// NotifyStatusChange tells the creator, refreshes the tracked action card and informs monitoring.
func (r *RoutingEngine) NotifyStatusChange(ctx context.Context, ticket *domain.Ticket, old, next domain.TicketStatus, actorName, remarks string) error {
	text := StatusChangeText(ticket, old, actorName, remarks)

	_, creatorErr := r.transport.SendWithButtons(ctx, ticket.CreatorID, text, CreatorTicketButtons(ticket))
	r.record(deliveryCreator, creatorErr)
	if creatorErr != nil {
		r.logger.Warn("creator notification failed", zap.String("ticket_id", ticket.ID), zap.Error(creatorErr))
	}

	if ref, ok := r.trackedCard(ticket.ID); ok {
		r.editCard(ctx, ticket, ref)
		if next.IsTerminal() {
			r.retireCard(ticket.ID)
		}
	}

	if channel := r.monitoringChannel(); channel != "" {
		monitoring := text
		if next.IsResolved() && r.stats != nil {
			if n, err := r.stats.BranchResolvedToday(ctx, ticket.Branch); err == nil {
				monitoring += fmt.Sprintf("\n%s resolved today: %d", ticket.Branch, n)
			} else {
				r.logger.Warn("branch metrics unavailable", zap.String("branch", ticket.Branch), zap.Error(err))
			}
		}
		_, err := r.transport.SendDirect(ctx, channel, monitoring)
		r.record(deliveryMonitoring, err)
		if err != nil {
			r.logger.Warn("monitoring delivery failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	return creatorErr
}

// RequestConfirmation asks the creator whether a resolved ticket is really fixed.
func (r *RoutingEngine) RequestConfirmation(ctx context.Context, ticket *domain.Ticket) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket %s was marked %s", ticket.ID, ticket.Status.Label())
	if owner := ticket.OwnerName(); owner != "" {
		fmt.Fprintf(&b, " by %s", owner)
	}
	if ticket.Remarks != nil && *ticket.Remarks != "" {
		fmt.Fprintf(&b, ".\nRemarks: %s", *ticket.Remarks)
	}
	b.WriteString("\nIs your issue resolved?")

	_, err := r.transport.SendWithButtons(ctx, ticket.CreatorID, b.String(), ConfirmButtons(ticket.ID))
	r.record(deliveryCreator, err)
	return err
}

// SendDigest posts report text to the monitoring channel, or the legacy channel without one.
func (r *RoutingEngine) SendDigest(ctx context.Context, text string) error {
	channel := r.monitoringChannel()
	if channel == "" {
		channel = r.cfg.LegacyChannel
	}
	if channel == "" {
		return errorutil.NewConfigurationError("no channel configured for digests", nil)
	}
	_, err := r.transport.SendDirect(ctx, channel, text)
	r.record(deliveryDigest, err)
	return err
}

// RefreshCard re-renders a card the caller knows about, unless it is the tracked card that
// NotifyStatusChange already refreshed.
func (r *RoutingEngine) RefreshCard(ctx context.Context, ticket *domain.Ticket, ref transport.MessageRef) {
	if ref.MessageID == 0 {
		return
	}
	if tracked, ok := r.knownCard(ticket.ID); ok && tracked == ref {
		return
	}
	r.editCard(ctx, ticket, ref)
}

func (r *RoutingEngine) editCard(ctx context.Context, ticket *domain.Ticket, ref transport.MessageRef) {
	if err := r.transport.EditMessage(ctx, ref.ChatID, ref.MessageID, TicketCard(ticket), StaffButtons(ticket)); err != nil {
		r.logger.Debug("card refresh failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
}

func (r *RoutingEngine) trackCard(ticketID string, ref transport.MessageRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cards[ticketID] = ref
}

func (r *RoutingEngine) trackedCard(ticketID string) (transport.MessageRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.cards[ticketID]
	return ref, ok
}

// retireCard stops tracking a ticket's card once nothing can change it anymore.
func (r *RoutingEngine) retireCard(ticketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.cards[ticketID]
	if !ok {
		return
	}
	delete(r.cards, ticketID)
	if _, seen := r.retired[ticketID]; !seen {
		r.retiredOrder = append(r.retiredOrder, ticketID)
	}
	r.retired[ticketID] = ref
	for len(r.retiredOrder) > retiredCardLimit {
		delete(r.retired, r.retiredOrder[0])
		r.retiredOrder = r.retiredOrder[1:]
	}
}

// knownCard returns the tracked or recently retired card of a ticket.
func (r *RoutingEngine) knownCard(ticketID string) (transport.MessageRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ref, ok := r.cards[ticketID]; ok {
		return ref, true
	}
	ref, ok := r.retired[ticketID]
	return ref, ok
}

func (r *RoutingEngine) monitoringChannel() string {
	if !r.cfg.MonitoringEnabled {
		return ""
	}
	return r.cfg.MonitoringChannel
}

func (r *RoutingEngine) record(kind string, err error) {
	r.metrics.RecordDelivery(kind, err == nil)
}
