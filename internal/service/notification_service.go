package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/events"
)

// NotificationService turns domain events into chat deliveries.
type NotificationService struct {
	dispatcher events.Dispatcher
	routing    *RoutingEngine
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, routing *RoutingEngine, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		routing:    routing,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventConfirmationRequested, n.handleConfirmationRequested)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	if event.Ticket == nil {
		return fmt.Errorf("event %s carries no ticket", event.ID)
	}
	_, err := n.routing.Route(ctx, event.Ticket)
	return err
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketStatusChanged", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok || event.Ticket == nil {
		return fmt.Errorf("event %s has unexpected payload %T", event.ID, event.Payload)
	}
	return n.routing.NotifyStatusChange(ctx, event.Ticket, payload.OldStatus, payload.NewStatus, event.Actor.Name, payload.Remarks)
}

func (n *NotificationService) handleConfirmationRequested(ctx context.Context, event events.Event) error {
	n.logger.Info("ConfirmationRequested", zap.String("ticket_id", event.TicketID))
	if event.Ticket == nil {
		return fmt.Errorf("event %s carries no ticket", event.ID)
	}
	return n.routing.RequestConfirmation(ctx, event.Ticket)
}
