package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/events"
	"github.com/spec-kit/helpdesk-bot/internal/service"
)

// StartNotificationWorker wires ticket events to chat deliveries through the routing engine.
func StartNotificationWorker(dispatcher events.Dispatcher, routing *service.RoutingEngine, logger *zap.Logger) *service.NotificationService {
	if dispatcher == nil || routing == nil {
		return nil
	}
	notifications := service.NewNotificationService(dispatcher, routing, logger)
	notifications.RegisterHandlers()
	return notifications
}
