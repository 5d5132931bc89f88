package worker

import (
	"context"
	"fmt"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// Subscriber is a source of raw order events.
type Subscriber interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// Deduper remembers which events were already delivered.
type Deduper interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Dispatcher hands one event to one notification room. Delivery to the
// connected clients happens outside this service.
type Dispatcher interface {
	Dispatch(ctx context.Context, room, eventType string, event interface{}) error
}

// NotificationWorker fans committed order events out to the shop, user and
// backend rooms.
type NotificationWorker struct {
	subscriber   Subscriber
	eventHandler *broker.EventHandler
	dedupe       Deduper
	dispatcher   Dispatcher
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(subscriber Subscriber, dedupe Deduper, dispatcher Dispatcher) *NotificationWorker {
	w := &NotificationWorker{
		subscriber:   subscriber,
		eventHandler: broker.NewEventHandler(),
		dedupe:       dedupe,
		dispatcher:   dispatcher,
		logger:       util.Named("notifications"),
	}

	w.eventHandler.OnOrderCreated(func(ctx context.Context, e *models.OrderCreatedEvent) error {
		return w.deliver(ctx, e.EventID, e.EventType, e.Rooms(), e)
	})
	w.eventHandler.OnOrderStatusUpdated(func(ctx context.Context, e *models.OrderStatusUpdatedEvent) error {
		return w.deliver(ctx, e.EventID, e.EventType, e.Rooms(), e)
	})
	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.subscriber.StartConsuming(ctx, w.Handle)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.subscriber.Close()
}

// Handle processes one raw event payload.
func (w *NotificationWorker) Handle(ctx context.Context, payload []byte) error {
	return w.eventHandler.HandleMessage(ctx, payload)
}

func (w *NotificationWorker) deliver(ctx context.Context, eventID, eventType string, rooms []string, event interface{}) error {
	if eventID == "" {
		return fmt.Errorf("%s event without event_id", eventType)
	}

	processed, err := w.dedupe.IsEventProcessed(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to check processed event: %w", err)
	}
	if processed {
		w.logger.Debug("Event already delivered", zap.String("event_id", eventID))
		return nil
	}

	for _, room := range rooms {
		if err := w.dispatcher.Dispatch(ctx, room, eventType, event); err != nil {
			return fmt.Errorf("failed to dispatch %s to %s: %w", eventType, room, err)
		}
		util.NotificationsDispatchedTotal.WithLabelValues(eventType).Inc()
	}

	if err := w.dedupe.MarkEventProcessed(ctx, eventID, eventType); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

// LogDispatcher writes each delivery to the log.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a dispatcher that logs deliveries
func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{logger: util.Named("rooms")}
}

func (d *LogDispatcher) Dispatch(_ context.Context, room, eventType string, event interface{}) error {
	d.logger.Info("Notification",
		zap.String("room", room),
		zap.String("event_type", eventType),
		zap.Any("event", event))
	return nil
}
