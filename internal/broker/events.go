package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"catalog-service/internal/models"
	"catalog-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	stockProducer *Producer
	alertProducer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(stockProducer, alertProducer *Producer) *EventPublisher {
	return &EventPublisher{
		stockProducer: stockProducer,
		alertProducer: alertProducer,
	}
}

// PublishStockUpdated publishes StockUpdated event
func (ep *EventPublisher) PublishStockUpdated(ctx context.Context, event *models.StockUpdatedEvent) error {
	key := fmt.Sprintf("product-%d", event.ProductID)
	return ep.stockProducer.PublishEvent(ctx, key, event)
}

// PublishAlertDispatched publishes an alert dispatch outcome
func (ep *EventPublisher) PublishAlertDispatched(ctx context.Context, event *models.AlertDispatchedEvent) error {
	key := fmt.Sprintf("alert-%s", event.NotificationType)
	return ep.alertProducer.PublishEvent(ctx, key, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onStockUpdated func(context.Context, *models.StockUpdatedEvent) error
	logger         *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnStockUpdated registers a handler for StockUpdated events
func (eh *EventHandler) OnStockUpdated(handler func(context.Context, *models.StockUpdatedEvent) error) {
	eh.onStockUpdated = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeStockUpdated:
		if eh.onStockUpdated != nil {
			var event models.StockUpdatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal StockUpdated event: %w", err)
			}
			return eh.onStockUpdated(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
