package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"storelocator-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing reservation lifecycle events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishStoreSelected publishes StoreSelected event
func (ep *EventPublisher) PublishStoreSelected(ctx context.Context, event *models.StoreSelectedEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.Usid), event)
}

// PublishStoreDeselected publishes StoreDeselected event
func (ep *EventPublisher) PublishStoreDeselected(ctx context.Context, event *models.StoreDeselectedEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.Usid), event)
}

// PublishReservationCreated publishes ReservationCreated event
func (ep *EventPublisher) PublishReservationCreated(ctx context.Context, event *models.ReservationCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.Usid), event)
}

// PublishReservationCancelled publishes ReservationCancelled event
func (ep *EventPublisher) PublishReservationCancelled(ctx context.Context, event *models.ReservationCancelledEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.Usid), event)
}

func sessionKey(usid string) string {
	return fmt.Sprintf("session-%s", usid)
}

// EventHandler routes incoming lifecycle events
type EventHandler struct {
	onStoreSelected        func(context.Context, *models.StoreSelectedEvent) error
	onStoreDeselected      func(context.Context, *models.StoreDeselectedEvent) error
	onReservationCreated   func(context.Context, *models.ReservationCreatedEvent) error
	onReservationCancelled func(context.Context, *models.ReservationCancelledEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnStoreSelected registers a handler for StoreSelected events
func (eh *EventHandler) OnStoreSelected(handler func(context.Context, *models.StoreSelectedEvent) error) {
	eh.onStoreSelected = handler
}

// OnStoreDeselected registers a handler for StoreDeselected events
func (eh *EventHandler) OnStoreDeselected(handler func(context.Context, *models.StoreDeselectedEvent) error) {
	eh.onStoreDeselected = handler
}

// OnReservationCreated registers a handler for ReservationCreated events
func (eh *EventHandler) OnReservationCreated(handler func(context.Context, *models.ReservationCreatedEvent) error) {
	eh.onReservationCreated = handler
}

// OnReservationCancelled registers a handler for ReservationCancelled events
func (eh *EventHandler) OnReservationCancelled(handler func(context.Context, *models.ReservationCancelledEvent) error) {
	eh.onReservationCancelled = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeStoreSelected:
		if eh.onStoreSelected != nil {
			var event models.StoreSelectedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal StoreSelected event: %w", err)
			}
			return eh.onStoreSelected(ctx, &event)
		}

	case models.EventTypeStoreDeselected:
		if eh.onStoreDeselected != nil {
			var event models.StoreDeselectedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal StoreDeselected event: %w", err)
			}
			return eh.onStoreDeselected(ctx, &event)
		}

	case models.EventTypeReservationCreated:
		if eh.onReservationCreated != nil {
			var event models.ReservationCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ReservationCreated event: %w", err)
			}
			return eh.onReservationCreated(ctx, &event)
		}

	case models.EventTypeReservationCancelled:
		if eh.onReservationCancelled != nil {
			var event models.ReservationCancelledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ReservationCancelled event: %w", err)
			}
			return eh.onReservationCancelled(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
