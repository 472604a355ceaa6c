package worker

import (
	"context"
	"log"

	"storelocator-service/internal/broker"
	"storelocator-service/internal/models"
	"storelocator-service/internal/store"
)

// AuditWorker consumes reservation lifecycle events and persists them as
// the session's audit trail.
type AuditWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *store.Store
}

// NewAuditWorker creates a new audit worker
func NewAuditWorker(consumer *broker.Consumer, auditStore *store.Store) *AuditWorker {
	w := &AuditWorker{
		consumer: consumer,
		store:    auditStore,
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnStoreSelected(w.handleStoreSelected)
	eventHandler.OnStoreDeselected(w.handleStoreDeselected)
	eventHandler.OnReservationCreated(w.handleReservationCreated)
	eventHandler.OnReservationCancelled(w.handleReservationCancelled)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *AuditWorker) Start(ctx context.Context) error {
	log.Println("Starting audit worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *AuditWorker) Stop() error {
	log.Println("Stopping audit worker...")
	return w.consumer.Close()
}

func (w *AuditWorker) handleStoreSelected(ctx context.Context, event *models.StoreSelectedEvent) error {
	return w.store.RecordEvent(ctx, &models.AuditEvent{
		EventID:    event.EventID,
		EventType:  event.EventType,
		Usid:       event.Usid,
		StoreID:    event.StoreID,
		OccurredAt: event.Timestamp,
	})
}

func (w *AuditWorker) handleStoreDeselected(ctx context.Context, event *models.StoreDeselectedEvent) error {
	return w.store.RecordEvent(ctx, &models.AuditEvent{
		EventID:    event.EventID,
		EventType:  event.EventType,
		Usid:       event.Usid,
		StoreID:    event.StoreID,
		OccurredAt: event.Timestamp,
	})
}

func (w *AuditWorker) handleReservationCreated(ctx context.Context, event *models.ReservationCreatedEvent) error {
	return w.store.RecordEvent(ctx, &models.AuditEvent{
		EventID:       event.EventID,
		EventType:     event.EventType,
		Usid:          event.Usid,
		StoreID:       event.StoreID,
		ReservationID: event.ReservationID,
		OccurredAt:    event.Timestamp,
	})
}

func (w *AuditWorker) handleReservationCancelled(ctx context.Context, event *models.ReservationCancelledEvent) error {
	return w.store.RecordEvent(ctx, &models.AuditEvent{
		EventID:       event.EventID,
		EventType:     event.EventType,
		Usid:          event.Usid,
		StoreID:       event.StoreID,
		ReservationID: event.ReservationID,
		OccurredAt:    event.Timestamp,
	})
}
