package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storelocator-service/internal/models"
	"storelocator-service/internal/ocapi"
	"storelocator-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNoSlots is returned when a facility has no availability in the
	// search window.
	ErrNoSlots = errors.New("service: no available slots")

	// ErrNoFacility is returned when a store has no reservation facility.
	ErrNoFacility = errors.New("service: store has no facility id")
)

// StoreDirectory is the slice of the directory client the synchronizer uses.
type StoreDirectory interface {
	FetchStore(ctx context.Context, storeID string) (*models.Store, error)
}

// ShopperContexts reads and writes the server-side selected-store record.
type ShopperContexts interface {
	Get(ctx context.Context, usid string) (*models.ShopperContext, error)
	Create(ctx context.Context, usid, storeID string) error
	Update(ctx context.Context, usid, storeID string) error
}

// Reservations is the slice of the timeslot client the synchronizer uses.
type Reservations interface {
	SearchFirstAvailableSlots(ctx context.Context, facilityID string) ([]models.Slot, error)
	SoftReserveSlot(ctx context.Context, usid, slotID string) (*models.Reservation, error)
	CancelSlot(ctx context.Context, usid, reservationID string) (*models.Reservation, error)
	MirroredReservation(ctx context.Context, usid string) (*models.Reservation, error)
	ClearMirroredReservation(ctx context.Context, usid string)
}

// EventPublisher publishes reservation lifecycle events. Publish failures
// never fail the shopper-facing operation.
type EventPublisher interface {
	PublishStoreSelected(ctx context.Context, event *models.StoreSelectedEvent) error
	PublishStoreDeselected(ctx context.Context, event *models.StoreDeselectedEvent) error
	PublishReservationCreated(ctx context.Context, event *models.ReservationCreatedEvent) error
	PublishReservationCancelled(ctx context.Context, event *models.ReservationCancelledEvent) error
}

// StoreSync reconciles the shopper's selected store and reservation across
// the server-side shopper context, the KV reservation mirror, and the
// in-memory published state. It owns the published state; all mutations go
// through its operations, serialized per service so rapid repeated calls
// cannot interleave a cancel and a reserve.
type StoreSync struct {
	directory    StoreDirectory
	contexts     ShopperContexts
	reservations Reservations
	events       EventPublisher
	logger       *zap.Logger
	now          func() time.Time

	mu       sync.Mutex
	sessions map[string]*Selection
}

// NewStoreSync creates a store context synchronizer. events may be nil.
func NewStoreSync(
	directory StoreDirectory,
	contexts ShopperContexts,
	reservations Reservations,
	events EventPublisher,
) *StoreSync {
	return &StoreSync{
		directory:    directory,
		contexts:     contexts,
		reservations: reservations,
		events:       events,
		logger:       util.GetLogger(),
		now:          time.Now,
		sessions:     make(map[string]*Selection),
	}
}

// Initialize reconciles the session's published state from the shopper
// context and the reservation mirror. Missing contexts are created with an
// empty STORE qualifier. An expired mirror is cleared rather than published.
func (s *StoreSync) Initialize(ctx context.Context, usid string) (Selection, error) {
	ctx, span := util.StartSpan(ctx, "StoreSync.Initialize")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	sel := s.session(usid)

	sc, err := s.contexts.Get(ctx, usid)
	if err != nil {
		if !errors.Is(err, ocapi.ErrNotFound) {
			return *sel, fmt.Errorf("fetch shopper context: %w", err)
		}
		if err := s.contexts.Create(ctx, usid, ""); err != nil {
			return *sel, fmt.Errorf("create shopper context: %w", err)
		}
		sc = &models.ShopperContext{}
	}

	if storeID := sc.AssignmentQualifiers.Store; storeID != "" {
		store, err := s.directory.FetchStore(ctx, storeID)
		if err != nil {
			s.logger.Warn("Failed to fetch selected store details",
				zap.String("usid", usid),
				zap.String("store_id", storeID),
				zap.Error(err))
		} else {
			sel.Store = store
			sel.Phase = PhaseSelectedNoReservation
		}
	}

	mirror, err := s.reservations.MirroredReservation(ctx, usid)
	if err != nil {
		s.logger.Warn("Failed to read reservation mirror", zap.String("usid", usid), zap.Error(err))
	}
	if mirror != nil {
		switch {
		case mirror.Expired(s.now()):
			s.reservations.ClearMirroredReservation(ctx, usid)
		case sel.Store != nil:
			sel.Reservation = mirror
			sel.Phase = PhaseSelectedWithReservation
		default:
			// Mirror without a selected store: left in place, not published.
			// The next reserve or deselect resolves it.
			s.logger.Warn("Orphaned reservation mirror", zap.String("usid", usid))
		}
	}

	return *sel, nil
}

// Current returns the session's published state without touching any
// backend.
func (s *StoreSync) Current(usid string) Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.session(usid)
}

// SelectStore records storeID as the session's selected store: shopper
// context first, then the published state. There is no rollback if the
// remote write fails; the caller re-derives state from a later Initialize.
func (s *StoreSync) SelectStore(ctx context.Context, usid, storeID string) (Selection, error) {
	ctx, span := util.StartSpan(ctx, "StoreSync.SelectStore")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	sel := s.session(usid)

	next, err := transition(sel.Phase, eventSelect)
	if err != nil {
		return *sel, err
	}

	store, err := s.directory.FetchStore(ctx, storeID)
	if err != nil {
		return *sel, fmt.Errorf("fetch store %s: %w", storeID, err)
	}

	if err := s.contexts.Update(ctx, usid, storeID); err != nil {
		return *sel, fmt.Errorf("update shopper context: %w", err)
	}

	sel.Store = store
	sel.Reservation = nil
	sel.Phase = next

	util.StoreSelectionsTotal.Inc()
	s.publishStoreSelected(ctx, usid, storeID)

	return *sel, nil
}

// DeselectStore clears the session's store selection. An active reservation
// is cancelled first, and the selection only clears when the cancellation
// confirmed CANCELLED (or there was nothing to cancel).
func (s *StoreSync) DeselectStore(ctx context.Context, usid string) (Selection, error) {
	ctx, span := util.StartSpan(ctx, "StoreSync.DeselectStore")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	sel := s.session(usid)

	next, err := transition(sel.Phase, eventDeselect)
	if err != nil {
		return *sel, err
	}

	reservation := sel.Reservation
	if reservation == nil {
		// A mirror can outlive the in-memory state across restarts.
		mirror, err := s.reservations.MirroredReservation(ctx, usid)
		if err != nil {
			s.logger.Warn("Failed to read reservation mirror", zap.String("usid", usid), zap.Error(err))
		}
		reservation = mirror
	}

	var cancelledID string
	if reservation != nil {
		cancelled, err := s.reservations.CancelSlot(ctx, usid, reservation.ReservationID)
		if err != nil {
			// Not confirmed CANCELLED: published state stays untouched.
			return *sel, fmt.Errorf("cancel reservation %s: %w", reservation.ReservationID, err)
		}
		cancelledID = cancelled.ReservationID
	}

	if err := s.contexts.Update(ctx, usid, ""); err != nil {
		// The reservation is already cancelled; the store qualifier is now
		// stale until the next Initialize. No compensation.
		return *sel, fmt.Errorf("update shopper context: %w", err)
	}

	var storeID string
	if sel.Store != nil {
		storeID = sel.Store.ID
	}

	sel.Store = nil
	sel.Reservation = nil
	sel.Phase = next

	util.StoreDeselectionsTotal.Inc()
	if cancelledID != "" {
		s.publishReservationCancelled(ctx, usid, storeID, cancelledID)
	}
	s.publishStoreDeselected(ctx, usid, storeID)

	return *sel, nil
}

// ReserveSlotForStore soft-reserves the first available slot for storeID and
// makes it the selected store. An active reservation for a different store
// is cancelled first; the new reserve only proceeds on confirmed CANCELLED.
// Reserving with no store selected is rejected.
func (s *StoreSync) ReserveSlotForStore(ctx context.Context, usid, storeID string) (Selection, error) {
	ctx, span := util.StartSpan(ctx, "StoreSync.ReserveSlotForStore")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	sel := s.session(usid)

	next, err := transition(sel.Phase, eventReserve)
	if err != nil {
		return *sel, err
	}

	if sel.Reservation != nil {
		if sel.Store != nil && sel.Store.ID == storeID {
			return *sel, nil
		}

		cancelled, err := s.reservations.CancelSlot(ctx, usid, sel.Reservation.ReservationID)
		if err != nil {
			// Cancel not confirmed: the prior reservation stays published.
			return *sel, fmt.Errorf("cancel reservation %s: %w", sel.Reservation.ReservationID, err)
		}

		var priorStoreID string
		if sel.Store != nil {
			priorStoreID = sel.Store.ID
		}
		s.publishReservationCancelled(ctx, usid, priorStoreID, cancelled.ReservationID)
		sel.Reservation = nil
		sel.Phase = PhaseSelectedNoReservation
	}

	store, err := s.directory.FetchStore(ctx, storeID)
	if err != nil {
		return *sel, fmt.Errorf("fetch store %s: %w", storeID, err)
	}
	if store.FacilityID == "" {
		return *sel, fmt.Errorf("%w: store %s", ErrNoFacility, storeID)
	}

	slots, err := s.reservations.SearchFirstAvailableSlots(ctx, store.FacilityID)
	if err != nil {
		return *sel, fmt.Errorf("search slots for facility %s: %w", store.FacilityID, err)
	}
	if len(slots) == 0 {
		return *sel, fmt.Errorf("%w: facility %s", ErrNoSlots, store.FacilityID)
	}

	nextSlot := slots[0]
	reservation, err := s.reservations.SoftReserveSlot(ctx, usid, nextSlot.UUID)
	if err != nil {
		return *sel, fmt.Errorf("reserve slot %s: %w", nextSlot.UUID, err)
	}

	store.NextSlot = &nextSlot
	sel.Store = store
	sel.Reservation = reservation
	sel.Phase = next

	// The two remote writes are not atomic. A failed qualifier write leaves
	// the reservation live with a stale context; Initialize re-derives.
	if err := s.contexts.Update(ctx, usid, storeID); err != nil {
		s.logger.Warn("Failed to update shopper context after reserve",
			zap.String("usid", usid),
			zap.String("store_id", storeID),
			zap.Error(err))
	}

	s.publishReservationCreated(ctx, usid, storeID, reservation, nextSlot.UUID)
	s.publishStoreSelected(ctx, usid, storeID)

	return *sel, nil
}

// NextSlot decorates store with its first available slot. The decoration is
// valid for one search round trip only and is never persisted.
func (s *StoreSync) NextSlot(ctx context.Context, store *models.Store) (*models.Slot, error) {
	if store.FacilityID == "" {
		return nil, fmt.Errorf("%w: store %s", ErrNoFacility, store.ID)
	}

	slots, err := s.reservations.SearchFirstAvailableSlots(ctx, store.FacilityID)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, nil
	}

	slot := slots[0]
	store.NextSlot = &slot
	return &slot, nil
}

// session returns the mutable selection for usid. Caller holds s.mu.
func (s *StoreSync) session(usid string) *Selection {
	sel, ok := s.sessions[usid]
	if !ok {
		sel = &Selection{Phase: PhaseNoStore}
		s.sessions[usid] = sel
	}
	return sel
}

func (s *StoreSync) publishStoreSelected(ctx context.Context, usid, storeID string) {
	if s.events == nil {
		return
	}
	event := &models.StoreSelectedEvent{
		BaseEvent: s.baseEvent(models.EventTypeStoreSelected),
		Usid:      usid,
		StoreID:   storeID,
	}
	if err := s.events.PublishStoreSelected(ctx, event); err != nil {
		s.logger.Error("Failed to publish StoreSelected event", zap.Error(err))
	}
}

func (s *StoreSync) publishStoreDeselected(ctx context.Context, usid, storeID string) {
	if s.events == nil {
		return
	}
	event := &models.StoreDeselectedEvent{
		BaseEvent: s.baseEvent(models.EventTypeStoreDeselected),
		Usid:      usid,
		StoreID:   storeID,
	}
	if err := s.events.PublishStoreDeselected(ctx, event); err != nil {
		s.logger.Error("Failed to publish StoreDeselected event", zap.Error(err))
	}
}

func (s *StoreSync) publishReservationCreated(ctx context.Context, usid, storeID string, reservation *models.Reservation, slotID string) {
	if s.events == nil {
		return
	}
	event := &models.ReservationCreatedEvent{
		BaseEvent:     s.baseEvent(models.EventTypeReservationCreated),
		Usid:          usid,
		StoreID:       storeID,
		ReservationID: reservation.ReservationID,
		SlotID:        slotID,
		Expiry:        reservation.ReservationExpiry,
	}
	if err := s.events.PublishReservationCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish ReservationCreated event", zap.Error(err))
	}
}

func (s *StoreSync) publishReservationCancelled(ctx context.Context, usid, storeID, reservationID string) {
	if s.events == nil {
		return
	}
	event := &models.ReservationCancelledEvent{
		BaseEvent:     s.baseEvent(models.EventTypeReservationCancelled),
		Usid:          usid,
		StoreID:       storeID,
		ReservationID: reservationID,
	}
	if err := s.events.PublishReservationCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish ReservationCancelled event", zap.Error(err))
	}
}

func (s *StoreSync) baseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: s.now(),
	}
}
