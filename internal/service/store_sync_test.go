package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"storelocator-service/internal/models"
	"storelocator-service/internal/ocapi"
	"storelocator-service/internal/timeslot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	stores map[string]*models.Store
}

func (f *fakeDirectory) FetchStore(_ context.Context, storeID string) (*models.Store, error) {
	store, ok := f.stores[storeID]
	if !ok {
		return nil, fmt.Errorf("%w: store %s", ocapi.ErrNotFound, storeID)
	}
	copied := *store
	return &copied, nil
}

type fakeContexts struct {
	qualifiers map[string]string
	created    int
	updates    []string
	updateErr  error
}

func newFakeContexts() *fakeContexts {
	return &fakeContexts{qualifiers: make(map[string]string)}
}

func (f *fakeContexts) Get(_ context.Context, usid string) (*models.ShopperContext, error) {
	storeID, ok := f.qualifiers[usid]
	if !ok {
		return nil, fmt.Errorf("%w: shopper context for %s", ocapi.ErrNotFound, usid)
	}
	return &models.ShopperContext{
		AssignmentQualifiers: models.AssignmentQualifiers{Store: storeID},
	}, nil
}

func (f *fakeContexts) Create(_ context.Context, usid, storeID string) error {
	f.created++
	f.qualifiers[usid] = storeID
	return nil
}

func (f *fakeContexts) Update(_ context.Context, usid, storeID string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, storeID)
	f.qualifiers[usid] = storeID
	return nil
}

type fakeReservations struct {
	slots        []models.Slot
	mirror       *models.Reservation
	cancelOK     bool
	cancelCalls  int
	reserveCalls int
	nextID       int
}

func (f *fakeReservations) SearchFirstAvailableSlots(_ context.Context, _ string) ([]models.Slot, error) {
	return f.slots, nil
}

func (f *fakeReservations) SoftReserveSlot(_ context.Context, _, slotID string) (*models.Reservation, error) {
	f.reserveCalls++
	f.nextID++
	reservation := &models.Reservation{
		ReservationID:     fmt.Sprintf("res-%d", f.nextID),
		SlotID:            slotID,
		Status:            "PENDING",
		ReservationExpiry: time.Now().UTC().Add(30 * time.Minute).Format(models.ServiceTimeLayout),
	}
	f.mirror = reservation
	return reservation, nil
}

func (f *fakeReservations) CancelSlot(_ context.Context, _, reservationID string) (*models.Reservation, error) {
	f.cancelCalls++
	f.mirror = nil
	if !f.cancelOK {
		return &models.Reservation{ReservationID: reservationID, Status: "PENDING"},
			fmt.Errorf("%w: status %q", timeslot.ErrNotCancelled, "PENDING")
	}
	return &models.Reservation{
		ReservationID: reservationID,
		Status:        models.ReservationStatusCancelled,
	}, nil
}

func (f *fakeReservations) MirroredReservation(_ context.Context, _ string) (*models.Reservation, error) {
	return f.mirror, nil
}

func (f *fakeReservations) ClearMirroredReservation(_ context.Context, _ string) {
	f.mirror = nil
}

func newTestSync(dir *fakeDirectory, contexts *fakeContexts, reservations *fakeReservations) *StoreSync {
	return NewStoreSync(dir, contexts, reservations, nil)
}

func testDirectory() *fakeDirectory {
	return &fakeDirectory{stores: map[string]*models.Store{
		"store-a": {ID: "store-a", Name: "Central Market", FacilityID: "fac-a"},
		"store-b": {ID: "store-b", Name: "North Mart", FacilityID: "fac-b"},
	}}
}

func testSlots() []models.Slot {
	return []models.Slot{
		{UUID: "slot-1", StartDateTime: "2026-09-01T09:00:00", EndDateTime: "2026-09-01T10:00:00"},
		{UUID: "slot-2", StartDateTime: "2026-09-01T10:00:00", EndDateTime: "2026-09-01T11:00:00"},
	}
}

func TestInitializeCreatesMissingContext(t *testing.T) {
	contexts := newFakeContexts()
	sync := newTestSync(testDirectory(), contexts, &fakeReservations{})

	sel, err := sync.Initialize(context.Background(), "usid-1")
	require.NoError(t, err)

	assert.Equal(t, PhaseNoStore, sel.Phase)
	assert.Equal(t, 1, contexts.created)
	assert.Equal(t, "", contexts.qualifiers["usid-1"])
}

func TestInitializePublishesSelectedStore(t *testing.T) {
	contexts := newFakeContexts()
	contexts.qualifiers["usid-1"] = "store-a"
	sync := newTestSync(testDirectory(), contexts, &fakeReservations{})

	sel, err := sync.Initialize(context.Background(), "usid-1")
	require.NoError(t, err)

	assert.Equal(t, PhaseSelectedNoReservation, sel.Phase)
	require.NotNil(t, sel.Store)
	assert.Equal(t, "store-a", sel.Store.ID)
}

func TestInitializePublishesValidMirror(t *testing.T) {
	contexts := newFakeContexts()
	contexts.qualifiers["usid-1"] = "store-a"
	reservations := &fakeReservations{
		mirror: &models.Reservation{
			ReservationID:     "res-1",
			ReservationExpiry: time.Now().UTC().Add(20 * time.Minute).Format(models.ServiceTimeLayout),
		},
	}
	sync := newTestSync(testDirectory(), contexts, reservations)

	sel, err := sync.Initialize(context.Background(), "usid-1")
	require.NoError(t, err)

	assert.Equal(t, PhaseSelectedWithReservation, sel.Phase)
	require.NotNil(t, sel.Reservation)
	assert.Equal(t, "res-1", sel.Reservation.ReservationID)
}

func TestInitializeClearsExpiredMirror(t *testing.T) {
	contexts := newFakeContexts()
	contexts.qualifiers["usid-1"] = "store-a"
	reservations := &fakeReservations{
		mirror: &models.Reservation{
			ReservationID:     "res-1",
			ReservationExpiry: time.Now().UTC().Add(-time.Minute).Format(models.ServiceTimeLayout),
		},
	}
	sync := newTestSync(testDirectory(), contexts, reservations)

	sel, err := sync.Initialize(context.Background(), "usid-1")
	require.NoError(t, err)

	assert.Equal(t, PhaseSelectedNoReservation, sel.Phase)
	assert.Nil(t, sel.Reservation)
	assert.Nil(t, reservations.mirror)
}

func TestSelectStoreAToBWithoutReservation(t *testing.T) {
	contexts := newFakeContexts()
	contexts.qualifiers["usid-1"] = ""
	reservations := &fakeReservations{}
	sync := newTestSync(testDirectory(), contexts, reservations)
	ctx := context.Background()

	sel, err := sync.SelectStore(ctx, "usid-1", "store-a")
	require.NoError(t, err)
	assert.Equal(t, "store-a", sel.Store.ID)

	sel, err = sync.SelectStore(ctx, "usid-1", "store-b")
	require.NoError(t, err)
	assert.Equal(t, "store-b", sel.Store.ID)
	assert.Equal(t, PhaseSelectedNoReservation, sel.Phase)

	// The qualifier moved A then B with no reservation side effects.
	assert.Equal(t, []string{"store-a", "store-b"}, contexts.updates)
	assert.Zero(t, reservations.cancelCalls)
	assert.Zero(t, reservations.reserveCalls)
}

func TestSelectStoreUnknownStore(t *testing.T) {
	contexts := newFakeContexts()
	sync := newTestSync(testDirectory(), contexts, &fakeReservations{})

	_, err := sync.SelectStore(context.Background(), "usid-1", "nope")
	assert.ErrorIs(t, err, ocapi.ErrNotFound)
	assert.Empty(t, contexts.updates)
}

func TestReserveRequiresSelectedStore(t *testing.T) {
	sync := newTestSync(testDirectory(), newFakeContexts(), &fakeReservations{slots: testSlots()})

	_, err := sync.ReserveSlotForStore(context.Background(), "usid-1", "store-a")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReserveSlotForSelectedStore(t *testing.T) {
	contexts := newFakeContexts()
	reservations := &fakeReservations{slots: testSlots()}
	sync := newTestSync(testDirectory(), contexts, reservations)
	ctx := context.Background()

	_, err := sync.SelectStore(ctx, "usid-1", "store-a")
	require.NoError(t, err)

	sel, err := sync.ReserveSlotForStore(ctx, "usid-1", "store-a")
	require.NoError(t, err)

	assert.Equal(t, PhaseSelectedWithReservation, sel.Phase)
	require.NotNil(t, sel.Reservation)
	assert.Equal(t, "slot-1", sel.Reservation.SlotID)
	require.NotNil(t, sel.Store.NextSlot)
	assert.Equal(t, "slot-1", sel.Store.NextSlot.UUID)
	assert.Equal(t, "store-a", contexts.qualifiers["usid-1"])
}

func TestReserveForDifferentStoreCancelsFirst(t *testing.T) {
	contexts := newFakeContexts()
	reservations := &fakeReservations{slots: testSlots(), cancelOK: true}
	sync := newTestSync(testDirectory(), contexts, reservations)
	ctx := context.Background()

	_, err := sync.SelectStore(ctx, "usid-1", "store-a")
	require.NoError(t, err)
	first, err := sync.ReserveSlotForStore(ctx, "usid-1", "store-a")
	require.NoError(t, err)

	second, err := sync.ReserveSlotForStore(ctx, "usid-1", "store-b")
	require.NoError(t, err)

	assert.Equal(t, 1, reservations.cancelCalls)
	assert.Equal(t, 2, reservations.reserveCalls)
	assert.Equal(t, "store-b", second.Store.ID)
	assert.NotEqual(t, first.Reservation.ReservationID, second.Reservation.ReservationID)
}

func TestReserveForDifferentStoreBlockedWhenCancelUnconfirmed(t *testing.T) {
	contexts := newFakeContexts()
	reservations := &fakeReservations{slots: testSlots(), cancelOK: false}
	sync := newTestSync(testDirectory(), contexts, reservations)
	ctx := context.Background()

	_, err := sync.SelectStore(ctx, "usid-1", "store-a")
	require.NoError(t, err)

	reservations.cancelOK = true
	first, err := sync.ReserveSlotForStore(ctx, "usid-1", "store-a")
	require.NoError(t, err)
	reservations.cancelOK = false

	sel, err := sync.ReserveSlotForStore(ctx, "usid-1", "store-b")
	assert.ErrorIs(t, err, timeslot.ErrNotCancelled)

	// The prior reservation stays published untouched.
	assert.Equal(t, PhaseSelectedWithReservation, sel.Phase)
	require.NotNil(t, sel.Reservation)
	assert.Equal(t, first.Reservation.ReservationID, sel.Reservation.ReservationID)
	assert.Equal(t, "store-a", sel.Store.ID)
	assert.Equal(t, 1, reservations.reserveCalls)
}

func TestReserveSameStoreIsNoOp(t *testing.T) {
	contexts := newFakeContexts()
	reservations := &fakeReservations{slots: testSlots(), cancelOK: true}
	sync := newTestSync(testDirectory(), contexts, reservations)
	ctx := context.Background()

	_, err := sync.SelectStore(ctx, "usid-1", "store-a")
	require.NoError(t, err)
	first, err := sync.ReserveSlotForStore(ctx, "usid-1", "store-a")
	require.NoError(t, err)

	again, err := sync.ReserveSlotForStore(ctx, "usid-1", "store-a")
	require.NoError(t, err)

	assert.Equal(t, first.Reservation.ReservationID, again.Reservation.ReservationID)
	assert.Equal(t, 1, reservations.reserveCalls)
	assert.Zero(t, reservations.cancelCalls)
}

func TestReserveNoSlots(t *testing.T) {
	contexts := newFakeContexts()
	reservations := &fakeReservations{slots: nil}
	sync := newTestSync(testDirectory(), contexts, reservations)
	ctx := context.Background()

	_, err := sync.SelectStore(ctx, "usid-1", "store-a")
	require.NoError(t, err)

	_, err = sync.ReserveSlotForStore(ctx, "usid-1", "store-a")
	assert.ErrorIs(t, err, ErrNoSlots)
}

func TestNextSlotDecoratesStore(t *testing.T) {
	reservations := &fakeReservations{slots: testSlots()}
	sync := newTestSync(testDirectory(), newFakeContexts(), reservations)

	store := &models.Store{ID: "store-a", FacilityID: "fac-a"}
	slot, err := sync.NextSlot(context.Background(), store)
	require.NoError(t, err)

	require.NotNil(t, slot)
	assert.Equal(t, "slot-1", slot.UUID)
	require.NotNil(t, store.NextSlot)
	assert.Equal(t, "slot-1", store.NextSlot.UUID)
}

func TestNextSlotWithoutFacility(t *testing.T) {
	sync := newTestSync(testDirectory(), newFakeContexts(), &fakeReservations{slots: testSlots()})

	store := &models.Store{ID: "store-x"}
	_, err := sync.NextSlot(context.Background(), store)
	assert.ErrorIs(t, err, ErrNoFacility)
	assert.Nil(t, store.NextSlot)
}

func TestNextSlotNoAvailability(t *testing.T) {
	sync := newTestSync(testDirectory(), newFakeContexts(), &fakeReservations{})

	store := &models.Store{ID: "store-a", FacilityID: "fac-a"}
	slot, err := sync.NextSlot(context.Background(), store)
	require.NoError(t, err)
	assert.Nil(t, slot)
	assert.Nil(t, store.NextSlot)
}

func TestDeselectWithoutReservation(t *testing.T) {
	contexts := newFakeContexts()
	reservations := &fakeReservations{}
	sync := newTestSync(testDirectory(), contexts, reservations)
	ctx := context.Background()

	_, err := sync.SelectStore(ctx, "usid-1", "store-a")
	require.NoError(t, err)

	sel, err := sync.DeselectStore(ctx, "usid-1")
	require.NoError(t, err)

	assert.Equal(t, PhaseNoStore, sel.Phase)
	assert.Nil(t, sel.Store)
	assert.Equal(t, "", contexts.qualifiers["usid-1"])
	assert.Zero(t, reservations.cancelCalls)
}

func TestDeselectCancelsConfirmedReservation(t *testing.T) {
	contexts := newFakeContexts()
	reservations := &fakeReservations{slots: testSlots(), cancelOK: true}
	sync := newTestSync(testDirectory(), contexts, reservations)
	ctx := context.Background()

	_, err := sync.SelectStore(ctx, "usid-1", "store-a")
	require.NoError(t, err)
	_, err = sync.ReserveSlotForStore(ctx, "usid-1", "store-a")
	require.NoError(t, err)

	sel, err := sync.DeselectStore(ctx, "usid-1")
	require.NoError(t, err)

	assert.Equal(t, PhaseNoStore, sel.Phase)
	assert.Nil(t, sel.Store)
	assert.Nil(t, sel.Reservation)
	assert.Equal(t, 1, reservations.cancelCalls)
	assert.Equal(t, "", contexts.qualifiers["usid-1"])
}

func TestDeselectBlockedWhenCancelUnconfirmed(t *testing.T) {
	contexts := newFakeContexts()
	reservations := &fakeReservations{slots: testSlots(), cancelOK: true}
	sync := newTestSync(testDirectory(), contexts, reservations)
	ctx := context.Background()

	_, err := sync.SelectStore(ctx, "usid-1", "store-a")
	require.NoError(t, err)
	_, err = sync.ReserveSlotForStore(ctx, "usid-1", "store-a")
	require.NoError(t, err)

	reservations.cancelOK = false

	sel, err := sync.DeselectStore(ctx, "usid-1")
	assert.ErrorIs(t, err, timeslot.ErrNotCancelled)

	// Both the published store and reservation remain.
	assert.Equal(t, PhaseSelectedWithReservation, sel.Phase)
	require.NotNil(t, sel.Store)
	require.NotNil(t, sel.Reservation)
	assert.Equal(t, "store-a", contexts.qualifiers["usid-1"])
}
