package models

import "time"

// Event types
const (
	EventTypeStoreSelected        = "STORE_SELECTED"
	EventTypeStoreDeselected      = "STORE_DESELECTED"
	EventTypeReservationCreated   = "RESERVATION_CREATED"
	EventTypeReservationCancelled = "RESERVATION_CANCELLED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// StoreSelectedEvent published when a shopper selects a store
type StoreSelectedEvent struct {
	BaseEvent
	Usid    string `json:"usid"`
	StoreID string `json:"store_id"`
}

// StoreDeselectedEvent published when a shopper clears their store selection
type StoreDeselectedEvent struct {
	BaseEvent
	Usid    string `json:"usid"`
	StoreID string `json:"store_id"`
}

// ReservationCreatedEvent published when a slot is soft-reserved
type ReservationCreatedEvent struct {
	BaseEvent
	Usid          string `json:"usid"`
	StoreID       string `json:"store_id"`
	ReservationID string `json:"reservation_id"`
	SlotID        string `json:"slot_id"`
	Expiry        string `json:"expiry,omitempty"`
}

// ReservationCancelledEvent published when a reservation is confirmed cancelled
type ReservationCancelledEvent struct {
	BaseEvent
	Usid          string `json:"usid"`
	StoreID       string `json:"store_id"`
	ReservationID string `json:"reservation_id"`
}
