package models

import "time"

// Store represents a physical store from the commerce API. Fields are
// camelCase-normalized from the snake_case OCAPI payload. NextSlot and
// DistanceKm are derived client-side and never written back.
type Store struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Address1    string   `json:"address1,omitempty"`
	Address2    string   `json:"address2,omitempty"`
	City        string   `json:"city,omitempty"`
	StateCode   string   `json:"stateCode,omitempty"`
	PostalCode  string   `json:"postalCode,omitempty"`
	CountryCode string   `json:"countryCode,omitempty"`
	Latitude    float64  `json:"latitude,omitempty"`
	Longitude   float64  `json:"longitude,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	StoreHours  string   `json:"storeHours,omitempty"`
	Services    []string `json:"cServices,omitempty"`
	FacilityID  string   `json:"cFacilityId,omitempty"`
	Image       string   `json:"image,omitempty"`

	NextSlot   *Slot   `json:"nextSlot,omitempty"`
	DistanceKm float64 `json:"distanceKm,omitempty"`
}

// Slot is a bookable timeslot produced by an availability search. Times are
// kept in the reservation service's string form and only parsed when a
// comparison is needed.
type Slot struct {
	UUID          string `json:"uuid"`
	FacilityUUID  string `json:"facilityUuid,omitempty"`
	StartDateTime string `json:"startDateTime"`
	EndDateTime   string `json:"endDateTime"`
	Available     bool   `json:"available,omitempty"`
}

// Reservation is a soft hold on a slot, owned by the reservation service.
// At most one is mirrored locally per shopper session.
type Reservation struct {
	ReservationID     string `json:"reservationId"`
	ExternalID        string `json:"externalId,omitempty"`
	SlotID            string `json:"slotId,omitempty"`
	FacilityUUID      string `json:"facilityUuid,omitempty"`
	StartDateTime     string `json:"startDateTime,omitempty"`
	EndDateTime       string `json:"endDateTime,omitempty"`
	ReservationExpiry string `json:"reservationExpiry,omitempty"`
	Status            string `json:"status,omitempty"`
}

// ReservationStatusCancelled is the only status literal this service
// interprets; everything else is passed through opaquely.
const ReservationStatusCancelled = "CANCELLED"

// Expired reports whether the reservation's hold has lapsed. An expiry that
// cannot be parsed counts as expired so a corrupt mirror is cleared rather
// than trusted.
func (r *Reservation) Expired(now time.Time) bool {
	if r.ReservationExpiry == "" {
		return false
	}
	exp, err := ParseServiceTime(r.ReservationExpiry)
	if err != nil {
		return true
	}
	return now.After(exp)
}

// AssignmentQualifiers holds the shopper-context qualifiers this service
// cares about. STORE is a store id or empty string.
type AssignmentQualifiers struct {
	Store string `json:"STORE"`
}

// ShopperContext is the server-side per-session record addressed by usid.
type ShopperContext struct {
	AssignmentQualifiers AssignmentQualifiers `json:"assignmentQualifiers"`
}

// ServiceTimeLayout is the wall-clock format the reservation service speaks.
const ServiceTimeLayout = "2006-01-02T15:04:05"

// ParseServiceTime parses a reservation-service timestamp, accepting both
// the service's second-resolution layout and full RFC 3339.
func ParseServiceTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(ServiceTimeLayout, s)
}

// AuditEvent is one reservation-lifecycle event persisted by the audit worker.
type AuditEvent struct {
	EventID       string    `db:"event_id" json:"event_id"`
	EventType     string    `db:"event_type" json:"event_type"`
	Usid          string    `db:"usid" json:"usid"`
	StoreID       string    `db:"store_id" json:"store_id,omitempty"`
	ReservationID string    `db:"reservation_id" json:"reservation_id,omitempty"`
	OccurredAt    time.Time `db:"occurred_at" json:"occurred_at"`
}
