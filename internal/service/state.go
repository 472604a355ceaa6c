package service

import (
	"errors"
	"fmt"

	"storelocator-service/internal/models"
)

// Phase is the tagged state of the selected-store + reservation pair. The
// machine is long-lived for the session; there is no terminal phase.
type Phase int

const (
	PhaseNoStore Phase = iota
	PhaseSelectedNoReservation
	PhaseSelectedWithReservation
)

func (p Phase) String() string {
	switch p {
	case PhaseNoStore:
		return "NoStore"
	case PhaseSelectedNoReservation:
		return "SelectedNoReservation"
	case PhaseSelectedWithReservation:
		return "SelectedWithReservation"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Selection is the published per-session state. UI layers read it and
// mutate only through StoreSync operations.
type Selection struct {
	Phase       Phase               `json:"phase"`
	Store       *models.Store       `json:"store,omitempty"`
	Reservation *models.Reservation `json:"reservation,omitempty"`
}

type stateEvent int

const (
	eventSelect stateEvent = iota
	eventDeselect
	eventReserve
	eventCancel
)

func (e stateEvent) String() string {
	switch e {
	case eventSelect:
		return "select"
	case eventDeselect:
		return "deselect"
	case eventReserve:
		return "reserve"
	case eventCancel:
		return "cancel"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// ErrInvalidTransition is returned when an operation is not legal from the
// session's current phase, e.g. reserving with no store selected.
var ErrInvalidTransition = errors.New("service: invalid state transition")

// transition is the single place phase changes are validated. Callers apply
// the side effects only after the transition is accepted.
func transition(from Phase, ev stateEvent) (Phase, error) {
	switch ev {
	case eventSelect:
		// An active reservation must be cancelled (via reserve or deselect)
		// before the plain selection can move.
		if from == PhaseSelectedWithReservation {
			return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, from)
		}
		return PhaseSelectedNoReservation, nil

	case eventReserve:
		if from == PhaseNoStore {
			return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, from)
		}
		return PhaseSelectedWithReservation, nil

	case eventCancel:
		if from != PhaseSelectedWithReservation {
			return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, from)
		}
		return PhaseSelectedNoReservation, nil

	case eventDeselect:
		// Legal from every phase; the reservation gate is enforced by the
		// synchronizer before the transition is applied.
		return PhaseNoStore, nil

	default:
		return from, fmt.Errorf("%w: unknown event %s", ErrInvalidTransition, ev)
	}
}
