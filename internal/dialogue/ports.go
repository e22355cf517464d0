package dialogue

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound means the call has no live dialogue state, usually
// because it completed or was evicted.
var ErrSessionNotFound = errors.New("dialogue: session not found")

// SessionStore persists dialogue state per call id. Implementations hand out
// copies so a turn can be abandoned without touching the stored state.
type SessionStore interface {
	GetOrCreate(ctx context.Context, callID string) (*DialogueState, error)
	Get(ctx context.Context, callID string) (*DialogueState, error)
	Save(ctx context.Context, state *DialogueState) error
	Remove(ctx context.Context, callID string) error
	Exists(ctx context.Context, callID string) (bool, error)
}

// AvailabilityQuery asks for open appointments in [From, To).
type AvailabilityQuery struct {
	ServiceType ServiceType
	Location    Location
	From        time.Time
	To          time.Time
}

// Availability lists bookable offers, earliest first.
type Availability interface {
	FindOffers(ctx context.Context, q AvailabilityQuery) ([]Offer, error)
}

// BookingRequest is everything needed to confirm one appointment.
type BookingRequest struct {
	CallID       string
	ServiceType  ServiceType
	Location     Location
	ProviderID   string
	ProviderName string
	Start        time.Time
	Duration     time.Duration
	PatientName  string
	PatientPhone string
}

// Booker confirms an appointment and returns its confirmation id.
type Booker interface {
	Book(ctx context.Context, req BookingRequest) (string, error)
}

// TurnOutcome classifies how a turn ended.
type TurnOutcome string

const (
	OutcomePrompted           TurnOutcome = "prompted"
	OutcomeReprompted         TurnOutcome = "reprompted"
	OutcomeChooseAction       TurnOutcome = "choose_action"
	OutcomeOffered            TurnOutcome = "offered"
	OutcomeNoAvailability     TurnOutcome = "no_availability"
	OutcomeBooked             TurnOutcome = "booked"
	OutcomeNotImplemented     TurnOutcome = "not_implemented"
	OutcomeExtractionFailed   TurnOutcome = "extraction_failed"
	OutcomeAvailabilityFailed TurnOutcome = "availability_failed"
	OutcomeBookingFailed      TurnOutcome = "booking_failed"
	OutcomeSessionLost        TurnOutcome = "session_lost"
	OutcomeInternalError      TurnOutcome = "internal_error"
)

// TurnRecord summarizes one handled turn for observers.
type TurnRecord struct {
	CallID         string
	Utterance      string
	Response       string
	PhaseBefore    Phase
	PhaseAfter     Phase
	Intent         Intent
	Awaiting       SlotName
	Outcome        TurnOutcome
	ConfirmationID string
	Ended          bool
	At             time.Time
	Latency        time.Duration
}

// TurnObserver receives a record after every turn. Observers must not block
// for long; the caller is waiting on the response.
type TurnObserver interface {
	ObserveTurn(ctx context.Context, rec TurnRecord)
}
