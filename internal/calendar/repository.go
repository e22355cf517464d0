package calendar

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
)

var (
	// ErrSlotTaken means the provider already has an appointment overlapping
	// the requested time.
	ErrSlotTaken = errors.New("calendar: slot already booked")
	// ErrNotFound is returned when an appointment id is unknown.
	ErrNotFound = errors.New("calendar: appointment not found")
	// ErrInvalidBooking wraps validation failures for a booking request.
	ErrInvalidBooking = errors.New("calendar: invalid booking")
)

const StatusConfirmed = "confirmed"

// Appointment is a persisted booking.
type Appointment struct {
	ID              string               `json:"id"`
	CallID          string               `json:"call_id,omitempty"`
	ProviderID      string               `json:"provider_id"`
	ProviderName    string               `json:"provider_name"`
	ServiceType     dialogue.ServiceType `json:"service_type"`
	Location        dialogue.Location    `json:"location"`
	StartsAt        time.Time            `json:"starts_at"`
	Duration        time.Duration        `json:"duration"`
	PatientName     string               `json:"patient_name"`
	PatientPhone    string               `json:"patient_phone"`
	Status          string               `json:"status"`
	ExternalEventID string               `json:"external_event_id,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

// EndsAt is the appointment's end time.
func (a Appointment) EndsAt() time.Time {
	return a.StartsAt.Add(a.Duration)
}

func (a Appointment) overlaps(start, end time.Time) bool {
	return a.StartsAt.Before(end) && start.Before(a.EndsAt())
}

// Repository persists appointments.
type Repository interface {
	Create(ctx context.Context, appt Appointment) error
	// ListForProviders returns confirmed appointments for the providers that
	// overlap [from, to).
	ListForProviders(ctx context.Context, providerIDs []string, from, to time.Time) ([]Appointment, error)
	Get(ctx context.Context, id string) (Appointment, error)
	SetExternalEventID(ctx context.Context, id, eventID string) error
}

// MemoryRepository keeps appointments in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	appts map[string]Appointment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{appts: make(map[string]Appointment)}
}

func (r *MemoryRepository) Create(_ context.Context, appt Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.appts {
		if existing.ProviderID == appt.ProviderID && existing.Status == StatusConfirmed &&
			existing.overlaps(appt.StartsAt, appt.EndsAt()) {
			return ErrSlotTaken
		}
	}
	r.appts[appt.ID] = appt
	return nil
}

func (r *MemoryRepository) ListForProviders(_ context.Context, providerIDs []string, from, to time.Time) ([]Appointment, error) {
	wanted := make(map[string]bool, len(providerIDs))
	for _, id := range providerIDs {
		wanted[id] = true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Appointment
	for _, a := range r.appts {
		if wanted[a.ProviderID] && a.Status == StatusConfirmed && a.overlaps(from, to) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appts[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepository) SetExternalEventID(_ context.Context, id, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return ErrNotFound
	}
	a.ExternalEventID = eventID
	r.appts[id] = a
	return nil
}
