package calendar

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var calendarTracer = otel.Tracer("clinicvoice.internal.calendar")

// EventSink mirrors confirmed appointments into an external calendar.
type EventSink interface {
	CreateEvent(ctx context.Context, appt Appointment) (string, error)
}

// BookingNotifier tells clinic staff about a new appointment.
type BookingNotifier interface {
	NotifyBooking(ctx context.Context, appt Appointment) error
}

// Service answers availability queries from the clinic directory and books
// appointments through a Repository.
type Service struct {
	clinic   *Clinic
	repo     Repository
	sink     EventSink
	notifier BookingNotifier
	logger   *logging.Logger
	now      func() time.Time
	newID    func() string
}

var (
	_ dialogue.Availability = (*Service)(nil)
	_ dialogue.Booker       = (*Service)(nil)
)

func NewService(clinic *Clinic, repo Repository, logger *logging.Logger) *Service {
	if clinic == nil {
		panic("calendar: clinic directory required")
	}
	if repo == nil {
		panic("calendar: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		clinic: clinic,
		repo:   repo,
		logger: logger,
		now:    time.Now,
		newID:  newConfirmationID,
	}
}

// WithEventSink enables best-effort external calendar sync.
func (s *Service) WithEventSink(sink EventSink) *Service {
	s.sink = sink
	return s
}

// WithNotifier enables best-effort staff notification.
func (s *Service) WithNotifier(n BookingNotifier) *Service {
	s.notifier = n
	return s
}

// WithClock overrides the clock used to skip past slots.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Clinic exposes the directory the service was built from.
func (s *Service) Clinic() *Clinic {
	return s.clinic
}

// FindOffers implements dialogue.Availability. Slots start on the clinic's
// interval grid, fit inside both business and doctor hours, lie in the future
// and do not overlap a confirmed appointment.
func (s *Service) FindOffers(ctx context.Context, q dialogue.AvailabilityQuery) ([]dialogue.Offer, error) {
	ctx, span := calendarTracer.Start(ctx, "calendar.find_offers", trace.WithAttributes(
		attribute.String("service_type", string(q.ServiceType)),
		attribute.String("location", string(q.Location)),
		attribute.String("from", q.From.Format(time.RFC3339)),
	))
	defer span.End()

	if !q.To.After(q.From) {
		return nil, nil
	}
	doctors := s.doctorsFor(q.ServiceType, q.Location)
	if len(doctors) == 0 {
		return nil, nil
	}
	ids := make([]string, len(doctors))
	for i, d := range doctors {
		ids[i] = d.ID
	}
	booked, err := s.repo.ListForProviders(ctx, ids, q.From, q.To)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list appointments failed")
		return nil, err
	}
	busy := make(map[string][]Appointment, len(ids))
	for _, a := range booked {
		busy[a.ProviderID] = append(busy[a.ProviderID], a)
	}

	loc := s.clinic.Location()
	now := s.now()
	length := s.clinic.AppointmentLength()
	step := time.Duration(s.clinic.SlotIntervalMinutes) * time.Minute

	var offers []dialogue.Offer
	from := q.From.In(loc)
	for day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc); day.Before(q.To); day = day.AddDate(0, 0, 1) {
		for _, d := range doctors {
			open, closing, ok := s.clinic.window(d, day)
			if !ok {
				continue
			}
			for start := open; !start.Add(length).After(closing); start = start.Add(step) {
				if start.Before(q.From) || !start.Before(q.To) || !start.After(now) {
					continue
				}
				if conflicts(busy[d.ID], start, start.Add(length)) {
					continue
				}
				offers = append(offers, dialogue.Offer{
					Start:        start,
					ProviderID:   d.ID,
					ProviderName: d.Name,
					Location:     q.Location,
					ServiceType:  q.ServiceType,
					Duration:     length,
				})
			}
		}
	}
	sort.SliceStable(offers, func(i, j int) bool {
		if !offers[i].Start.Equal(offers[j].Start) {
			return offers[i].Start.Before(offers[j].Start)
		}
		return offers[i].ProviderID < offers[j].ProviderID
	})
	span.SetAttributes(attribute.Int("offers", len(offers)))
	return offers, nil
}

// Book implements dialogue.Booker.
func (s *Service) Book(ctx context.Context, req dialogue.BookingRequest) (string, error) {
	ctx, span := calendarTracer.Start(ctx, "calendar.book", trace.WithAttributes(
		attribute.String("call_id", req.CallID),
		attribute.String("provider_id", req.ProviderID),
		attribute.String("starts_at", req.Start.Format(time.RFC3339)),
	))
	defer span.End()

	doctor, err := s.validate(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid booking")
		return "", err
	}
	length := req.Duration
	if length <= 0 {
		length = s.clinic.AppointmentLength()
	}

	appt := Appointment{
		ID:           s.newID(),
		CallID:       req.CallID,
		ProviderID:   doctor.ID,
		ProviderName: doctor.Name,
		ServiceType:  req.ServiceType,
		Location:     req.Location,
		StartsAt:     req.Start.In(s.clinic.Location()),
		Duration:     length,
		PatientName:  req.PatientName,
		PatientPhone: req.PatientPhone,
		Status:       StatusConfirmed,
		CreatedAt:    s.now(),
	}

	existing, err := s.repo.ListForProviders(ctx, []string{doctor.ID}, appt.StartsAt, appt.EndsAt())
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if len(existing) > 0 {
		span.SetStatus(codes.Error, "slot taken")
		return "", ErrSlotTaken
	}
	if err := s.repo.Create(ctx, appt); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist appointment failed")
		return "", err
	}

	log := s.logger.WithCall(req.CallID)
	log.Info("appointment booked",
		"appointment_id", appt.ID,
		"provider_id", appt.ProviderID,
		"service_type", appt.ServiceType,
		"location", appt.Location,
		"starts_at", appt.StartsAt.Format(time.RFC3339),
	)

	if s.sink != nil {
		if eventID, err := s.sink.CreateEvent(ctx, appt); err != nil {
			log.Warn("calendar sync failed", "appointment_id", appt.ID, "error", err)
		} else if eventID != "" {
			if err := s.repo.SetExternalEventID(ctx, appt.ID, eventID); err != nil {
				log.Warn("failed to record calendar event id", "appointment_id", appt.ID, "error", err)
			}
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyBooking(ctx, appt); err != nil {
			log.Warn("booking notification failed", "appointment_id", appt.ID, "error", err)
		}
	}
	return appt.ID, nil
}

// Appointment fetches a booked appointment by confirmation id.
func (s *Service) Appointment(ctx context.Context, id string) (Appointment, error) {
	return s.repo.Get(ctx, strings.ToUpper(strings.TrimSpace(id)))
}

func (s *Service) validate(req dialogue.BookingRequest) (Doctor, error) {
	doctor, ok := s.clinic.Doctor(req.ProviderID)
	if !ok {
		return Doctor{}, fmt.Errorf("%w: unknown provider %q", ErrInvalidBooking, req.ProviderID)
	}
	if !doctor.Offers(req.ServiceType) {
		return Doctor{}, fmt.Errorf("%w: %s does not offer %s", ErrInvalidBooking, doctor.Name, req.ServiceType)
	}
	if !doctor.WorksAt(req.Location) {
		return Doctor{}, fmt.Errorf("%w: %s does not work at %s", ErrInvalidBooking, doctor.Name, req.Location)
	}
	if strings.TrimSpace(req.PatientName) == "" || strings.TrimSpace(req.PatientPhone) == "" {
		return Doctor{}, fmt.Errorf("%w: patient name and phone are required", ErrInvalidBooking)
	}
	if !req.Start.After(s.now()) {
		return Doctor{}, fmt.Errorf("%w: start time is in the past", ErrInvalidBooking)
	}
	length := req.Duration
	if length <= 0 {
		length = s.clinic.AppointmentLength()
	}
	start := req.Start.In(s.clinic.Location())
	open, closing, ok := s.clinic.window(doctor, start)
	if !ok || start.Before(open) || start.Add(length).After(closing) {
		return Doctor{}, fmt.Errorf("%w: %s is outside %s's hours", ErrInvalidBooking, start.Format(time.RFC3339), doctor.Name)
	}
	return doctor, nil
}

func (s *Service) doctorsFor(service dialogue.ServiceType, loc dialogue.Location) []Doctor {
	var out []Doctor
	for _, d := range s.clinic.Doctors {
		if d.Offers(service) && d.WorksAt(loc) {
			out = append(out, d)
		}
	}
	return out
}

func conflicts(appts []Appointment, start, end time.Time) bool {
	for _, a := range appts {
		if a.overlaps(start, end) {
			return true
		}
	}
	return false
}

// newConfirmationID returns a short code a caller can read back,
// e.g. "APT-3F9A12C4".
func newConfirmationID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "APT-" + strings.ToUpper(raw[:8])
}
