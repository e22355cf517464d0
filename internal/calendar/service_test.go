package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

type recordingSink struct {
	appts []Appointment
	err   error
}

func (r *recordingSink) CreateEvent(_ context.Context, appt Appointment) (string, error) {
	r.appts = append(r.appts, appt)
	if r.err != nil {
		return "", r.err
	}
	return "gcal-evt-1", nil
}

type recordingNotifier struct {
	appts []Appointment
	err   error
}

func (r *recordingNotifier) NotifyBooking(_ context.Context, appt Appointment) error {
	r.appts = append(r.appts, appt)
	return r.err
}

type failingRepo struct {
	*MemoryRepository
	listErr error
}

func (f failingRepo) ListForProviders(context.Context, []string, time.Time, time.Time) ([]Appointment, error) {
	return nil, f.listErr
}

func newTestService(t *testing.T, now time.Time) (*Service, *MemoryRepository) {
	t.Helper()
	c, err := DefaultClinic()
	require.NoError(t, err)
	repo := NewMemoryRepository()
	svc := NewService(c, repo, logging.Discard()).WithClock(func() time.Time { return now })
	return svc, repo
}

func chicago(t *testing.T, year int, month time.Month, day, hour, minute int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}

func dayQuery(t *testing.T, service dialogue.ServiceType, location dialogue.Location, year int, month time.Month, day int) dialogue.AvailabilityQuery {
	from := chicago(t, year, month, day, 0, 0)
	return dialogue.AvailabilityQuery{ServiceType: service, Location: location, From: from, To: from.AddDate(0, 0, 1)}
}

func TestFindOffers_GeneratesGridWithinHours(t *testing.T) {
	svc, _ := newTestService(t, chicago(t, 2026, time.October, 14, 10, 0))

	// Tuesday: Dr. Vuong 09:00-17:00 and Dr. Li 10:00-16:00 both do chiropractic in Highland Park.
	offers, err := svc.FindOffers(context.Background(), dayQuery(t, dialogue.ServiceChiropractic, dialogue.LocationHighlandPark, 2026, time.October, 20))
	require.NoError(t, err)
	require.Len(t, offers, 15+11)

	assert.Equal(t, "dr_vuong", offers[0].ProviderID)
	assert.True(t, offers[0].Start.Equal(chicago(t, 2026, time.October, 20, 9, 0)))
	assert.Equal(t, "dr_li", offers[2].ProviderID, "ties order by provider id")
	assert.Equal(t, "dr_vuong", offers[3].ProviderID)
	assert.True(t, offers[2].Start.Equal(offers[3].Start))

	last := offers[len(offers)-1]
	assert.True(t, last.Start.Equal(chicago(t, 2026, time.October, 20, 16, 0)), "last slot must end at close")
	for _, o := range offers {
		assert.Equal(t, 60*time.Minute, o.Duration)
		assert.Equal(t, dialogue.LocationHighlandPark, o.Location)
		assert.Equal(t, dialogue.ServiceChiropractic, o.ServiceType)
	}
}

func TestFindOffers_RespectsBusinessHoursAndClosedDays(t *testing.T) {
	svc, _ := newTestService(t, chicago(t, 2026, time.October, 14, 10, 0))

	saturday, err := svc.FindOffers(context.Background(), dayQuery(t, dialogue.ServiceChiropractic, dialogue.LocationHighlandPark, 2026, time.October, 24))
	require.NoError(t, err)
	require.Len(t, saturday, 5, "Dr. Li only, clipped to the 13:00 close")
	assert.True(t, saturday[4].Start.Equal(chicago(t, 2026, time.October, 24, 12, 0)))

	sunday, err := svc.FindOffers(context.Background(), dayQuery(t, dialogue.ServiceChiropractic, dialogue.LocationHighlandPark, 2026, time.October, 25))
	require.NoError(t, err)
	assert.Empty(t, sunday)

	none, err := svc.FindOffers(context.Background(), dayQuery(t, dialogue.ServiceAcupuncture, dialogue.LocationArlingtonHeights, 2026, time.October, 19))
	require.NoError(t, err)
	assert.Empty(t, none, "Dr. Li does not work Mondays and Dr. Ye is not in Arlington Heights")
}

func TestFindOffers_SkipsPastAndBookedSlots(t *testing.T) {
	svc, _ := newTestService(t, chicago(t, 2026, time.October, 20, 11, 10))

	_, err := svc.Book(context.Background(), dialogue.BookingRequest{
		CallID:       "CA1",
		ServiceType:  dialogue.ServiceChiropractic,
		Location:     dialogue.LocationHighlandPark,
		ProviderID:   "dr_vuong",
		Start:        chicago(t, 2026, time.October, 20, 13, 0),
		PatientName:  "Jane Doe",
		PatientPhone: "8475550123",
	})
	require.NoError(t, err)

	offers, err := svc.FindOffers(context.Background(), dayQuery(t, dialogue.ServiceChiropractic, dialogue.LocationHighlandPark, 2026, time.October, 20))
	require.NoError(t, err)

	vuong, li := 0, 0
	for _, o := range offers {
		assert.True(t, o.Start.After(chicago(t, 2026, time.October, 20, 11, 10)))
		switch o.ProviderID {
		case "dr_vuong":
			vuong++
			busy := o.Start.After(chicago(t, 2026, time.October, 20, 12, 0)) && o.Start.Before(chicago(t, 2026, time.October, 20, 14, 0))
			assert.False(t, busy, "overlapping slot %s offered", o.Start)
		case "dr_li":
			li++
		}
	}
	assert.Equal(t, 10-3, vuong)
	assert.Equal(t, 8, li)
}

func TestFindOffers_RepositoryError(t *testing.T) {
	c, err := DefaultClinic()
	require.NoError(t, err)
	boom := errors.New("db down")
	svc := NewService(c, failingRepo{MemoryRepository: NewMemoryRepository(), listErr: boom}, logging.Discard())

	_, err = svc.FindOffers(context.Background(), dayQuery(t, dialogue.ServiceCupping, dialogue.LocationHighlandPark, 2026, time.October, 20))
	assert.ErrorIs(t, err, boom)
}

func TestBook_PersistsSyncsAndNotifies(t *testing.T) {
	svc, repo := newTestService(t, chicago(t, 2026, time.October, 14, 10, 0))
	sink := &recordingSink{}
	notifier := &recordingNotifier{}
	svc.WithEventSink(sink).WithNotifier(notifier)

	start := chicago(t, 2026, time.October, 20, 10, 0)
	id, err := svc.Book(context.Background(), dialogue.BookingRequest{
		CallID:       "CA1",
		ServiceType:  dialogue.ServiceAcupuncture,
		Location:     dialogue.LocationHighlandPark,
		ProviderID:   "dr_ye",
		ProviderName: "Dr. Ye",
		Start:        start,
		Duration:     time.Hour,
		PatientName:  "Jane Doe",
		PatientPhone: "8475550123",
	})
	require.NoError(t, err)
	assert.Regexp(t, `^APT-[0-9A-F]{8}$`, id)

	appt, err := svc.Appointment(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "dr_ye", appt.ProviderID)
	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.True(t, appt.StartsAt.Equal(start))
	assert.Equal(t, "gcal-evt-1", appt.ExternalEventID)

	require.Len(t, sink.appts, 1)
	require.Len(t, notifier.appts, 1)
	assert.Equal(t, id, notifier.appts[0].ID)

	_, err = repo.Get(context.Background(), "APT-MISSING")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBook_SideEffectFailuresDoNotFailBooking(t *testing.T) {
	svc, _ := newTestService(t, chicago(t, 2026, time.October, 14, 10, 0))
	svc.WithEventSink(&recordingSink{err: errors.New("google 500")}).
		WithNotifier(&recordingNotifier{err: errors.New("sendgrid 401")})

	id, err := svc.Book(context.Background(), dialogue.BookingRequest{
		ServiceType:  dialogue.ServiceCupping,
		Location:     dialogue.LocationArlingtonHeights,
		ProviderID:   "dr_li",
		Start:        chicago(t, 2026, time.October, 21, 10, 30),
		PatientName:  "Sam Lee",
		PatientPhone: "8475550199",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestBook_RejectsConflictsAndInvalidRequests(t *testing.T) {
	svc, _ := newTestService(t, chicago(t, 2026, time.October, 14, 10, 0))
	base := dialogue.BookingRequest{
		ServiceType:  dialogue.ServiceChiropractic,
		Location:     dialogue.LocationHighlandPark,
		ProviderID:   "dr_vuong",
		Start:        chicago(t, 2026, time.October, 20, 9, 0),
		PatientName:  "Jane Doe",
		PatientPhone: "8475550123",
	}
	_, err := svc.Book(context.Background(), base)
	require.NoError(t, err)

	overlap := base
	overlap.Start = chicago(t, 2026, time.October, 20, 9, 30)
	_, err = svc.Book(context.Background(), overlap)
	assert.ErrorIs(t, err, ErrSlotTaken)

	cases := map[string]func(r *dialogue.BookingRequest){
		"unknown provider":   func(r *dialogue.BookingRequest) { r.ProviderID = "dr_who" },
		"wrong service":      func(r *dialogue.BookingRequest) { r.ServiceType = dialogue.ServiceAcupuncture },
		"wrong location":     func(r *dialogue.BookingRequest) { r.ProviderID = "dr_ye"; r.ServiceType = dialogue.ServiceCupping; r.Location = dialogue.LocationArlingtonHeights },
		"missing phone":      func(r *dialogue.BookingRequest) { r.PatientPhone = "" },
		"in the past":        func(r *dialogue.BookingRequest) { r.Start = chicago(t, 2026, time.October, 13, 10, 0) },
		"after closing":      func(r *dialogue.BookingRequest) { r.Start = chicago(t, 2026, time.October, 22, 16, 30) },
		"closed day":         func(r *dialogue.BookingRequest) { r.Start = chicago(t, 2026, time.October, 25, 10, 0) },
		"doctor not in yet":  func(r *dialogue.BookingRequest) { r.ProviderID = "dr_li"; r.Start = chicago(t, 2026, time.October, 21, 9, 0) },
		"doctor not working": func(r *dialogue.BookingRequest) { r.ProviderID = "dr_li"; r.Start = chicago(t, 2026, time.October, 22, 11, 0) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := base
			req.Start = chicago(t, 2026, time.October, 23, 11, 0)
			mutate(&req)
			_, err := svc.Book(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidBooking)
		})
	}
}
