package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GoogleCalendarSink inserts booked appointments into a Google Calendar.
type GoogleCalendarSink struct {
	events     *gcal.EventsService
	calendarID string
	timezone   string
}

// NewGoogleCalendarSink authenticates with a service-account credentials
// document. Extra options are appended after the credentials.
func NewGoogleCalendarSink(ctx context.Context, credentialsJSON, calendarID, timezone string, opts ...option.ClientOption) (*GoogleCalendarSink, error) {
	if strings.TrimSpace(credentialsJSON) == "" {
		return nil, errors.New("calendar: google credentials are required")
	}
	base := []option.ClientOption{
		option.WithCredentialsJSON([]byte(credentialsJSON)),
		option.WithScopes(gcal.CalendarEventsScope),
	}
	svc, err := gcal.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("calendar: create google calendar client: %w", err)
	}
	return newGoogleCalendarSinkWithService(svc, calendarID, timezone), nil
}

func newGoogleCalendarSinkWithService(svc *gcal.Service, calendarID, timezone string) *GoogleCalendarSink {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &GoogleCalendarSink{events: svc.Events, calendarID: calendarID, timezone: timezone}
}

// CreateEvent implements EventSink.
func (g *GoogleCalendarSink) CreateEvent(ctx context.Context, appt Appointment) (string, error) {
	event := &gcal.Event{
		Summary: fmt.Sprintf("%s - %s", titleService(string(appt.ServiceType)), appt.PatientName),
		Description: fmt.Sprintf("Confirmation: %s\nPatient: %s\nPhone: %s\nProvider: %s",
			appt.ID, appt.PatientName, appt.PatientPhone, appt.ProviderName),
		Location: appt.Location.Spoken(),
		Start: &gcal.EventDateTime{
			DateTime: appt.StartsAt.Format(time.RFC3339),
			TimeZone: g.timezone,
		},
		End: &gcal.EventDateTime{
			DateTime: appt.EndsAt().Format(time.RFC3339),
			TimeZone: g.timezone,
		},
		ExtendedProperties: &gcal.EventExtendedProperties{
			Private: map[string]string{
				"confirmation_id": appt.ID,
				"provider_id":     appt.ProviderID,
			},
		},
	}
	created, err := g.events.Insert(g.calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("calendar: insert google event: %w", err)
	}
	return created.Id, nil
}

func titleService(s string) string {
	if s == "" {
		return "Appointment"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
