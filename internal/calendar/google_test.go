package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

func TestGoogleCalendarSink_CreateEvent(t *testing.T) {
	var received gcal.Event
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"evt-123","status":"confirmed"}`))
	}))
	defer srv.Close()

	svc, err := gcal.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	sink := newGoogleCalendarSinkWithService(svc, "", "America/Chicago")

	appt := sampleAppointment()
	id, err := sink.CreateEvent(context.Background(), appt)
	require.NoError(t, err)
	assert.Equal(t, "evt-123", id)

	assert.True(t, strings.HasSuffix(path, "/calendars/primary/events"), path)
	assert.Equal(t, "Acupuncture - Jane Doe", received.Summary)
	assert.Equal(t, "Highland Park", received.Location)
	assert.Equal(t, "2026-10-20T15:00:00Z", received.Start.DateTime)
	assert.Equal(t, "2026-10-20T16:00:00Z", received.End.DateTime)
	assert.Equal(t, "America/Chicago", received.Start.TimeZone)
	assert.Contains(t, received.Description, "APT-0A1B2C3D")
	assert.Equal(t, "APT-0A1B2C3D", received.ExtendedProperties.Private["confirmation_id"])
}

func TestGoogleCalendarSink_PropagatesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"forbidden"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	svc, err := gcal.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	_, err = newGoogleCalendarSinkWithService(svc, "clinic@example.com", "").CreateEvent(context.Background(), sampleAppointment())
	assert.ErrorContains(t, err, "insert google event")
}

func TestNewGoogleCalendarSink_RequiresCredentials(t *testing.T) {
	_, err := NewGoogleCalendarSink(context.Background(), "", "primary", "America/Chicago")
	assert.Error(t, err)
}
