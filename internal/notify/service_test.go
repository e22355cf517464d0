package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wolfman30/clinic-voice-agent/internal/calendar"
	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

type mockEmailSender struct {
	sent    []EmailMessage
	failFor map[string]bool
}

func (m *mockEmailSender) Send(_ context.Context, msg EmailMessage) error {
	if m.failFor[msg.To] {
		return errors.New("mailbox unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func bookedAppointment() calendar.Appointment {
	return calendar.Appointment{
		ID:           "APT-0A1B2C3D",
		ProviderID:   "dr_ye",
		ProviderName: "Dr. Ye",
		ServiceType:  dialogue.ServiceAcupuncture,
		Location:     dialogue.LocationHighlandPark,
		StartsAt:     time.Date(2026, time.October, 20, 15, 0, 0, 0, time.UTC),
		Duration:     time.Hour,
		PatientName:  "Jane <Doe>",
		PatientPhone: "8475550123",
		Status:       calendar.StatusConfirmed,
	}
}

func TestService_NotifyBooking(t *testing.T) {
	chicago := time.FixedZone("CDT", -5*60*60)
	email := &mockEmailSender{}
	svc := NewService(email, []string{"front@clinic.test", "owner@clinic.test"}, "North Shore Integrative Health", chicago, logging.Discard())

	if err := svc.NotifyBooking(context.Background(), bookedAppointment()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.sent) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(email.sent))
	}
	msg := email.sent[0]
	if msg.Subject != "New Acupuncture appointment - Jane <Doe>" {
		t.Errorf("unexpected subject: %q", msg.Subject)
	}
	for _, want := range []string{"Phone: (847) 555-0123", "Provider: Dr. Ye", "Location: Highland Park", "When: Tuesday, October 20 at 10:00 AM", "Confirmation: APT-0A1B2C3D"} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body missing %q:\n%s", want, msg.Body)
		}
	}
	if !strings.Contains(msg.HTML, "Jane &lt;Doe&gt;") {
		t.Errorf("expected escaped patient name in html: %s", msg.HTML)
	}
}

func TestService_NotifyBooking_PartialFailure(t *testing.T) {
	email := &mockEmailSender{failFor: map[string]bool{"owner@clinic.test": true}}
	svc := NewService(email, []string{"front@clinic.test", "owner@clinic.test"}, "", nil, logging.Discard())

	err := svc.NotifyBooking(context.Background(), bookedAppointment())
	if err == nil || !strings.Contains(err.Error(), "1 notification(s) failed") {
		t.Fatalf("expected partial failure, got %v", err)
	}
	if len(email.sent) != 1 {
		t.Fatalf("expected the healthy recipient to still get mail, got %d", len(email.sent))
	}
}

func TestService_NotifyBooking_SkipsWithoutRecipients(t *testing.T) {
	email := &mockEmailSender{}
	if err := NewService(email, nil, "", nil, logging.Discard()).NotifyBooking(context.Background(), bookedAppointment()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := NewService(nil, []string{"a@b.c"}, "", nil, logging.Discard()).NotifyBooking(context.Background(), bookedAppointment()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.sent) != 0 {
		t.Fatalf("expected no mail, got %d", len(email.sent))
	}
}

func TestFormatPhone(t *testing.T) {
	if got := formatPhone("8475550123"); got != "(847) 555-0123" {
		t.Errorf("got %q", got)
	}
	if got := formatPhone("555"); got != "555" {
		t.Errorf("got %q", got)
	}
}
