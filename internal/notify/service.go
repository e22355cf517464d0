package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/clinic-voice-agent/internal/calendar"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// Service emails clinic staff about appointments booked over the phone.
type Service struct {
	email      EmailSender
	recipients []string
	clinicName string
	loc        *time.Location
	logger     *logging.Logger
}

// NewService creates a booking notifier. Times are rendered in loc.
func NewService(email EmailSender, recipients []string, clinicName string, loc *time.Location, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	if clinicName == "" {
		clinicName = "Clinic"
	}
	return &Service{
		email:      email,
		recipients: recipients,
		clinicName: clinicName,
		loc:        loc,
		logger:     logger,
	}
}

var _ calendar.BookingNotifier = (*Service)(nil)

// NotifyBooking sends one email per configured recipient.
func (s *Service) NotifyBooking(ctx context.Context, appt calendar.Appointment) error {
	if s.email == nil || len(s.recipients) == 0 {
		s.logger.Debug("notify: no email sender or recipients, skipping booking notification", "appointment_id", appt.ID)
		return nil
	}

	when := appt.StartsAt.In(s.loc).Format("Monday, January 2 at 3:04 PM")
	service := titleWord(string(appt.ServiceType))
	location := appt.Location.Spoken()

	subject := fmt.Sprintf("New %s appointment - %s", service, appt.PatientName)
	body := fmt.Sprintf(`A new appointment was booked by phone.

Patient: %s
Phone: %s
Service: %s
Provider: %s
Location: %s
When: %s
Confirmation: %s

- %s voice scheduling`, appt.PatientName, formatPhone(appt.PatientPhone), service, appt.ProviderName, location, when, appt.ID, s.clinicName)

	rows := []struct{ label, value string }{
		{"Patient", appt.PatientName},
		{"Phone", formatPhone(appt.PatientPhone)},
		{"Service", service},
		{"Provider", appt.ProviderName},
		{"Location", location},
		{"When", when},
		{"Confirmation", appt.ID},
	}
	var table strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&table, `  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>%s:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
`, r.label, html.EscapeString(r.value))
	}
	htmlBody := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: #2563eb;">New appointment booked by phone</h2>
<table style="border-collapse: collapse; margin: 20px 0;">
%s</table>
<p style="color: #6b7280; font-size: 12px; margin-top: 20px;">- %s voice scheduling</p>
</div>`, table.String(), html.EscapeString(s.clinicName))

	var failed int
	for _, recipient := range s.recipients {
		msg := EmailMessage{To: recipient, Subject: subject, Body: body, HTML: htmlBody, Category: CategoryBooking}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("notify: failed to send booking email", "error", err, "to", recipient, "appointment_id", appt.ID)
			failed++
			continue
		}
		s.logger.Info("notify: booking email sent", "to", recipient, "appointment_id", appt.ID)
	}
	if failed > 0 {
		return fmt.Errorf("notify: %d notification(s) failed", failed)
	}
	return nil
}

// formatPhone renders ten digits as (847) 555-0123.
func formatPhone(digits string) string {
	if len(digits) != 10 {
		return digits
	}
	return fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:])
}

func titleWord(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
