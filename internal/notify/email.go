package notify

import (
	"context"
	"net/mail"

	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// CategoryBooking tags booking notices so providers can report on them.
const CategoryBooking = "booking"

const defaultFromName = "Clinic Front Desk"

// EmailSender delivers one email. SendGrid, SES and the logging stub are
// interchangeable behind it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is one outbound email. HTML is optional.
type EmailMessage struct {
	To       string
	ToName   string
	ReplyTo  string
	Subject  string
	Body     string
	HTML     string
	Category string
}

// sender is the From identity shared by the real providers.
type sender struct {
	email string
	name  string
}

func newSender(email, name string) sender {
	if name == "" {
		name = defaultFromName
	}
	return sender{email: email, name: name}
}

// header renders the identity for a From header, quoting the name when needed.
func (s sender) header() string {
	return (&mail.Address{Name: s.name, Address: s.email}).String()
}

// StubEmailSender logs instead of sending. Used when NOTIFY_PROVIDER is stub
// or the chosen provider has no credentials.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("notify: email not sent (stub)", "to", msg.To, "subject", msg.Subject, "category", msg.Category)
	return nil
}

var _ EmailSender = (*StubEmailSender)(nil)
