package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/wolfman30/clinic-voice-agent/internal/calendar"
	appconfig "github.com/wolfman30/clinic-voice-agent/internal/config"
	"github.com/wolfman30/clinic-voice-agent/internal/notify"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// BuildBookingNotifier selects the email provider for booking notices. It
// returns nil when no recipients are configured. A provider missing its
// credentials degrades to the logging stub.
func BuildBookingNotifier(cfg *appconfig.Config, clinic *calendar.Clinic, ses *sesv2.Client, logger *logging.Logger) calendar.BookingNotifier {
	if cfg == nil || len(cfg.NotifyRecipients) == 0 {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	var sender notify.EmailSender
	switch cfg.NotifyProvider {
	case "sendgrid":
		if sg := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sg != nil {
			sender = sg
		}
	case "ses":
		if ses != nil {
			if s := notify.NewSESSender(ses, notify.SESConfig{
				FromEmail:        cfg.SESFromEmail,
				FromName:         cfg.SESFromName,
				ConfigurationSet: cfg.SESConfigSet,
			}, logger); s != nil {
				sender = s
			}
		}
	}
	if sender == nil {
		if cfg.NotifyProvider != "" && cfg.NotifyProvider != "stub" {
			logger.Warn("email provider not configured; booking notices will only be logged", "provider", cfg.NotifyProvider)
		}
		sender = notify.NewStubEmailSender(logger)
	}

	if clinic == nil {
		return notify.NewService(sender, cfg.NotifyRecipients, "", nil, logger)
	}
	return notify.NewService(sender, cfg.NotifyRecipients, clinic.Name, clinic.Location(), logger)
}
