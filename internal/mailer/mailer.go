package mailer

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"
)

type Config struct {
	Host     string
	Port     string
	From     string
	Password string
}

// SendNotificationEmail mails a registration notice. kind selects the wording:
// batch_registered, status_confirmed, status_waitlisted or reminder.
func SendNotificationEmail(log *zerolog.Logger, cfg Config, recipientEmail, recipientName, kind string, eventTitles []string) error {
	titles := strings.Join(eventTitles, ", ")

	var subject, body string
	switch kind {
	case "batch_registered":
		subject = "Your registration has been received"
		body = fmt.Sprintf("Hello %s!\n\nWe have received your registration for: %s.\nOur staff will review it and confirm your place shortly.", recipientName, titles)
	case "status_confirmed":
		subject = "Your registration is confirmed"
		body = fmt.Sprintf("Hello %s!\n\nYour place for %s is confirmed. We look forward to seeing you!", recipientName, titles)
	case "status_waitlisted":
		subject = "You have been added to the waitlist"
		body = fmt.Sprintf("Hello %s!\n\nThe activity %s is currently full, so we have added you to the waitlist. We will let you know as soon as a place opens up.", recipientName, titles)
	case "reminder":
		subject = "Reminder: your activity is tomorrow"
		body = fmt.Sprintf("Hello %s!\n\nA friendly reminder that %s takes place tomorrow. See you there!", recipientName, titles)
	default:
		return fmt.Errorf("unknown notification kind %q", kind)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		cfg.From, recipientEmail, subject, body,
	)

	addr := cfg.Host + ":" + cfg.Port
	auth := smtp.PlainAuth("", cfg.From, cfg.Password, cfg.Host)

	if err := smtp.SendMail(addr, auth, cfg.From, []string{recipientEmail}, []byte(msg)); err != nil {
		log.Warn().Msgf("failed to send email to %s: %v", recipientEmail, err)
		return fmt.Errorf("send email: %w", err)
	}

	log.Info().Msgf("email sent to %s (kind: %s)", recipientEmail, kind)
	return nil
}
