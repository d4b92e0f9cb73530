package presenter

import (
	"context"
	"fmt"

	"github.com/benmeehan/geofence-monitor/internal/models"
	"github.com/nikoksr/notify"
	"github.com/nikoksr/notify/service/mail"
)

// MailPresenter delivers notifications over SMTP.
type MailPresenter struct {
	smtpHost     string
	smtpPort     int
	smtpUser     string
	smtpPassword string
	recipients   []string
}

// NewMailPresenter creates a MailPresenter for the given SMTP endpoint
// and recipient list.
func NewMailPresenter(smtpHost string, smtpPort int, smtpUser, smtpPassword string, recipients []string) *MailPresenter {
	return &MailPresenter{
		smtpHost:     smtpHost,
		smtpPort:     smtpPort,
		smtpUser:     smtpUser,
		smtpPassword: smtpPassword,
		recipients:   recipients,
	}
}

// Present sends the notification as a mail to every recipient.
// A fresh mail service is built per notification: notify accumulates
// receivers across AddReceivers calls, so reusing one would cause
// duplicate sends.
func (p *MailPresenter) Present(ctx context.Context, n models.Notification) error {
	mailSvc := mail.New(p.smtpUser, fmt.Sprintf("%s:%d", p.smtpHost, p.smtpPort))
	mailSvc.AuthenticateSMTP("", p.smtpUser, p.smtpPassword, p.smtpHost)
	mailSvc.AddReceivers(p.recipients...)

	notifier := notify.New()
	notifier.UseServices(mailSvc)

	if err := notifier.Send(ctx, n.Title, n.Body); err != nil {
		return fmt.Errorf("send notification mail: %w", err)
	}
	return nil
}
