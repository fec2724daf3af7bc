// file: mailer/mailer.go

package mailer

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/themidix/GlucoCheckWebAPIv4/config"
	"github.com/themidix/GlucoCheckWebAPIv4/logger"
	"gopkg.in/gomail.v2"
)

const resetSubject = "Password Reset Request"

// Mailer delivers password reset links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, link string) error
}

// New picks the SMTP mailer when a host is configured and the log mailer otherwise.
func New(cfg config.MailConfig) Mailer {
	if cfg.Host == "" {
		logger.Log.Warn("mail.host is empty; password reset links will only be logged")
		return LogMailer{}
	}
	return NewSMTPMailer(cfg)
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	from   string
	dialer *gomail.Dialer
}

func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.UseTLS {
		d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	}
	return &SMTPMailer{from: cfg.From, dialer: d}
}

func resetMessage(from, to, link string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", resetSubject)
	m.SetBody("text/plain", fmt.Sprintf("Click the link to reset your password: %s", link))
	return m
}

// SendPasswordReset dials the relay for each message. Cancellation is honoured
// only before dialing; gomail has no context support.
func (s *SMTPMailer) SendPasswordReset(ctx context.Context, to, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(resetMessage(s.from, to, link)); err != nil {
		logger.Log.WithError(err).WithField("to", to).Error("Failed to send password reset email")
		return fmt.Errorf("could not send password reset email: %w", err)
	}
	logger.Log.WithField("to", to).Info("Password reset email sent")
	return nil
}

// LogMailer writes the reset link to the log instead of sending mail.
type LogMailer struct{}

func (LogMailer) SendPasswordReset(_ context.Context, to, link string) error {
	logger.Log.WithField("to", to).WithField("link", link).Info("Password reset link issued")
	return nil
}
