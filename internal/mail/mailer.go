// Package mail delivers transactional email over SMTP.
package mail

import (
	"fmt"
	"log/slog"

	gomail "gopkg.in/gomail.v2"
)

// Sender is the delivery interface the account service depends on.
// Tests substitute a fake; production uses the SMTP implementation below.
type Sender interface {
	SendVerification(to, username, token string) error
	SendWelcome(to, username string) error
}

// SMTPConfig holds the SMTP connection settings.
type SMTPConfig struct {
	Host    string
	Port    int
	User    string
	Pass    string
	From    string
	SiteURL string // base URL embedded in verification links
}

// SMTPSender sends mail through a real SMTP server via gomail.
type SMTPSender struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
	logger *slog.Logger
}

var _ Sender = (*SMTPSender)(nil)

// NewSMTPSender creates a sender for the given SMTP settings.
func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass),
		logger: logger,
	}
}

// SendVerification mails the single-use verification link. The link is
// valid for 24 hours; the token in it is consumed on first successful use.
func (s *SMTPSender) SendVerification(to, username, token string) error {
	link := fmt.Sprintf("%s/api/auth/verify-email?token=%s", s.cfg.SiteURL, token)

	body := fmt.Sprintf(
		"Hello %s,\n\n"+
			"Please confirm your email address by opening the link below:\n\n"+
			"%s\n\n"+
			"The link expires in 24 hours. If you did not create this account, "+
			"you can ignore this message.\n",
		username, link,
	)

	if err := s.send(to, "Skywatch - verify your email", body); err != nil {
		return fmt.Errorf("mail: sending verification to %s: %w", to, err)
	}

	s.logger.Info("verification email sent", slog.String("to", to))
	return nil
}

// SendWelcome mails the post-verification welcome note. Failures are not
// fatal to the verification flow; the caller only logs them.
func (s *SMTPSender) SendWelcome(to, username string) error {
	body := fmt.Sprintf(
		"Hello %s,\n\nYour account is verified and active. Enjoy the weather.\n",
		username,
	)

	if err := s.send(to, "Skywatch - welcome", body); err != nil {
		return fmt.Errorf("mail: sending welcome to %s: %w", to, err)
	}

	return nil
}

func (s *SMTPSender) send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	return s.dialer.DialAndSend(m)
}
