package services

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/censusconnect/authserver/internal/logging"
	"github.com/censusconnect/authserver/internal/server/config"
)

// EmailSender delivers transactional mail (activation links, reset links).
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender sends mail over plain SMTP.
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
}

func NewSMTPSender(cfg *config.Config) *SMTPSender {
	var auth smtp.Auth
	if cfg.SMTPUsername != "" {
		host := cfg.SMTPAddr
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, host)
	}
	return &SMTPSender{addr: cfg.SMTPAddr, from: cfg.SMTPFrom, auth: auth}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", s.from, to, subject, body)
	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("error sending mail: %w", err)
	}
	return nil
}

// LogSender writes mail to the log instead of delivering it. Used in
// development when no SMTP endpoint is configured.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.log.Info(ctx, "outbound mail", "to", to, "subject", subject, "body", body)
	return nil
}
