package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"
)

// ErrDelivery marks a failure of the notification sink. Callers log it and move on.
var ErrDelivery = errors.New("notification delivery failed")

type Email struct {
	To      string
	Subject string
	HTML    string
	// CancelURL is carried alongside the body so sinks that do not deliver
	// (LogSink) can still surface the link during development.
	CancelURL string
}

// Sink accepts a rendered email. No delivery guarantee is assumed.
type Sink interface {
	Send(ctx context.Context, e Email) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPSink struct {
	cfg SMTPConfig
	log *zerolog.Logger
}

func NewSMTPSink(cfg SMTPConfig, log *zerolog.Logger) *SMTPSink {
	return &SMTPSink{cfg: cfg, log: log}
}

func (s *SMTPSink) Send(ctx context.Context, e Email) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	msg := strings.Join([]string{
		"From: " + s.cfg.From,
		"To: " + e.To,
		"Subject: " + e.Subject,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=\"UTF-8\"",
		"",
		e.HTML,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{e.To}, []byte(msg)); err != nil {
		s.log.Warn().Err(err).Str("to", e.To).Msg("failed to send email")
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	s.log.Info().Str("to", e.To).Str("subject", e.Subject).Msg("email sent")
	return nil
}

// LogSink is used when no SMTP server is configured. It never fails.
type LogSink struct {
	log *zerolog.Logger
}

func NewLogSink(log *zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Send(_ context.Context, e Email) error {
	ev := s.log.Info().Str("to", e.To).Str("subject", e.Subject)
	if e.CancelURL != "" {
		ev = ev.Str("cancel_url", e.CancelURL)
	}
	ev.Msg("email not configured, would have sent")
	return nil
}
