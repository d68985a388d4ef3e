// Package mailer delivers HTML mail over SMTP.
package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"
)

// Sender delivers a single HTML message.
type Sender interface {
	Send(ctx context.Context, subject, recipient, htmlBody string) error
}

// Config is the immutable SMTP configuration of a sender.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
}

// SMTPSender sends mail through an SMTP relay, one connection per message.
type SMTPSender struct {
	cfg Config
}

var _ Sender = (*SMTPSender)(nil)

// NewSMTPSender validates cfg and returns a sender bound to it.
func NewSMTPSender(cfg Config) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("mailer: host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("mailer: sender address is required")
	}
	return &SMTPSender{cfg: cfg}, nil
}

// Send builds the message and delivers it.
func (s *SMTPSender) Send(ctx context.Context, subject, recipient, htmlBody string) error {
	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(recipient); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) clientOptions() []mail.Option {
	opts := []mail.Option{mail.WithPort(s.cfg.Port)}
	if s.cfg.UseTLS {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.NoTLS))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}

// LogSender writes messages to the log instead of sending them. It is meant
// for local development.
type LogSender struct{}

var _ Sender = LogSender{}

func (LogSender) Send(_ context.Context, subject, recipient, htmlBody string) error {
	log.Info().
		Str("subject", subject).
		Str("to", recipient).
		Str("body", htmlBody).
		Msg("mail not sent (console backend)")
	return nil
}

// New returns the sender selected by backend: "console" logs messages,
// anything else uses SMTP.
func New(backend string, cfg Config) (Sender, error) {
	if backend == "console" {
		return LogSender{}, nil
	}
	return NewSMTPSender(cfg)
}
