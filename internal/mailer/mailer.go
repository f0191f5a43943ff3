package mailer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"

	"github.com/jhillyerd/enmime"
	"go.uber.org/zap"

	"mailcss/internal/config"
	"mailcss/internal/mail"
)

// Hook runs on every message about to be sent. It may return a different
// message; an error cancels sending.
type Hook func(*mail.Message) (*mail.Message, error)

// Mailer encodes messages and hands them to an enmime sender.
type Mailer struct {
	log    *zap.Logger
	sender enmime.Sender
	hooks  []Hook
}

func New(sender enmime.Sender, log *zap.Logger) *Mailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mailer{log: log.Named("mailer"), sender: sender}
}

// NewSMTP creates a mailer delivering through SMTP_HOST:SMTP_PORT, with
// PLAIN auth when SMTP_USER is set.
func NewSMTP(cfg config.Config, log *zap.Logger) (*Mailer, error) {
	if err := cfg.Require("SMTP_HOST", cfg.SMTPHost); err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort))

	var auth smtp.Auth
	if cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return New(enmime.NewSMTP(addr, auth), log), nil
}

// OnSending registers a hook. Hooks run in registration order.
func (m *Mailer) OnSending(h Hook) *Mailer {
	m.hooks = append(m.hooks, h)
	return m
}

// Send runs the hooks and delivers msg.
func (m *Mailer) Send(ctx context.Context, msg *mail.Message) error {
	if msg == nil {
		return errors.New("nil message")
	}
	for i, h := range m.hooks {
		next, err := h(msg)
		if err != nil {
			return fmt.Errorf("sending hook %d: %w", i, err)
		}
		if next != nil {
			msg = next
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	recipients := msg.Recipients()
	if len(recipients) == 0 {
		return errors.New("message has no recipients")
	}
	raw, err := msg.Bytes()
	if err != nil {
		return err
	}
	if err := m.sender.Send(msg.From.Address, recipients, raw); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	m.log.Info("Message sent",
		zap.String("subject", msg.Subject),
		zap.Int("recipients", len(recipients)),
		zap.Int("bytes", len(raw)))
	return nil
}
