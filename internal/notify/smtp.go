// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"

	"github.com/samber/oops"
	"gopkg.in/gomail.v2"

	"github.com/holomush/accountd/internal/auth"
)

// SMTPConfig holds the outbound mail server settings.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPNotifier sends messages through an SMTP server.
type SMTPNotifier struct {
	from   string
	dialer sender
}

var _ auth.Notifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier creates an SMTPNotifier.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if cfg.Port <= 0 {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").With("port", cfg.Port).Errorf("smtp port must be positive")
	}
	if cfg.From == "" {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("smtp from address is required")
	}
	return &SMTPNotifier{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}, nil
}

// Send renders msg and delivers it. gomail has no context support; a done
// context is checked before dialing.
func (n *SMTPNotifier) Send(ctx context.Context, msg auth.Message) error {
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck // context errors pass through unchanged
	}
	subject, body, err := Render(msg)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	if msg.Name != "" {
		m.SetAddressHeader("To", msg.To, msg.Name)
	} else {
		m.SetHeader("To", msg.To)
	}
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := n.dialer.DialAndSend(m); err != nil {
		return oops.Code("NOTIFY_SEND_FAILED").
			With("kind", msg.Kind.String()).
			Wrap(err)
	}
	return nil
}
