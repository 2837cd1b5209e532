// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"net/url"
	"strings"

	"github.com/samber/oops"
)

// MessageKind identifies which credential flow an outbound message serves.
type MessageKind string

// Message kinds.
const (
	MessageChangeEmail    MessageKind = "change_email"
	MessageVerifyNewEmail MessageKind = "verify_new_email"
	MessageSetPassword    MessageKind = "set_password"
	MessageResetPassword  MessageKind = "reset_password"
)

func (k MessageKind) String() string { return string(k) }

// Message is a notification carrying a callback link with an embedded token.
type Message struct {
	To          string
	Name        string
	Kind        MessageKind
	CallbackURL string
}

// Notifier delivers messages to users.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// DeliveryGate is implemented by notifiers that can refuse a recipient
// before a message is composed. A nil error reserves one delivery to the
// recipient for the next Send.
type DeliveryGate interface {
	Admit(ctx context.Context, to string) error
}

// CallbackTokenParam is the query parameter carrying the token in callback links.
const CallbackTokenParam = "token"

// parseCallbackURL validates a client supplied callback URL.
func parseCallbackURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, oops.Code("CALLBACK_URL_INVALID").Errorf("callback url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, oops.Code("CALLBACK_URL_INVALID").Wrap(err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, oops.Code("CALLBACK_URL_INVALID").
			With("scheme", u.Scheme).
			Errorf("callback url must be http or https")
	}
	if u.Host == "" {
		return nil, oops.Code("CALLBACK_URL_INVALID").Errorf("callback url must be absolute")
	}
	return u, nil
}

// callbackLink returns base with the token added to its query.
func callbackLink(base *url.URL, token string) string {
	link := *base
	q := link.Query()
	q.Set(CallbackTokenParam, token)
	link.RawQuery = q.Encode()
	return link.String()
}
