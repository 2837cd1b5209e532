// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"log/slog"
	"net/url"
	"slices"
	"sync"

	"github.com/holomush/accountd/internal/auth"
)

// Outbox keeps delivered messages in memory. It backs the development
// server and tests.
type Outbox struct {
	mu       sync.Mutex
	messages []auth.Message
	fail     error
}

var _ auth.Notifier = (*Outbox)(nil)

// NewOutbox creates an empty Outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

// Send records msg, or returns the error set by FailWith.
func (o *Outbox) Send(ctx context.Context, msg auth.Message) error {
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck // context errors pass through unchanged
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return o.fail
	}
	o.messages = append(o.messages, msg)
	return nil
}

// FailWith makes subsequent sends fail with err; nil restores delivery.
func (o *Outbox) FailWith(err error) {
	o.mu.Lock()
	o.fail = err
	o.mu.Unlock()
}

// Messages returns a copy of everything delivered so far.
func (o *Outbox) Messages() []auth.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.messages)
}

// Last returns the most recent message sent to the address.
func (o *Outbox) Last(to string) (auth.Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.messages) - 1; i >= 0; i-- {
		if auth.SameEmail(o.messages[i].To, to) {
			return o.messages[i], true
		}
	}
	return auth.Message{}, false
}

// TokenFrom extracts the token embedded in a message's callback link.
func TokenFrom(msg auth.Message) string {
	u, err := url.Parse(msg.CallbackURL)
	if err != nil {
		return ""
	}
	return u.Query().Get(auth.CallbackTokenParam)
}

// LogNotifier writes messages to a logger. The token in the callback link is
// replaced so it never reaches log output.
type LogNotifier struct {
	logger *slog.Logger
}

var _ auth.Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Send logs msg.
func (n *LogNotifier) Send(ctx context.Context, msg auth.Message) error {
	subject, _, err := Render(msg)
	if err != nil {
		return err
	}
	n.logger.InfoContext(ctx, "notification",
		"kind", msg.Kind.String(),
		"to", msg.To,
		"subject", subject,
		"link", redactLink(msg.CallbackURL))
	return nil
}

func redactLink(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	q := u.Query()
	if q.Has(auth.CallbackTokenParam) {
		q.Set(auth.CallbackTokenParam, "[REDACTED]")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
