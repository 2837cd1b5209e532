// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"
	"golang.org/x/time/rate"

	"github.com/holomush/accountd/internal/auth"
)

// ThrottleConfig bounds outbound message rates.
type ThrottleConfig struct {
	// PerSecond and Burst bound the total outbound rate.
	PerSecond float64 `koanf:"per_second"`
	Burst     int     `koanf:"burst"`
	// RecipientEvery is the minimum spacing between messages to one
	// address; RecipientBurst messages may be sent back to back.
	RecipientEvery time.Duration `koanf:"recipient_every"`
	RecipientBurst int           `koanf:"recipient_burst"`
}

// DefaultThrottleConfig returns conservative defaults.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		PerSecond:      10,
		Burst:          20,
		RecipientEvery: 20 * time.Second,
		RecipientBurst: 3,
	}
}

// Throttled wraps a Notifier with a global limiter, waited on, and a
// per-recipient limiter, which rejects.
type Throttled struct {
	next   auth.Notifier
	global *rate.Limiter
	cfg    ThrottleConfig

	mu         sync.Mutex
	recipients map[string]*recipientLimiter
	now        func() time.Time
}

type recipientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	reserved int // admitted sends not yet made
}

var (
	_ auth.Notifier     = (*Throttled)(nil)
	_ auth.DeliveryGate = (*Throttled)(nil)
)

// NewThrottled wraps next.
func NewThrottled(next auth.Notifier, cfg ThrottleConfig) *Throttled {
	global := rate.NewLimiter(rate.Inf, 0)
	if cfg.PerSecond > 0 {
		global = rate.NewLimiter(rate.Limit(cfg.PerSecond), max(cfg.Burst, 1))
	}
	return &Throttled{
		next:       next,
		global:     global,
		cfg:        cfg,
		recipients: make(map[string]*recipientLimiter),
		now:        time.Now,
	}
}

// Admit reserves one message to the recipient, or rejects if the
// recipient's budget is spent. The next Send to the recipient uses the
// reservation.
func (t *Throttled) Admit(_ context.Context, to string) error {
	if !t.allowRecipient(to, true) {
		return oops.Code("NOTIFY_RATE_LIMITED").
			Errorf("too many messages to this recipient")
	}
	return nil
}

// Send delivers msg once both limiters allow it.
func (t *Throttled) Send(ctx context.Context, msg auth.Message) error {
	if !t.allowRecipient(msg.To, false) {
		return oops.Code("NOTIFY_RATE_LIMITED").
			With("kind", msg.Kind.String()).
			Errorf("too many messages to this recipient")
	}
	if err := t.global.Wait(ctx); err != nil {
		return oops.Code("NOTIFY_RATE_LIMITED").
			With("kind", msg.Kind.String()).
			Wrap(err)
	}
	return t.next.Send(ctx, msg)
}

// allowRecipient takes one message from the recipient's budget. With
// reserve set the message is held for a later Send; otherwise a held
// message is used first.
func (t *Throttled) allowRecipient(to string, reserve bool) bool {
	if t.cfg.RecipientEvery <= 0 {
		return true
	}
	key := strings.ToLower(strings.TrimSpace(to))
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked(now)
	r, ok := t.recipients[key]
	if !ok {
		r = &recipientLimiter{limiter: rate.NewLimiter(rate.Every(t.cfg.RecipientEvery), max(t.cfg.RecipientBurst, 1))}
		t.recipients[key] = r
	}
	r.lastSeen = now
	if !reserve && r.reserved > 0 {
		r.reserved--
		return true
	}
	if !r.limiter.AllowN(now, 1) {
		return false
	}
	if reserve {
		r.reserved++
	}
	return true
}

// pruneLocked drops recipients idle long enough for their bucket to refill.
func (t *Throttled) pruneLocked(now time.Time) {
	idle := t.cfg.RecipientEvery * time.Duration(max(t.cfg.RecipientBurst, 1))
	for key, r := range t.recipients {
		if r.reserved == 0 && now.Sub(r.lastSeen) > idle {
			delete(t.recipients, key)
		}
	}
}
