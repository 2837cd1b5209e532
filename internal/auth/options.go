// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"log/slog"
	"time"
)

// Clock returns the current time.
type Clock func() time.Time

type serviceOptions struct {
	logger *slog.Logger
	now    Clock
	cache  IdentityCache
}

// Option configures a service constructor.
type Option func(*serviceOptions)

// WithLogger sets the logger used for best-effort failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now Clock) Option {
	return func(o *serviceOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIdentityCache enables identity snapshot caching for session lookups.
func WithIdentityCache(cache IdentityCache) Option {
	return func(o *serviceOptions) {
		o.cache = cache
	}
}

func buildOptions(opts []Option) serviceOptions {
	o := serviceOptions{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cache == nil {
		o.cache = NopIdentityCache{}
	}
	return o
}
