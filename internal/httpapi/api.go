// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the accountd credential flows over HTTP.
package httpapi

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/auth"
	"github.com/holomush/accountd/internal/observability"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "accountd_session"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// Services are the domain services the API delegates to.
type Services struct {
	Sessions      *auth.SessionManager
	Resolver      *auth.IdentityResolver
	Authenticator *auth.Authenticator
	Workflow      *auth.CredentialWorkflow
}

// Options tune HTTP behavior.
type Options struct {
	CookieSecure bool
	Logger       *slog.Logger
	Metrics      *observability.Metrics // nil disables request metrics
	Now          func() time.Time
	// RequestTimeout bounds each request; zero disables the bound.
	RequestTimeout time.Duration
	// TrustedProxies are the CIDR ranges allowed to set the client address
	// through X-Forwarded-For or X-Real-IP.
	TrustedProxies []string
}

// API serves the account endpoints.
type API struct {
	svc     Services
	secure  bool
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
	timeout time.Duration
	trusted []netip.Prefix
}

// New creates an API.
func New(svc Services, opts Options) (*API, error) {
	if svc.Sessions == nil {
		return nil, oops.Errorf("session manager is required")
	}
	if svc.Resolver == nil {
		return nil, oops.Errorf("identity resolver is required")
	}
	if svc.Authenticator == nil {
		return nil, oops.Errorf("authenticator is required")
	}
	if svc.Workflow == nil {
		return nil, oops.Errorf("credential workflow is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	trusted := make([]netip.Prefix, 0, len(opts.TrustedProxies))
	for _, cidr := range opts.TrustedProxies {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, oops.Code("TRUSTED_PROXY_INVALID").With("cidr", cidr).Wrap(err)
		}
		trusted = append(trusted, prefix.Masked())
	}
	return &API{
		svc:     svc,
		secure:  opts.CookieSecure,
		logger:  logger,
		metrics: opts.Metrics,
		now:     now,
		timeout: opts.RequestTimeout,
		trusted: trusted,
	}, nil
}

// Routes returns the API's HTTP handler.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.realIP)
	r.Use(a.logRequests)
	r.Use(middleware.Recoverer)
	if a.timeout > 0 {
		r.Use(middleware.Timeout(a.timeout))
	}
	r.Use(a.observe)
	r.Use(a.Authenticate)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/sign-in", a.handleSignIn)
		r.Get("/session", a.handleSession)
		r.Post("/password/send-reset", a.handleSendResetPassword)
		r.Post("/password", a.handleChangePassword)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth)
			r.Post("/sign-out", a.handleSignOut)
			r.Get("/sessions", a.handleListSessions)
			r.Post("/change-email/send", a.handleSendChangeEmail)
			r.Post("/change-email/verify", a.handleSendVerifyChangeEmail)
			r.Post("/change-email", a.handleChangeEmail)
			r.Post("/password/send-set", a.handleSendSetPassword)
		})
	})
	r.With(RequireAuth).Get("/api/me", a.handleMe)

	return r
}
