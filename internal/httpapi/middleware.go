// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/holomush/accountd/internal/auth"
)

type tokenKey struct{}

// credentialFrom reads the session cookie and bearer token from r.
func credentialFrom(r *http.Request) auth.Credential {
	var cred auth.Credential
	if c, err := r.Cookie(SessionCookieName); err == nil {
		cred.Cookie = c.Value
	}
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && strings.TrimSpace(token) != "" {
			cred.Bearer = &auth.BearerToken{Token: strings.TrimSpace(token)}
		}
	}
	return cred
}

// Authenticate resolves the request credential and stores the identity in
// the request context. Requests without a valid credential continue
// anonymously; lookup failures are reported as errors.
func (a *API) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred := credentialFrom(r)
		if cred.SessionToken() == "" {
			next.ServeHTTP(w, r)
			return
		}
		identity, err := a.svc.Resolver.Resolve(r.Context(), cred)
		switch {
		case errors.Is(err, auth.ErrUnauthenticated):
			next.ServeHTTP(w, r)
		case err != nil:
			a.writeError(w, r, err)
		default:
			ctx := auth.WithIdentity(r.Context(), identity)
			ctx = context.WithValue(ctx, tokenKey{}, cred.SessionToken())
			next.ServeHTTP(w, r.WithContext(ctx))
		}
	})
}

// RequireAuth rejects requests that carry no identity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.IdentityFromContext(r.Context()); !ok {
			writeJSON(w, http.StatusUnauthorized, errorBody{
				Code:    auth.CodeUnauthenticated,
				Message: "authentication required",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// realIP takes the client address from forwarding headers only when the
// connection comes from a trusted proxy.
func (a *API) realIP(next http.Handler) http.Handler {
	if len(a.trusted) == 0 {
		return next
	}
	forwarded := middleware.RealIP(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.fromTrustedProxy(r.RemoteAddr) {
			forwarded.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) fromTrustedProxy(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range a.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func (a *API) observe(next http.Handler) http.Handler {
	if a.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		a.metrics.ObserveRequest(route, statusOf(ww), time.Since(start))
	})
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		a.logger.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", statusOf(ww),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// statusOf reports 200 for handlers that never wrote a header.
func statusOf(ww middleware.WrapResponseWriter) int {
	if ww.Status() == 0 {
		return http.StatusOK
	}
	return ww.Status()
}
