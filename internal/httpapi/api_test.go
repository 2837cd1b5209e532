// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accountd/internal/auth"
	"github.com/holomush/accountd/internal/auth/memory"
	"github.com/holomush/accountd/internal/httpapi"
	"github.com/holomush/accountd/internal/notify"
	"github.com/holomush/accountd/internal/observability"
	"github.com/holomush/accountd/pkg/errutil"
)

const callbackURL = "https://app.example.com/callback"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store   *memory.Store
	handler http.Handler
	clock   *testClock
	outbox  *notify.Outbox
	users   *auth.UserService
	hasher  *auth.Argon2idHasher
	metrics *observability.Metrics
}

func newFixture(t *testing.T, opts ...func(*httpapi.Options)) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := &fixture{
		store:   store,
		clock:   &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		outbox:  notify.NewOutbox(),
		hasher:  auth.NewArgon2idHasher(auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1}),
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}
	clock := auth.WithClock(f.clock.Now)

	var err error
	f.users, err = auth.NewUserService(store.Users())
	require.NoError(t, err)
	sessions, err := auth.NewSessionManager(store.Users(), store.Sessions(), 24*time.Hour, clock)
	require.NoError(t, err)
	tokens, err := auth.NewTokenStore(store.Tokens(), store, clock)
	require.NoError(t, err)
	workflow, err := auth.NewCredentialWorkflow(store.Users(), tokens, sessions, store, f.hasher, f.outbox, clock)
	require.NoError(t, err)
	signin, err := auth.NewAuthenticator(store.Users(), sessions, f.hasher, clock)
	require.NoError(t, err)

	apiOpts := httpapi.Options{CookieSecure: true, Metrics: f.metrics, Now: f.clock.Now}
	for _, opt := range opts {
		opt(&apiOpts)
	}
	api, err := httpapi.New(httpapi.Services{
		Sessions:      sessions,
		Resolver:      auth.NewIdentityResolver(sessions),
		Authenticator: signin,
		Workflow:      workflow,
	}, apiOpts)
	require.NoError(t, err)
	f.handler = api.Routes()
	return f
}

func (f *fixture) createUser(t *testing.T, name, email, password string) *auth.User {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)
	verified := f.clock.Now()
	user, err := f.users.CreateUser(context.Background(), name, email, &hash, &verified)
	require.NoError(t, err)
	return user
}

type call struct {
	method     string
	path       string
	body       any
	bearer     string
	cookie     string
	header     map[string]string
	remoteAddr string
}

func (f *fixture) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if c.cookie != "" {
		req.AddCookie(&http.Cookie{Name: httpapi.SessionCookieName, Value: c.cookie})
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}
	if c.remoteAddr != "" {
		req.RemoteAddr = c.remoteAddr
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) signIn(t *testing.T, email, password string) string {
	t.Helper()
	rec := f.do(t, call{method: http.MethodPost, path: "/api/auth/sign-in", body: map[string]string{
		"email": email, "password": password,
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Token struct {
			Token string `json:"token"`
		} `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token.Token)
	return resp.Token.Token
}

func (f *fixture) lastToken(t *testing.T, address string) string {
	t.Helper()
	msg, ok := f.outbox.Last(address)
	require.True(t, ok, "no message sent to %s", address)
	return notify.TokenFrom(msg)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, code, body["code"])
	assert.NotEmpty(t, body["message"])
}

func TestNew_RequiresServices(t *testing.T) {
	_, err := httpapi.New(httpapi.Services{}, httpapi.Options{})
	require.Error(t, err)
}

func TestNew_RejectsInvalidTrustedProxy(t *testing.T) {
	store := memory.NewStore()
	sessions, err := auth.NewSessionManager(store.Users(), store.Sessions(), time.Hour)
	require.NoError(t, err)
	tokens, err := auth.NewTokenStore(store.Tokens(), store)
	require.NoError(t, err)
	hasher := auth.NewArgon2idHasher(auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1})
	workflow, err := auth.NewCredentialWorkflow(store.Users(), tokens, sessions, store, hasher, notify.NewOutbox())
	require.NoError(t, err)
	signin, err := auth.NewAuthenticator(store.Users(), sessions, hasher)
	require.NoError(t, err)

	_, err = httpapi.New(httpapi.Services{
		Sessions:      sessions,
		Resolver:      auth.NewIdentityResolver(sessions),
		Authenticator: signin,
		Workflow:      workflow,
	}, httpapi.Options{TrustedProxies: []string{"not-a-cidr"}})
	errutil.AssertErrorCode(t, err, "TRUSTED_PROXY_INVALID")
}

func TestSignIn(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "Alice", "alice@example.com", "correct-horse")

	t.Run("sets the session cookie", func(t *testing.T) {
		rec := f.do(t, call{method: http.MethodPost, path: "/api/auth/sign-in", body: map[string]string{
			"email": "Alice@Example.com", "password": "correct-horse",
		}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, httpapi.SessionCookieName, cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)
		assert.True(t, cookies[0].Secure)
		assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
		assert.Equal(t, 24*60*60, cookies[0].MaxAge)

		body := decodeBody(t, rec)
		user := body["user"].(map[string]any)
		assert.Equal(t, "alice@example.com", user["email"])
		assert.Equal(t, true, user["hasPassword"])
		token := body["token"].(map[string]any)
		assert.Equal(t, cookies[0].Value, token["token"])
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := f.do(t, call{method: http.MethodPost, path: "/api/auth/sign-in", body: map[string]string{
			"email": "alice@example.com", "password": "wrong-password",
		}})
		assertError(t, rec, http.StatusUnauthorized, "AUTH_INVALID_CREDENTIALS")
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("missing field", func(t *testing.T) {
		rec := f.do(t, call{method: http.MethodPost, path: "/api/auth/sign-in", body: map[string]string{
			"email": "alice@example.com",
		}})
		assertError(t, rec, http.StatusBadRequest, httpapi.CodeRequestInvalid)
		assert.Contains(t, decodeBody(t, rec)["message"], "password")
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/sign-in", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assertError(t, rec, http.StatusBadRequest, httpapi.CodeRequestInvalid)
	})
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "Alice", "alice@example.com", "correct-horse")
	token := f.signIn(t, "alice@example.com", "correct-horse")

	t.Run("cookie", func(t *testing.T) {
		rec := f.do(t, call{method: http.MethodGet, path: "/api/me", cookie: token})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		assert.Equal(t, "Alice", body["name"])
		assert.Equal(t, true, body["emailVerified"])
		assert.Equal(t, token, body["token"].(map[string]any)["token"])
	})

	t.Run("bearer", func(t *testing.T) {
		rec := f.do(t, call{method: http.MethodGet, path: "/api/me", bearer: token})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("no credential", func(t *testing.T) {
		rec := f.do(t, call{method: http.MethodGet, path: "/api/me"})
		assertError(t, rec, http.StatusUnauthorized, auth.CodeUnauthenticated)
	})

	t.Run("unknown token", func(t *testing.T) {
		rec := f.do(t, call{method: http.MethodGet, path: "/api/me", bearer: "not-a-session"})
		assertError(t, rec, http.StatusUnauthorized, auth.CodeUnauthenticated)
	})

	t.Run("expired session", func(t *testing.T) {
		f.clock.Advance(25 * time.Hour)
		rec := f.do(t, call{method: http.MethodGet, path: "/api/me", cookie: token})
		assertError(t, rec, http.StatusUnauthorized, auth.CodeUnauthenticated)
	})
}

func TestSession_Optional(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "Alice", "alice@example.com", "correct-horse")

	rec := f.do(t, call{method: http.MethodGet, path: "/api/auth/session"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, decodeBody(t, rec), "user")

	token := f.signIn(t, "alice@example.com", "correct-horse")
	rec = f.do(t, call{method: http.MethodGet, path: "/api/auth/session", cookie: token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice@example.com", decodeBody(t, rec)["user"].(map[string]any)["email"])
}

func TestSignOut(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "Alice", "alice@example.com", "correct-horse")
	token := f.signIn(t, "alice@example.com", "correct-horse")

	rec := f.do(t, call{method: http.MethodPost, path: "/api/auth/sign-out", cookie: token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Negative(t, cookies[0].MaxAge)

	rec = f.do(t, call{method: http.MethodGet, path: "/api/me", cookie: token})
	assertError(t, rec, http.StatusUnauthorized, auth.CodeUnauthenticated)

	rec = f.do(t, call{method: http.MethodPost, path: "/api/auth/sign-out"})
	assertError(t, rec, http.StatusUnauthorized, auth.CodeUnauthenticated)
}

func TestListSessions(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "Alice", "alice@example.com", "correct-horse")
	first := f.signIn(t, "alice@example.com", "correct-horse")
	f.clock.Advance(time.Minute)
	f.signIn(t, "alice@example.com", "correct-horse")

	rec := f.do(t, call{method: http.MethodGet, path: "/api/auth/sessions", bearer: first})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var sessions []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 2)
	assert.Equal(t, false, sessions[0]["current"], "newest first")
	assert.Equal(t, true, sessions[1]["current"])
}

func TestChangeEmailFlow(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "Alice", "alice@example.com", "correct-horse")
	session := f.signIn(t, "alice@example.com", "correct-horse")

	rec := f.do(t, call{method: http.MethodPost, path: "/api/auth/change-email/send", cookie: session,
		body: map[string]string{"email": "bob@example.com", "callbackUrl": callbackURL}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody(t, rec)["ok"])
	changeToken := f.lastToken(t, "alice@example.com")

	rec = f.do(t, call{method: http.MethodPost, path: "/api/auth/change-email/verify", cookie: session,
		body: map[string]string{"token": changeToken, "email": "bob@example.com", "callbackUrl": callbackURL}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	verifyToken := f.lastToken(t, "bob@example.com")

	rec = f.do(t, call{method: http.MethodPost, path: "/api/auth/change-email", cookie: session,
		body: map[string]string{"token": verifyToken, "email": "carol@example.com"}})
	assertError(t, rec, http.StatusBadRequest, auth.CodePayloadMismatch)

	rec = f.do(t, call{method: http.MethodPost, path: "/api/auth/change-email", cookie: session,
		body: map[string]string{"token": verifyToken, "email": "bob@example.com"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "bob@example.com", body["email"])
	assert.Equal(t, false, body["emailVerified"])

	rec = f.do(t, call{method: http.MethodPost, path: "/api/auth/change-email", cookie: session,
		body: map[string]string{"token": verifyToken, "email": "bob@example.com"}})
	assertError(t, rec, http.StatusConflict, auth.CodeTokenAlreadyUsed)
}

func TestChangeEmail_Errors(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "Alice", "alice@example.com", "correct-horse")
	f.createUser(t, "Bob", "bob@example.com", "correct-horse")
	session := f.signIn(t, "alice@example.com", "correct-horse")

	t.Run("requires auth", func(t *testing.T) {
		rec := f.do(t, call{method: http.MethodPost, path: "/api/auth/change-email/send",
			body: map[string]string{"callbackUrl": callbackURL}})
		assertError(t, rec, http.StatusUnauthorized, auth.CodeUnauthenticated)
	})

	t.Run("bad callback url", func(t *testing.T) {
		rec := f.do(t, call{method: http.MethodPost, path: "/api/auth/change-email/send", cookie: session,
			body: map[string]string{"callbackUrl": "not a url"}})
		assertError(t, rec, http.StatusBadRequest, "CALLBACK_URL_INVALID")
	})

	t.Run("unknown token", func(t *testing.T) {
		rec := f.do(t, call{method: http.MethodPost, path: "/api/auth/change-email/verify", cookie: session,
			body: map[string]string{"token": "nope", "email": "new@example.com", "callbackUrl": callbackURL}})
		assertError(t, rec, http.StatusNotFound, auth.CodeTokenNotFound)
	})

	t.Run("email in use", func(t *testing.T) {
		rec := f.do(t, call{method: http.MethodPost, path: "/api/auth/change-email/send", cookie: session,
			body: map[string]string{"callbackUrl": callbackURL}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		token := f.lastToken(t, "alice@example.com")

		rec = f.do(t, call{method: http.MethodPost, path: "/api/auth/change-email/verify", cookie: session,
			body: map[string]string{"token": token, "email": "bob@example.com", "callbackUrl": callbackURL}})
		assertError(t, rec, http.StatusConflict, auth.CodeEmailAlreadyInUse)
	})

	t.Run("delivery failure", func(t *testing.T) {
		f.outbox.FailWith(errors.New("smtp down"))
		t.Cleanup(func() { f.outbox.FailWith(nil) })

		rec := f.do(t, call{method: http.MethodPost, path: "/api/auth/change-email/send", cookie: session,
			body: map[string]string{"callbackUrl": callbackURL}})
		assertError(t, rec, http.StatusBadGateway, auth.CodeDeliveryFailed)
	})
}

func TestPasswordReset(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "Alice", "alice@example.com", "correct-horse")
	session := f.signIn(t, "alice@example.com", "correct-horse")

	rec := f.do(t, call{method: http.MethodPost, path: "/api/auth/password/send-reset",
		body: map[string]string{"email": "nobody@example.com", "callbackUrl": callbackURL}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody(t, rec)["ok"])
	assert.Empty(t, f.outbox.Messages())

	rec = f.do(t, call{method: http.MethodPost, path: "/api/auth/password/send-reset",
		body: map[string]string{"email": "alice@example.com", "callbackUrl": callbackURL}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := f.lastToken(t, "alice@example.com")

	rec = f.do(t, call{method: http.MethodPost, path: "/api/auth/password",
		body: map[string]string{"token": token, "newPassword": "short"}})
	assertError(t, rec, http.StatusBadRequest, "PASSWORD_TOO_SHORT")

	rec = f.do(t, call{method: http.MethodPost, path: "/api/auth/password",
		body: map[string]string{"token": token, "newPassword": "battery-staple"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, call{method: http.MethodGet, path: "/api/me", cookie: session})
	assertError(t, rec, http.StatusUnauthorized, auth.CodeUnauthenticated)

	f.signIn(t, "alice@example.com", "battery-staple")
}

func TestSetPassword_ExpiredToken(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "Alice", "alice@example.com", "correct-horse")
	session := f.signIn(t, "alice@example.com", "correct-horse")

	rec := f.do(t, call{method: http.MethodPost, path: "/api/auth/password/send-set", bearer: session,
		body: map[string]string{"callbackUrl": callbackURL}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := f.lastToken(t, "alice@example.com")

	f.clock.Advance(auth.SetPasswordTokenExpiry + time.Minute)
	rec = f.do(t, call{method: http.MethodPost, path: "/api/auth/password", bearer: session,
		body: map[string]string{"token": token, "newPassword": "battery-staple"}})
	assertError(t, rec, http.StatusGone, auth.CodeTokenExpired)
}

func TestRequestMetrics(t *testing.T) {
	f := newFixture(t)

	f.do(t, call{method: http.MethodGet, path: "/api/auth/session"})
	f.do(t, call{method: http.MethodGet, path: "/api/me"})
	f.do(t, call{method: http.MethodGet, path: "/nope"})

	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.RequestsTotal.WithLabelValues("/api/auth/session", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.RequestsTotal.WithLabelValues("/api/me", "401")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.RequestsTotal.WithLabelValues("unmatched", "404")), 0)
}

func TestSignIn_LockedAccount(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "Alice", "alice@example.com", "correct-horse")

	for range auth.LockoutThreshold {
		rec := f.do(t, call{method: http.MethodPost, path: "/api/auth/sign-in", body: map[string]string{
			"email": "alice@example.com", "password": "wrong-password",
		}})
		assertError(t, rec, http.StatusUnauthorized, "AUTH_INVALID_CREDENTIALS")
	}

	rec := f.do(t, call{method: http.MethodPost, path: "/api/auth/sign-in", body: map[string]string{
		"email": "alice@example.com", "password": "correct-horse",
	}})
	assertError(t, rec, http.StatusTooManyRequests, auth.CodeAccountLocked)
	assert.Empty(t, rec.Result().Cookies())

	f.clock.Advance(auth.LockoutDuration + time.Second)
	f.signIn(t, "alice@example.com", "correct-horse")
}

func TestRequestTimeout_WaitingOnUserLock(t *testing.T) {
	f := newFixture(t, func(o *httpapi.Options) { o.RequestTimeout = 50 * time.Millisecond })
	alice := f.createUser(t, "Alice", "alice@example.com", "correct-horse")
	session := f.signIn(t, "alice@example.com", "correct-horse")

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.store.InTransaction(context.Background(), func(ctx context.Context) error {
			if err := f.store.Users().UpdatePassword(ctx, alice.ID, "pending"); err != nil {
				return err
			}
			close(held)
			<-release
			return errors.New("roll back")
		})
	}()
	<-held

	rec := f.do(t, call{method: http.MethodPost, path: "/api/auth/change-email/send", cookie: session,
		body: map[string]string{"callbackUrl": callbackURL}})
	close(release)
	require.Error(t, <-done)

	assertError(t, rec, http.StatusGatewayTimeout, httpapi.CodeRequestTimeout)
	assert.Empty(t, f.outbox.Messages())

	rec = f.do(t, call{method: http.MethodPost, path: "/api/auth/change-email/send", cookie: session,
		body: map[string]string{"callbackUrl": callbackURL}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestClientAddress(t *testing.T) {
	forwarded := map[string]string{"X-Forwarded-For": "203.0.113.9"}

	sessionIP := func(t *testing.T, f *fixture, remoteAddr string) string {
		t.Helper()
		rec := f.do(t, call{method: http.MethodPost, path: "/api/auth/sign-in", header: forwarded,
			remoteAddr: remoteAddr, body: map[string]string{
				"email": "alice@example.com", "password": "correct-horse",
			}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		token := decodeBody(t, rec)["token"].(map[string]any)["token"].(string)

		rec = f.do(t, call{method: http.MethodGet, path: "/api/auth/sessions", bearer: token})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var sessions []map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
		for _, s := range sessions {
			if s["current"] == true {
				ip, _ := s["ipAddress"].(string)
				return ip
			}
		}
		t.Fatal("current session not listed")
		return ""
	}

	t.Run("headers ignored without trusted proxies", func(t *testing.T) {
		f := newFixture(t)
		f.createUser(t, "Alice", "alice@example.com", "correct-horse")
		assert.Equal(t, "198.51.100.7:4000", sessionIP(t, f, "198.51.100.7:4000"))
	})

	t.Run("headers ignored from an untrusted peer", func(t *testing.T) {
		f := newFixture(t, func(o *httpapi.Options) { o.TrustedProxies = []string{"10.0.0.0/8"} })
		f.createUser(t, "Alice", "alice@example.com", "correct-horse")
		assert.Equal(t, "198.51.100.7:4000", sessionIP(t, f, "198.51.100.7:4000"))
	})

	t.Run("headers honored from a trusted proxy", func(t *testing.T) {
		f := newFixture(t, func(o *httpapi.Options) { o.TrustedProxies = []string{"10.0.0.0/8"} })
		f.createUser(t, "Alice", "alice@example.com", "correct-horse")
		assert.Equal(t, "203.0.113.9", sessionIP(t, f, "10.1.2.3:4000"))
	})
}
