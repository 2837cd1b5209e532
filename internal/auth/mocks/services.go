// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/accountd/internal/auth"
)

// RunInTransaction is a Return value for MockTransactor that runs fn
// directly.
func RunInTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// MockTransactor mocks auth.Transactor.
type MockTransactor struct {
	mock.Mock
}

var _ auth.Transactor = (*MockTransactor)(nil)

// NewMockTransactor creates a mock that asserts its expectations on cleanup.
func NewMockTransactor(t TestingT) *MockTransactor {
	m := &MockTransactor{}
	register(t, &m.Mock)
	return m
}

// InTransaction mocks Transactor.InTransaction.
func (m *MockTransactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	ret := m.Called(ctx, fn)
	if run, ok := ret.Get(0).(func(context.Context, func(context.Context) error) error); ok {
		return run(ctx, fn)
	}
	return ret.Error(0)
}

// MockPasswordHasher mocks auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

var _ auth.PasswordHasher = (*MockPasswordHasher)(nil)

// NewMockPasswordHasher creates a mock that asserts its expectations on cleanup.
func NewMockPasswordHasher(t TestingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	register(t, &m.Mock)
	return m
}

// Hash mocks PasswordHasher.Hash.
func (m *MockPasswordHasher) Hash(password string) (string, error) {
	ret := m.Called(password)
	if fn, ok := ret.Get(0).(func(string) (string, error)); ok {
		return fn(password)
	}
	return ret.String(0), ret.Error(1)
}

// Verify mocks PasswordHasher.Verify.
func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	ret := m.Called(password, hash)
	if fn, ok := ret.Get(0).(func(string, string) (bool, error)); ok {
		return fn(password, hash)
	}
	return ret.Bool(0), ret.Error(1)
}

// NeedsUpgrade mocks PasswordHasher.NeedsUpgrade.
func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	ret := m.Called(hash)
	if fn, ok := ret.Get(0).(func(string) bool); ok {
		return fn(hash)
	}
	return ret.Bool(0)
}

// MockNotifier mocks auth.Notifier.
type MockNotifier struct {
	mock.Mock
}

var _ auth.Notifier = (*MockNotifier)(nil)

// NewMockNotifier creates a mock that asserts its expectations on cleanup.
func NewMockNotifier(t TestingT) *MockNotifier {
	m := &MockNotifier{}
	register(t, &m.Mock)
	return m
}

// Send mocks Notifier.Send.
func (m *MockNotifier) Send(ctx context.Context, msg auth.Message) error {
	ret := m.Called(ctx, msg)
	if fn, ok := ret.Get(0).(func(context.Context, auth.Message) error); ok {
		return fn(ctx, msg)
	}
	return ret.Error(0)
}

// MockIdentityCache mocks auth.IdentityCache.
type MockIdentityCache struct {
	mock.Mock
}

var _ auth.IdentityCache = (*MockIdentityCache)(nil)

// NewMockIdentityCache creates a mock that asserts its expectations on cleanup.
func NewMockIdentityCache(t TestingT) *MockIdentityCache {
	m := &MockIdentityCache{}
	register(t, &m.Mock)
	return m
}

// Get mocks IdentityCache.Get.
func (m *MockIdentityCache) Get(ctx context.Context, tokenHash string) (*auth.Identity, error) {
	ret := m.Called(ctx, tokenHash)
	if fn, ok := ret.Get(0).(func(context.Context, string) (*auth.Identity, error)); ok {
		return fn(ctx, tokenHash)
	}
	identity, _ := ret.Get(0).(*auth.Identity)
	return identity, ret.Error(1)
}

// Set mocks IdentityCache.Set.
func (m *MockIdentityCache) Set(ctx context.Context, tokenHash string, identity *auth.Identity, ttl time.Duration) error {
	ret := m.Called(ctx, tokenHash, identity, ttl)
	if fn, ok := ret.Get(0).(func(context.Context, string, *auth.Identity, time.Duration) error); ok {
		return fn(ctx, tokenHash, identity, ttl)
	}
	return ret.Error(0)
}

// Delete mocks IdentityCache.Delete.
func (m *MockIdentityCache) Delete(ctx context.Context, tokenHash string) error {
	ret := m.Called(ctx, tokenHash)
	if fn, ok := ret.Get(0).(func(context.Context, string) error); ok {
		return fn(ctx, tokenHash)
	}
	return ret.Error(0)
}

// InvalidateUser mocks IdentityCache.InvalidateUser.
func (m *MockIdentityCache) InvalidateUser(ctx context.Context, userID ulid.ULID) error {
	ret := m.Called(ctx, userID)
	if fn, ok := ret.Get(0).(func(context.Context, ulid.ULID) error); ok {
		return fn(ctx, userID)
	}
	return ret.Error(0)
}
