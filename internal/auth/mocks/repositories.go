// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks provides testify mocks for the auth interfaces.
//
// Every mock method accepts either plain return values or a single function
// with the method's signature, which is called with the arguments:
//
//	users.On("GetByID", ctx, id).Return(user, nil)
//	tx.On("InTransaction", mock.Anything, mock.Anything).Return(mocks.RunInTransaction)
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/accountd/internal/auth"
)

// TestingT is the subset of *testing.T the constructors need.
type TestingT interface {
	mock.TestingT
	Cleanup(func())
}

func register(t TestingT, m *mock.Mock) {
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
}

// MockUserRepository mocks auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

var _ auth.UserRepository = (*MockUserRepository)(nil)

// NewMockUserRepository creates a mock that asserts its expectations on cleanup.
func NewMockUserRepository(t TestingT) *MockUserRepository {
	m := &MockUserRepository{}
	register(t, &m.Mock)
	return m
}

// Create mocks UserRepository.Create.
func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	ret := m.Called(ctx, user)
	if fn, ok := ret.Get(0).(func(context.Context, *auth.User) error); ok {
		return fn(ctx, user)
	}
	return ret.Error(0)
}

// GetByID mocks UserRepository.GetByID.
func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	ret := m.Called(ctx, id)
	if fn, ok := ret.Get(0).(func(context.Context, ulid.ULID) (*auth.User, error)); ok {
		return fn(ctx, id)
	}
	user, _ := ret.Get(0).(*auth.User)
	return user, ret.Error(1)
}

// GetByEmail mocks UserRepository.GetByEmail.
func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	ret := m.Called(ctx, email)
	if fn, ok := ret.Get(0).(func(context.Context, string) (*auth.User, error)); ok {
		return fn(ctx, email)
	}
	user, _ := ret.Get(0).(*auth.User)
	return user, ret.Error(1)
}

// UpdateEmail mocks UserRepository.UpdateEmail.
func (m *MockUserRepository) UpdateEmail(ctx context.Context, id ulid.ULID, email string) error {
	ret := m.Called(ctx, id, email)
	if fn, ok := ret.Get(0).(func(context.Context, ulid.ULID, string) error); ok {
		return fn(ctx, id, email)
	}
	return ret.Error(0)
}

// UpdatePassword mocks UserRepository.UpdatePassword.
func (m *MockUserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	ret := m.Called(ctx, id, passwordHash)
	if fn, ok := ret.Get(0).(func(context.Context, ulid.ULID, string) error); ok {
		return fn(ctx, id, passwordHash)
	}
	return ret.Error(0)
}

// RecordLoginFailure mocks UserRepository.RecordLoginFailure.
func (m *MockUserRepository) RecordLoginFailure(ctx context.Context, id ulid.ULID, threshold int, lockUntil time.Time) (int, error) {
	ret := m.Called(ctx, id, threshold, lockUntil)
	return ret.Int(0), ret.Error(1)
}

// ClearLoginFailures mocks UserRepository.ClearLoginFailures.
func (m *MockUserRepository) ClearLoginFailures(ctx context.Context, id ulid.ULID) error {
	ret := m.Called(ctx, id)
	return ret.Error(0)
}

// MockSessionRepository mocks auth.SessionRepository.
type MockSessionRepository struct {
	mock.Mock
}

var _ auth.SessionRepository = (*MockSessionRepository)(nil)

// NewMockSessionRepository creates a mock that asserts its expectations on cleanup.
func NewMockSessionRepository(t TestingT) *MockSessionRepository {
	m := &MockSessionRepository{}
	register(t, &m.Mock)
	return m
}

// Create mocks SessionRepository.Create.
func (m *MockSessionRepository) Create(ctx context.Context, session *auth.Session) error {
	ret := m.Called(ctx, session)
	if fn, ok := ret.Get(0).(func(context.Context, *auth.Session) error); ok {
		return fn(ctx, session)
	}
	return ret.Error(0)
}

// GetByTokenHash mocks SessionRepository.GetByTokenHash.
func (m *MockSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	ret := m.Called(ctx, tokenHash)
	if fn, ok := ret.Get(0).(func(context.Context, string) (*auth.Session, error)); ok {
		return fn(ctx, tokenHash)
	}
	session, _ := ret.Get(0).(*auth.Session)
	return session, ret.Error(1)
}

// ListByUser mocks SessionRepository.ListByUser.
func (m *MockSessionRepository) ListByUser(ctx context.Context, userID ulid.ULID) ([]*auth.Session, error) {
	ret := m.Called(ctx, userID)
	if fn, ok := ret.Get(0).(func(context.Context, ulid.ULID) ([]*auth.Session, error)); ok {
		return fn(ctx, userID)
	}
	sessions, _ := ret.Get(0).([]*auth.Session)
	return sessions, ret.Error(1)
}

// UpdateLastSeen mocks SessionRepository.UpdateLastSeen.
func (m *MockSessionRepository) UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error {
	ret := m.Called(ctx, id, lastSeen)
	if fn, ok := ret.Get(0).(func(context.Context, ulid.ULID, time.Time) error); ok {
		return fn(ctx, id, lastSeen)
	}
	return ret.Error(0)
}

// DeleteByTokenHash mocks SessionRepository.DeleteByTokenHash.
func (m *MockSessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	ret := m.Called(ctx, tokenHash)
	if fn, ok := ret.Get(0).(func(context.Context, string) error); ok {
		return fn(ctx, tokenHash)
	}
	return ret.Error(0)
}

// DeleteByUser mocks SessionRepository.DeleteByUser.
func (m *MockSessionRepository) DeleteByUser(ctx context.Context, userID ulid.ULID, keep *ulid.ULID) ([]string, error) {
	ret := m.Called(ctx, userID, keep)
	if fn, ok := ret.Get(0).(func(context.Context, ulid.ULID, *ulid.ULID) ([]string, error)); ok {
		return fn(ctx, userID, keep)
	}
	hashes, _ := ret.Get(0).([]string)
	return hashes, ret.Error(1)
}

// DeleteExpired mocks SessionRepository.DeleteExpired.
func (m *MockSessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ret := m.Called(ctx, before)
	if fn, ok := ret.Get(0).(func(context.Context, time.Time) (int64, error)); ok {
		return fn(ctx, before)
	}
	n, _ := ret.Get(0).(int64)
	return n, ret.Error(1)
}

// MockTokenRepository mocks auth.TokenRepository.
type MockTokenRepository struct {
	mock.Mock
}

var _ auth.TokenRepository = (*MockTokenRepository)(nil)

// NewMockTokenRepository creates a mock that asserts its expectations on cleanup.
func NewMockTokenRepository(t TestingT) *MockTokenRepository {
	m := &MockTokenRepository{}
	register(t, &m.Mock)
	return m
}

// Create mocks TokenRepository.Create.
func (m *MockTokenRepository) Create(ctx context.Context, token *auth.VerificationToken) error {
	ret := m.Called(ctx, token)
	if fn, ok := ret.Get(0).(func(context.Context, *auth.VerificationToken) error); ok {
		return fn(ctx, token)
	}
	return ret.Error(0)
}

// GetByTokenHash mocks TokenRepository.GetByTokenHash.
func (m *MockTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.VerificationToken, error) {
	ret := m.Called(ctx, tokenHash)
	if fn, ok := ret.Get(0).(func(context.Context, string) (*auth.VerificationToken, error)); ok {
		return fn(ctx, tokenHash)
	}
	token, _ := ret.Get(0).(*auth.VerificationToken)
	return token, ret.Error(1)
}

// InvalidateActive mocks TokenRepository.InvalidateActive.
func (m *MockTokenRepository) InvalidateActive(ctx context.Context, userID ulid.ULID, purpose auth.Purpose, at time.Time) (int64, error) {
	ret := m.Called(ctx, userID, purpose, at)
	if fn, ok := ret.Get(0).(func(context.Context, ulid.ULID, auth.Purpose, time.Time) (int64, error)); ok {
		return fn(ctx, userID, purpose, at)
	}
	n, _ := ret.Get(0).(int64)
	return n, ret.Error(1)
}

// Consume mocks TokenRepository.Consume.
func (m *MockTokenRepository) Consume(ctx context.Context, tokenHash string, purposes []auth.Purpose, at time.Time) (*auth.VerificationToken, error) {
	ret := m.Called(ctx, tokenHash, purposes, at)
	if fn, ok := ret.Get(0).(func(context.Context, string, []auth.Purpose, time.Time) (*auth.VerificationToken, error)); ok {
		return fn(ctx, tokenHash, purposes, at)
	}
	token, _ := ret.Get(0).(*auth.VerificationToken)
	return token, ret.Error(1)
}

// DeleteExpired mocks TokenRepository.DeleteExpired.
func (m *MockTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ret := m.Called(ctx, before)
	if fn, ok := ret.Get(0).(func(context.Context, time.Time) (int64, error)); ok {
		return fn(ctx, before)
	}
	n, _ := ret.Get(0).(int64)
	return n, ret.Error(1)
}
