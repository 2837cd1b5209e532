// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accountd/internal/auth"
	"github.com/holomush/accountd/internal/auth/postgres"
	"github.com/holomush/accountd/pkg/errutil"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var userCols = []string{"id", "name", "email", "email_verified_at", "password_hash", "avatar_url", "created_at", "updated_at", "failed_attempts", "locked_until"}

func testUser(t *testing.T) *auth.User {
	t.Helper()
	hash := "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"
	user, err := auth.NewUser("Ada", "ada@example.com", &hash, nil)
	require.NoError(t, err)
	return user
}

func TestUserRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts the user", func(t *testing.T) {
		mock := newMockPool(t)
		user := testUser(t)
		mock.ExpectExec("INSERT INTO users").
			WithArgs(user.ID.String(), user.Name, user.Email, user.EmailVerifiedAt, user.PasswordHash,
				user.AvatarURL, user.CreatedAt, user.UpdatedAt, user.FailedAttempts, user.LockedUntil).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, postgres.NewUserRepository(mock).Create(ctx, user))
	})

	t.Run("maps the email index violation", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec("INSERT INTO users").
			WithArgs(anyArgs(10)...).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_lower_key"})

		err := postgres.NewUserRepository(mock).Create(ctx, testUser(t))
		assert.ErrorIs(t, err, auth.ErrEmailAlreadyInUse)
		assert.Empty(t, errutil.Code(err), "sentinel must not carry a repository code")
	})

	t.Run("other failures carry a code", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec("INSERT INTO users").
			WithArgs(anyArgs(10)...).
			WillReturnError(errors.New("connection reset"))

		err := postgres.NewUserRepository(mock).Create(ctx, testUser(t))
		errutil.AssertErrorCode(t, err, "USER_CREATE_FAILED")
	})
}

func TestUserRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("scans a passwordless user", func(t *testing.T) {
		mock := newMockPool(t)
		id := ulid.Make()
		verified := testNow.Add(-time.Hour)
		mock.ExpectQuery("SELECT .+ FROM users").
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows(userCols).
				AddRow(id.String(), "Ada", "ada@example.com", &verified, nil, "", testNow, testNow, 0, nil))

		user, err := postgres.NewUserRepository(mock).GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
		assert.Equal(t, "ada@example.com", user.Email)
		require.NotNil(t, user.EmailVerifiedAt)
		assert.True(t, verified.Equal(*user.EmailVerifiedAt))
		assert.False(t, user.HasPassword())
	})

	t.Run("missing row is ErrNotFound", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery("SELECT .+ FROM users").
			WithArgs(pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows(userCols))

		_, err := postgres.NewUserRepository(mock).GetByID(ctx, ulid.Make())
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("corrupt id", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery("SELECT .+ FROM users").
			WithArgs(pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows(userCols).
				AddRow("not-a-ulid", "Ada", "ada@example.com", nil, nil, "", testNow, testNow, 0, nil))

		_, err := postgres.NewUserRepository(mock).GetByID(ctx, ulid.Make())
		errutil.AssertErrorCode(t, err, "USER_GET_FAILED")
	})
}

func TestUserRepository_GetByEmail_Normalizes(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(`WHERE lower\(email\) = \$1`).
		WithArgs("ada@example.com").
		WillReturnRows(pgxmock.NewRows(userCols))

	_, err := postgres.NewUserRepository(mock).GetByEmail(context.Background(), "  Ada@Example.COM ")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestUserRepository_UpdateEmail(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()

	t.Run("clears verification", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec("email_verified_at = NULL").
			WithArgs(id.String(), "new@example.com", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, postgres.NewUserRepository(mock).UpdateEmail(ctx, id, "New@Example.com"))
	})

	t.Run("taken email", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec("UPDATE users").
			WithArgs(id.String(), "taken@example.com", pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_lower_key"})

		err := postgres.NewUserRepository(mock).UpdateEmail(ctx, id, "taken@example.com")
		assert.ErrorIs(t, err, auth.ErrEmailAlreadyInUse)
	})

	t.Run("unknown user", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec("UPDATE users").
			WithArgs(id.String(), "new@example.com", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := postgres.NewUserRepository(mock).UpdateEmail(ctx, id, "new@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestUserRepository_UpdatePassword(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()

	t.Run("updates the hash", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec("SET password_hash").
			WithArgs(id.String(), "newhash", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, postgres.NewUserRepository(mock).UpdatePassword(ctx, id, "newhash"))
	})

	t.Run("unknown user", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec("SET password_hash").
			WithArgs(id.String(), "newhash", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := postgres.NewUserRepository(mock).UpdatePassword(ctx, id, "newhash")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("database failure", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec("SET password_hash").
			WithArgs(id.String(), "newhash", pgxmock.AnyArg()).
			WillReturnError(errors.New("connection reset"))

		err := postgres.NewUserRepository(mock).UpdatePassword(ctx, id, "newhash")
		errutil.AssertErrorCode(t, err, "USER_UPDATE_FAILED")
	})
}

func TestUserRepository_RecordLoginFailure(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	lockUntil := testNow.Add(auth.LockoutDuration)

	t.Run("returns the new count", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SET failed_attempts = failed_attempts \+ 1`).
			WithArgs(id.String(), auth.LockoutThreshold, lockUntil).
			WillReturnRows(pgxmock.NewRows([]string{"failed_attempts"}).AddRow(3))

		n, err := postgres.NewUserRepository(mock).RecordLoginFailure(ctx, id, auth.LockoutThreshold, lockUntil)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("unknown user", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SET failed_attempts = failed_attempts \+ 1`).
			WithArgs(id.String(), auth.LockoutThreshold, lockUntil).
			WillReturnRows(pgxmock.NewRows([]string{"failed_attempts"}))

		_, err := postgres.NewUserRepository(mock).RecordLoginFailure(ctx, id, auth.LockoutThreshold, lockUntil)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("database failure", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SET failed_attempts = failed_attempts \+ 1`).
			WithArgs(id.String(), auth.LockoutThreshold, lockUntil).
			WillReturnError(errors.New("connection reset"))

		_, err := postgres.NewUserRepository(mock).RecordLoginFailure(ctx, id, auth.LockoutThreshold, lockUntil)
		errutil.AssertErrorCode(t, err, "USER_UPDATE_FAILED")
	})
}

func TestUserRepository_ClearLoginFailures(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()

	t.Run("resets the counter", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec("SET failed_attempts = 0").
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, postgres.NewUserRepository(mock).ClearLoginFailures(ctx, id))
	})

	t.Run("unknown user", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec("SET failed_attempts = 0").
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		assert.ErrorIs(t, postgres.NewUserRepository(mock).ClearLoginFailures(ctx, id), auth.ErrNotFound)
	})
}
