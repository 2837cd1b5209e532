// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accountd/internal/store"
	"github.com/holomush/accountd/pkg/errutil"
)

type fakeMigrator struct {
	calls  []string
	steps  int
	forced int
	status store.Status
	err    error
	closed bool
}

func (m *fakeMigrator) Up() error {
	m.calls = append(m.calls, "up")
	return m.err
}

func (m *fakeMigrator) Steps(n int) error {
	m.calls = append(m.calls, "steps")
	m.steps = n
	return m.err
}

func (m *fakeMigrator) Force(version int) error {
	m.calls = append(m.calls, "force")
	m.forced = version
	return m.err
}

func (m *fakeMigrator) Status() (store.Status, error) {
	m.calls = append(m.calls, "status")
	return m.status, m.err
}

func (m *fakeMigrator) Close() error {
	m.closed = true
	return nil
}

func runMigrate(t *testing.T, m *fakeMigrator, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	var gotURL string
	deps := &Deps{MigratorFactory: func(url string) (Migrator, error) {
		gotURL = url
		return m, nil
	}}
	cmd := newMigrateCmd(deps)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), gotURL, err
}

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	m := &fakeMigrator{}

	_, _, err := runMigrate(t, m)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	assert.Empty(t, m.calls)
}

func TestMigrate_Up(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/accountd")

	for _, args := range [][]string{nil, {"up"}} {
		m := &fakeMigrator{}
		out, url, err := runMigrate(t, m, args...)
		require.NoError(t, err)
		assert.Equal(t, "postgres://env/accountd", url)
		assert.Equal(t, []string{"up"}, m.calls)
		assert.True(t, m.closed)
		assert.Contains(t, out, "Migrations completed successfully")
	}
}

func TestMigrate_FlagOverridesEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/accountd")
	m := &fakeMigrator{}

	_, url, err := runMigrate(t, m, "up", "--database-url=postgres://flag/accountd")
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/accountd", url)
}

func TestMigrate_UpFailure(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/accountd")
	m := &fakeMigrator{err: errors.New("boom")}

	_, _, err := runMigrate(t, m, "up")
	errutil.AssertErrorCode(t, err, "MIGRATION_FAILED")
	assert.True(t, m.closed)
}

func TestMigrate_Down(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/accountd")

	m := &fakeMigrator{}
	out, _, err := runMigrate(t, m, "down", "--steps=2")
	require.NoError(t, err)
	assert.Equal(t, -2, m.steps)
	assert.Contains(t, out, "Rolled back 2 migration(s)")

	m = &fakeMigrator{}
	_, _, err = runMigrate(t, m, "down", "--steps=0")
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	assert.Empty(t, m.calls)
}

func TestMigrate_Status(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/accountd")

	m := &fakeMigrator{status: store.Status{Version: 2, Name: "000002_sessions", Pending: []uint{3}}}
	out, _, err := runMigrate(t, m, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: 2 (000002_sessions)")
	assert.Contains(t, out, "Pending: 3")

	m = &fakeMigrator{status: store.Status{Version: 3, Name: "000003_verification_tokens", Dirty: true}}
	out, _, err = runMigrate(t, m, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "[dirty]")
	assert.Contains(t, out, "Pending: none")
}

func TestMigrate_Force(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/accountd")

	m := &fakeMigrator{}
	_, _, err := runMigrate(t, m, "force", "2")
	require.NoError(t, err)
	assert.Equal(t, 2, m.forced)

	m = &fakeMigrator{}
	_, _, err = runMigrate(t, m, "force", "two")
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	assert.Empty(t, m.calls)
}
