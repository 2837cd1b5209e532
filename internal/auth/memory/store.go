// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides in-process implementations of the auth
// repositories and Transactor for development and tests.
//
// Writes made inside a transaction are visible to that transaction only;
// other callers keep reading the committed rows until it commits. On
// rollback the committed rows are restored. Mutations of one user's
// credential state are serialized by a per-user lock that a transaction
// holds until it ends. Reads never take it.
package memory

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/accountd/internal/auth"
)

// Store holds users, sessions and verification tokens in memory.
type Store struct {
	mu sync.Mutex

	users      *table[ulid.ULID, *auth.User]
	emails     *table[string, ulid.ULID] // normalized email -> user
	sessions   *table[string, *auth.Session]
	sessionIDs *table[ulid.ULID, string] // session ID -> token hash
	tokens     *table[string, *auth.VerificationToken]

	locks *keyedMutex
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		users:      newTable[ulid.ULID, *auth.User](),
		emails:     newTable[string, ulid.ULID](),
		sessions:   newTable[string, *auth.Session](),
		sessionIDs: newTable[ulid.ULID, string](),
		tokens:     newTable[string, *auth.VerificationToken](),
		locks:      newKeyedMutex(),
	}
}

// Users returns the store's UserRepository.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Sessions returns the store's SessionRepository.
func (s *Store) Sessions() *SessionRepository { return &SessionRepository{s: s} }

// Tokens returns the store's TokenRepository.
func (s *Store) Tokens() *TokenRepository { return &TokenRepository{s: s} }

var _ auth.Transactor = (*Store)(nil)

type txKey struct{}

type memTx struct {
	// finish runs once per touched row when the transaction ends. Guarded
	// by Store.mu.
	finish []func(commit bool)

	mu   sync.Mutex
	held map[string]struct{}
}

// txFrom returns the transaction carried by ctx, or nil.
func txFrom(ctx context.Context) *memTx {
	tx, _ := ctx.Value(txKey{}).(*memTx)
	return tx
}

// InTransaction runs fn with a context carrying a transaction. A nested
// call joins the outer transaction. If fn fails, panics, or ctx is done
// before fn returns, every mutation made through the context is reverted.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck // context errors pass through unchanged
	}

	tx := &memTx{held: make(map[string]struct{})}
	committed := false
	defer func() {
		s.end(tx, committed)
		s.release(tx)
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck // context errors pass through unchanged
	}
	committed = true
	return nil
}

// end publishes or reverts the transaction's writes. It runs before the
// transaction's user locks are released.
func (s *Store) end(tx *memTx, commit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(tx.finish) - 1; i >= 0; i-- {
		tx.finish[i](commit)
	}
	tx.finish = nil
}

func (s *Store) release(tx *memTx) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	for key := range tx.held {
		s.locks.Unlock(key)
	}
	tx.held = nil
}

// lockUser serializes credential mutations of one user. Inside a
// transaction the lock is held until the transaction ends; otherwise the
// returned unlock must be called.
func (s *Store) lockUser(ctx context.Context, userID ulid.ULID) (unlock func(), err error) {
	key := "user:" + userID.String()

	tx := txFrom(ctx)
	if tx != nil {
		tx.mu.Lock()
		_, held := tx.held[key]
		tx.mu.Unlock()
		if held {
			return func() {}, nil
		}
	}

	if err := s.locks.Lock(ctx, key); err != nil {
		return nil, err
	}

	if tx != nil {
		tx.mu.Lock()
		tx.held[key] = struct{}{}
		tx.mu.Unlock()
		return func() {}, nil
	}
	return func() { s.locks.Unlock(key) }, nil
}

// table is a keyed set of rows whose uncommitted changes are visible only
// to the transaction that made them. Callers hold Store.mu. Stored values
// are never mutated in place; writers put a modified copy.
type table[K comparable, V any] struct {
	rows    map[K]V
	pending map[K]prior[V]
}

// prior is the committed state of a row changed by an open transaction.
type prior[V any] struct {
	tx    *memTx
	value V
	ok    bool
}

func newTable[K comparable, V any]() *table[K, V] {
	return &table[K, V]{
		rows:    make(map[K]V),
		pending: make(map[K]prior[V]),
	}
}

// get returns row k as seen by tx: its own writes, otherwise the committed row.
func (t *table[K, V]) get(tx *memTx, k K) (V, bool) {
	if p, ok := t.pending[k]; ok && p.tx != tx {
		return p.value, p.ok
	}
	v, ok := t.rows[k]
	return v, ok
}

// writable reports whether tx may change row k. A row with uncommitted
// changes belongs to the transaction that made them.
func (t *table[K, V]) writable(tx *memTx, k K) bool {
	p, ok := t.pending[k]
	return !ok || p.tx == tx
}

// visible returns every row visible to tx.
func (t *table[K, V]) visible(tx *memTx) map[K]V {
	out := make(map[K]V, len(t.rows))
	for k := range t.rows {
		if v, ok := t.get(tx, k); ok {
			out[k] = v
		}
	}
	for k, p := range t.pending {
		if _, ok := t.rows[k]; !ok && p.tx != tx && p.ok {
			out[k] = p.value
		}
	}
	return out
}

func (t *table[K, V]) put(tx *memTx, k K, v V) {
	t.touch(tx, k)
	t.rows[k] = v
}

func (t *table[K, V]) remove(tx *memTx, k K) {
	t.touch(tx, k)
	delete(t.rows, k)
}

// touch records the committed state of row k the first time tx changes it.
func (t *table[K, V]) touch(tx *memTx, k K) {
	if tx == nil {
		return
	}
	if _, ok := t.pending[k]; ok {
		return
	}
	old, ok := t.rows[k]
	t.pending[k] = prior[V]{tx: tx, value: old, ok: ok}
	tx.finish = append(tx.finish, func(commit bool) {
		p := t.pending[k]
		delete(t.pending, k)
		if commit {
			return
		}
		if p.ok {
			t.rows[k] = p.value
		} else {
			delete(t.rows, k)
		}
	})
}

// keyedMutex is a set of mutexes keyed by string whose Lock honors context
// cancellation. Entries are dropped once nobody holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

func (k *keyedMutex) Lock(ctx context.Context, key string) error {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.mu.Lock()
		k.unref(key, l)
		k.mu.Unlock()
		return ctx.Err() //nolint:wrapcheck // context errors pass through unchanged
	}
}

func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		return
	}
	<-l.ch
	k.unref(key, l)
}

func (k *keyedMutex) unref(key string, l *keyLock) {
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}
