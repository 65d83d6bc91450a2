package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// ErrContended means at least one key in the requested set is already held.
var ErrContended = errors.New("account locked")

// Store is the minimal key-value surface the manager needs: atomic
// set-if-absent-with-expiry, existence check, delete.
type Store interface {
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, keys ...string) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

type Manager struct {
	store Store
	ttl   time.Duration
	log   *slog.Logger
}

func NewManager(store Store, ttl time.Duration, log *slog.Logger) *Manager {
	return &Manager{store: store, ttl: ttl, log: log}
}

func key(accountID string) string { return "lock:account:" + accountID }

// Acquire takes the lock for every account id, in ascending order so two
// transfers over the same pair in opposite directions cannot deadlock. If any
// key is already held, everything acquired so far is released and
// ErrContended is returned.
func (m *Manager) Acquire(ctx context.Context, accountIDs []string) (*Lease, error) {
	ids := append([]string(nil), accountIDs...)
	sort.Strings(ids)

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		ok, err := m.store.SetNX(ctx, key(id), m.ttl)
		if err != nil {
			m.release(ctx, keys)
			return nil, fmt.Errorf("acquire %s: %w", key(id), err)
		}
		if !ok {
			m.release(ctx, keys)
			return nil, fmt.Errorf("%w: %s", ErrContended, id)
		}
		keys = append(keys, key(id))
	}
	return &Lease{m: m, keys: keys}, nil
}

// IsLocked reports whether any of the accounts is currently held. Advisory
// only: the caller still goes through Acquire before touching anything.
func (m *Manager) IsLocked(ctx context.Context, accountIDs []string) bool {
	if len(accountIDs) == 0 {
		return false
	}
	keys := make([]string, len(accountIDs))
	for i, id := range accountIDs {
		keys[i] = key(id)
	}
	held, err := m.store.Exists(ctx, keys...)
	if err != nil {
		// Can't tell; let Acquire decide.
		return false
	}
	return held
}

func (m *Manager) release(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := m.store.Del(ctx, keys...); err != nil {
		// Best effort: the TTL reclaims the lock if delete fails.
		m.log.Error("lock release", "keys", keys, "err", err)
	}
}

// Lease is a held lock set. Release is idempotent and never returns an
// error; a failed delete is logged and left to expire.
type Lease struct {
	m        *Manager
	keys     []string
	released bool
}

func (l *Lease) Release(ctx context.Context) {
	if l == nil || l.released {
		return
	}
	l.released = true
	l.m.release(ctx, l.keys)
}
