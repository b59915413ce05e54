package auth

import (
	"context"
	"sync"
	"time"
)

const (
	defaultStoreIdle    = 10 * time.Minute
	defaultSweepEvery   = time.Minute
	defaultMaxStoreSize = 10000
)

// Manager owns the session stores of the process, keyed by session token.
// It is the explicit, injected container the UI layer reads auth state
// through; there is no package-level singleton.
type Manager struct {
	client       *Client
	cache        Cache
	principalTTL time.Duration
	invalidate   func()

	mu        sync.Mutex
	stores    map[string]*managedStore
	lastSweep time.Time
	idleAfter time.Duration
	maxStores int
	now       func() time.Time
}

type managedStore struct {
	store    *Store
	lastSeen time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerPrincipalTTL sets the principal cache TTL for all stores.
func WithManagerPrincipalTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.principalTTL = ttl
		}
	}
}

// WithManagerInvalidator registers the access-control invalidation hook run
// before every login.
func WithManagerInvalidator(fn func()) ManagerOption {
	return func(m *Manager) {
		m.invalidate = fn
	}
}

// WithIdleEviction sets how long an untouched store survives.
func WithIdleEviction(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.idleAfter = d
		}
	}
}

// WithManagerClock overrides the time source (useful for tests).
func WithManagerClock(fn func() time.Time) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewManager builds a session manager over the given upstream client and
// principal cache.
func NewManager(client *Client, cache Cache, opts ...ManagerOption) *Manager {
	m := &Manager{
		client:       client,
		cache:        cache,
		principalTTL: defaultPrincipalTTL,
		stores:       make(map[string]*managedStore),
		idleAfter:    defaultStoreIdle,
		maxStores:    defaultMaxStoreSize,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastSweep = m.now()
	return m
}

// Session returns the store bound to the given token, creating it on first
// sight. An empty token yields a fresh unregistered store, suitable for a
// login attempt.
func (m *Manager) Session(token string) *Store {
	if token == "" {
		return m.newStore("")
	}
	key := cacheKey(token)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()

	if entry, ok := m.stores[key]; ok {
		entry.lastSeen = m.now()
		return entry.store
	}
	store := m.newStore(token)
	if len(m.stores) < m.maxStores {
		m.stores[key] = &managedStore{store: store, lastSeen: m.now()}
	}
	return store
}

// Login runs the login operation on a fresh store and registers it under the
// session token the upstream issued. Returns the principal and the token the
// HTTP layer relays to the browser.
func (m *Manager) Login(ctx context.Context, username, password string) (*User, string, error) {
	store := m.newStore("")
	user, err := store.Login(ctx, username, password)
	if err != nil {
		return nil, "", err
	}
	token := store.Token()

	m.mu.Lock()
	if len(m.stores) < m.maxStores {
		m.stores[cacheKey(token)] = &managedStore{store: store, lastSeen: m.now()}
	}
	m.mu.Unlock()
	return user, token, nil
}

// Logout clears the session bound to the token. The store is dropped and the
// upstream outcome is returned for logging; local state is gone either way.
func (m *Manager) Logout(ctx context.Context, token string) error {
	store := m.Session(token)
	err := store.Logout(ctx)

	if token != "" {
		m.mu.Lock()
		delete(m.stores, cacheKey(token))
		m.mu.Unlock()
	}
	return err
}

// CheckAuth resolves the principal for a session token. Nil means anonymous;
// a failed check is silent.
func (m *Manager) CheckAuth(ctx context.Context, token string) *User {
	if token == "" {
		return nil
	}
	return m.Session(token).CheckAuth(ctx)
}

func (m *Manager) newStore(token string) *Store {
	opts := []StoreOption{WithPrincipalTTL(m.principalTTL)}
	if m.invalidate != nil {
		opts = append(opts, WithInvalidator(m.invalidate))
	}
	return NewStore(m.client, m.cache, token, opts...)
}

// sweepLocked drops stores idle beyond the eviction window. Runs at most
// once per minute, piggybacking on Session calls.
func (m *Manager) sweepLocked() {
	now := m.now()
	if now.Sub(m.lastSweep) < defaultSweepEvery {
		return
	}
	m.lastSweep = now
	for key, entry := range m.stores {
		if now.Sub(entry.lastSeen) > m.idleAfter {
			delete(m.stores, key)
		}
	}
}
