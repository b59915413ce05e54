// Package auth implements the session state machine that gates every page:
// a per-browser-session Store with three operations (login, logout, check)
// driven against the upstream API, and a Manager that keys stores by session
// token and caches resolved principals.
package auth

import (
	"context"
	"sync"
	"time"

	"condoplex.org/internal/obs"
)

const defaultPrincipalTTL = 30 * time.Second

// Snapshot is an atomic view of the session state. Subscribers never observe
// a partially updated (loading, user) pair.
type Snapshot struct {
	Loading bool
	User    *User
}

// Store is the authentication state machine for one browser session.
//
// The three operations are serialized through a single-writer lock: if login
// and a session check are invoked concurrently, the second caller waits, so
// subscribers see results in invocation order rather than racing completions.
type Store struct {
	client       *Client
	cache        Cache
	principalTTL time.Duration
	invalidate   func()

	// ops serializes Login/Logout/CheckAuth for the whole operation,
	// network call included.
	ops sync.Mutex

	mu      sync.Mutex
	token   string
	loading bool
	user    *User
	subs    map[int]func(Snapshot)
	nextSub int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithPrincipalTTL sets how long resolved principals stay cached.
func WithPrincipalTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.principalTTL = ttl
		}
	}
}

// WithInvalidator registers a hook that drops cached access-control data.
// It runs before every login so stale permissions are never served after a
// principal change.
func WithInvalidator(fn func()) StoreOption {
	return func(s *Store) {
		s.invalidate = fn
	}
}

// NewStore builds a session store bound to the given session token, which may
// be empty for a not-yet-authenticated session.
func NewStore(client *Client, cache Cache, token string, opts ...StoreOption) *Store {
	s := &Store{
		client:       client,
		cache:        cache,
		principalTTL: defaultPrincipalTTL,
		token:        token,
		subs:         make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current (loading, user) pair.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Loading: s.loading, User: s.user}
}

// Token returns the session token the store is currently bound to.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Subscribe registers a callback invoked with every state change. The
// returned function unsubscribes.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Login authenticates credentials against the upstream. On success the store
// transitions to Authenticated and rebinds to the fresh session token; on
// failure the store lands on Anonymous and the error is surfaced to the
// caller so the login form can display it.
func (s *Store) Login(ctx context.Context, username, password string) (*User, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	old := s.Token()
	s.setState(true, nil)
	if s.invalidate != nil {
		s.invalidate()
	}
	if old != "" {
		s.cache.Delete(ctx, old)
	}

	user, token, err := s.client.Login(ctx, username, password)
	if err != nil {
		s.setState(false, nil)
		obs.ObserveAuthOperation("login", "failure")
		return nil, err
	}

	s.setToken(token)
	s.cache.Set(ctx, token, user, s.principalTTL)
	s.setState(false, user)
	obs.ObserveAuthOperation("login", "success")
	return user, nil
}

// Logout invalidates the session upstream and clears the principal. The
// local state is cleared even when the upstream call fails; the returned
// error reports the upstream outcome for logging only. Navigation to the
// login screen is the caller's responsibility.
func (s *Store) Logout(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	token := s.Token()
	s.setLoading(true)

	var err error
	if token != "" {
		err = s.client.Logout(ctx, token)
		s.cache.Delete(ctx, token)
	}

	s.setToken("")
	s.setState(false, nil)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	obs.ObserveAuthOperation("logout", outcome)
	return err
}

// CheckAuth resolves the principal for the bound session token. It never
// returns an error: any failure leaves the store Anonymous, visible only
// through the nil principal.
func (s *Store) CheckAuth(ctx context.Context) *User {
	s.ops.Lock()
	defer s.ops.Unlock()

	token := s.Token()
	if token == "" {
		s.setState(false, nil)
		return nil
	}
	if user, ok := s.cache.Get(ctx, token); ok {
		s.setState(false, user)
		return user
	}

	s.setLoading(true)
	user, err := s.client.WhoAmI(ctx, token)
	if err != nil {
		s.cache.Delete(ctx, token)
		s.setState(false, nil)
		obs.ObserveAuthOperation("check", "failure")
		return nil
	}
	s.cache.Set(ctx, token, user, s.principalTTL)
	s.setState(false, user)
	obs.ObserveAuthOperation("check", "success")
	return user
}

func (s *Store) setToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// setState swaps the (loading, user) pair atomically, then fans the snapshot
// out to subscribers. Callbacks run outside the state lock so they may read
// the store freely.
func (s *Store) setState(loading bool, user *User) {
	s.mu.Lock()
	s.loading = loading
	s.user = user
	snap := Snapshot{Loading: loading, User: user}
	subs := s.subscribersLocked()
	s.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Store) setLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	snap := Snapshot{Loading: loading, User: s.user}
	subs := s.subscribersLocked()
	s.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Store) subscribersLocked() []func(Snapshot) {
	out := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}
