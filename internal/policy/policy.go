// Package policy evaluates role-based access grants against a data-driven
// rule table. The rule set is pluggable: guards and handlers only ever ask
// Can(principal, action, subject).
package policy

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"condoplex.org/internal/auth"
)

var ErrInvalidGrant = errors.New("policy: invalid grant")

// Grant allows a role to perform an action on a subject.
type Grant struct {
	Role    string
	Action  string
	Subject string
}

// Store loads the grant table.
type Store interface {
	Grants(ctx context.Context) ([]Grant, error)
}

const defaultRuleTTL = time.Minute

// Engine answers permission questions from a cached grant table.
type Engine struct {
	store   Store
	ruleTTL time.Duration
	now     func() time.Time

	mu       sync.Mutex
	rules    map[string]map[string]struct{} // role -> action\x00subject
	loadedAt time.Time
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithRuleTTL sets how long a loaded rule table is trusted.
func WithRuleTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) {
		if ttl > 0 {
			e.ruleTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

// NewEngine builds an engine over the given grant store.
func NewEngine(store Store, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, errors.New("policy: store is required")
	}
	e := &Engine{store: store, ruleTTL: defaultRuleTTL, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Can reports whether any of the principal's roles is granted the action on
// the subject. An unknown role simply has no grants.
func (e *Engine) Can(ctx context.Context, user *auth.User, action, subject string) (bool, error) {
	if user == nil {
		return false, nil
	}
	rules, err := e.rulesTable(ctx)
	if err != nil {
		return false, err
	}
	key := ruleKey(action, subject)
	for _, role := range user.RoleNames() {
		if grants, ok := rules[normalize(role)]; ok {
			if _, ok := grants[key]; ok {
				return true, nil
			}
		}
	}
	return false, nil
}

// Invalidate drops the cached rule table so the next check reloads it.
// Called on every login so stale permissions are never served afterward.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.rules = nil
	e.mu.Unlock()
}

func (e *Engine) rulesTable(ctx context.Context) (map[string]map[string]struct{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rules != nil && e.now().Sub(e.loadedAt) < e.ruleTTL {
		return e.rules, nil
	}
	grants, err := e.store.Grants(ctx)
	if err != nil {
		if e.rules != nil {
			// Serve the stale table rather than failing closed on a
			// transient store error.
			return e.rules, nil
		}
		return nil, err
	}
	rules := make(map[string]map[string]struct{})
	for _, g := range grants {
		role := normalize(g.Role)
		if role == "" || g.Action == "" || g.Subject == "" {
			continue
		}
		if rules[role] == nil {
			rules[role] = make(map[string]struct{})
		}
		rules[role][ruleKey(g.Action, g.Subject)] = struct{}{}
	}
	e.rules = rules
	e.loadedAt = e.now()
	return rules, nil
}

func ruleKey(action, subject string) string {
	return normalize(action) + "\x00" + normalize(subject)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// StaticStore serves a fixed grant list. Used for bootstrap and tests.
type StaticStore struct {
	grants []Grant
}

// NewStaticStore copies the given grants into a static store.
func NewStaticStore(grants []Grant) *StaticStore {
	out := make([]Grant, len(grants))
	copy(out, grants)
	return &StaticStore{grants: out}
}

func (s *StaticStore) Grants(context.Context) ([]Grant, error) {
	out := make([]Grant, len(s.grants))
	copy(out, s.grants)
	return out, nil
}
