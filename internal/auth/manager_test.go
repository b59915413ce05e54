package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"
)

func newFixtureManager(t *testing.T, f *upstreamFixture, opts ...ManagerOption) *Manager {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return NewManager(client, NewMemoryCache(), opts...)
}

func TestManagerReusesStorePerToken(t *testing.T) {
	m := newFixtureManager(t, &upstreamFixture{})

	a := m.Session("tok-ana")
	b := m.Session("tok-ana")
	if a != b {
		t.Fatal("expected the same store for the same session token")
	}
	if c := m.Session("tok-bob"); c == a {
		t.Fatal("different tokens must not share a store")
	}
}

func TestManagerLoginRegistersSessionAndPrimesCache(t *testing.T) {
	fixture := &upstreamFixture{}
	m := newFixtureManager(t, fixture)

	user, token, err := m.Login(context.Background(), "ana", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user == nil || token != "tok-ana" {
		t.Fatalf("login returned (%+v, %q)", user, token)
	}

	// The principal was cached at login, so the first check needs no
	// upstream round trip.
	if got := m.CheckAuth(context.Background(), token); got == nil {
		t.Fatal("check after login lost the principal")
	}
	if hits := fixture.whoamiHits.Load(); hits != 0 {
		t.Fatalf("whoami hits = %d, want 0", hits)
	}
}

func TestManagerLogoutDropsSession(t *testing.T) {
	fixture := &upstreamFixture{}
	m := newFixtureManager(t, fixture)

	_, token, err := m.Login(context.Background(), "ana", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := m.Logout(context.Background(), token); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	// The cached principal is gone; the next check consults the upstream.
	if m.CheckAuth(context.Background(), token) == nil {
		t.Fatal("upstream still honors the token; the check should resolve it")
	}
	if hits := fixture.whoamiHits.Load(); hits != 1 {
		t.Fatalf("whoami hits after logout = %d, want 1", hits)
	}
}

func TestManagerAnonymousCheck(t *testing.T) {
	fixture := &upstreamFixture{}
	m := newFixtureManager(t, fixture)

	if user := m.CheckAuth(context.Background(), ""); user != nil {
		t.Fatalf("anonymous check returned %+v", user)
	}
	if fixture.whoamiHits.Load() != 0 {
		t.Fatal("anonymous check must not call the upstream")
	}
}

func TestManagerEvictsIdleStores(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	m := newFixtureManager(t, &upstreamFixture{},
		WithIdleEviction(time.Minute),
		WithManagerClock(clock),
	)

	first := m.Session("tok-ana")

	// Advance past both the sweep interval and the idle window.
	now = now.Add(3 * time.Minute)
	if second := m.Session("tok-ana"); second == first {
		t.Fatal("idle store survived eviction")
	}
}
