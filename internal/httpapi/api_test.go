package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"condoplex.org/internal/auth"
	"condoplex.org/internal/notify"
	"condoplex.org/internal/policy"
	"condoplex.org/internal/proxy"
)

const upstreamPrincipal = `{
	"id": 7,
	"email": "ana@condoplex.org",
	"first_name": "Ana",
	"last_name": "Pereira",
	"roles": [
		{"role": "resident", "condominium": {"id": 3, "name": "Jardim das Flores"}},
		{"role": "administrator"}
	]
}`

// upstreamStub imitates the backend auth endpoints: password "secret" logs in,
// tokens starting with "tok-" resolve to the fixture principal.
func upstreamStub() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login/", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password != "secret" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: proxy.UpstreamCookie, Value: "tok-" + req.Username, Path: "/"})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(upstreamPrincipal))
	})
	mux.HandleFunc("GET /auth/me/", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(proxy.UpstreamCookie)
		if err != nil || !strings.HasPrefix(c.Value, "tok-") {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(upstreamPrincipal))
	})
	mux.HandleFunc("POST /auth/logout/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

const testTokenSecret = "test-secret-not-for-production"

func newTestAPI(t *testing.T) *API {
	t.Helper()
	upstream := httptest.NewServer(upstreamStub())
	t.Cleanup(upstream.Close)
	return newTestAPIWithUpstream(t, upstream.URL)
}

func newTestAPIWithUpstream(t *testing.T, upstreamURL string) *API {
	t.Helper()

	client, err := auth.NewClient(upstreamURL)
	if err != nil {
		t.Fatalf("auth.NewClient: %v", err)
	}
	engine, err := policy.NewEngine(policy.NewStaticStore(policy.BuiltinGrants))
	if err != nil {
		t.Fatalf("policy.NewEngine: %v", err)
	}

	api, err := New(Options{
		Version:      "test",
		UpstreamName: "condo-api",
		Sessions:     auth.NewManager(client, auth.NewMemoryCache()),
		Policy:       engine,
		Notifier:     notify.NewHub(),
		Proxy: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Proxied-Path", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}),
		Tokens:             NewServiceTokenVerifier(testTokenSecret, "condoplex"),
		RateLimitPerSecond: 1000,
		RateLimitBurst:     1000,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return api
}

// do runs one request through the full middleware chain.
func do(api *API, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	api.Handler().ServeHTTP(w, r)
	return w
}

// loginAs logs a user in through the HTTP surface and returns the public
// session cookie it was issued.
func loginAs(t *testing.T, api *API, username string) *http.Cookie {
	t.Helper()
	body := strings.NewReader(`{"username":"` + username + `","password":"secret"}`)
	r := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	r.Header.Set("Content-Type", "application/json")
	w := do(api, r)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", w.Code, w.Body.String())
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == proxy.PublicCookie {
			return c
		}
	}
	t.Fatal("login response carried no session cookie")
	return nil
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
