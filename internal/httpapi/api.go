// Package httpapi is the gateway's HTTP surface: route guards, auth
// endpoints, the cookie-rewriting proxy mount, notification push and the
// operational endpoints.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"condoplex.org/internal/auth"
	"condoplex.org/internal/notify"
	"condoplex.org/internal/obs"
	"condoplex.org/internal/policy"
)

// Options carries the dependencies the API needs. Everything is injected;
// the package keeps no globals.
type Options struct {
	Version      string
	UpstreamName string

	Sessions *auth.Manager
	Policy   *policy.Engine
	Notifier *notify.Hub
	Proxy    http.Handler

	ReadyProbe ReadyProbe
	Tokens     *ServiceTokenVerifier

	RateLimitPerSecond int
	RateLimitBurst     int
	MaxBodyBytes       int64
}

// API is the HTTP layer.
type API struct {
	router       chi.Router
	version      string
	upstreamName string

	sessions   *auth.Manager
	policy     *policy.Engine
	notifier   *notify.Hub
	proxy      http.Handler
	readyProbe ReadyProbe
	tokens     *ServiceTokenVerifier
}

// New wires routes, guards and middleware.
func New(opts Options) (*API, error) {
	if opts.Sessions == nil {
		return nil, errors.New("httpapi: session manager is required")
	}
	if opts.Policy == nil {
		return nil, errors.New("httpapi: policy engine is required")
	}
	if opts.Notifier == nil {
		return nil, errors.New("httpapi: notifier is required")
	}
	if opts.Proxy == nil {
		return nil, errors.New("httpapi: proxy is required")
	}
	if opts.RateLimitPerSecond <= 0 {
		opts.RateLimitPerSecond = 10
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 20
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}

	a := &API{
		version:      opts.Version,
		upstreamName: opts.UpstreamName,
		sessions:     opts.Sessions,
		policy:       opts.Policy,
		notifier:     opts.Notifier,
		proxy:        opts.Proxy,
		readyProbe:   opts.ReadyProbe,
		tokens:       opts.Tokens,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(LoggingJSON)
	r.Use(SecurityHeaders)
	r.Use(CORS)

	// Operational endpoints.
	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReady)
	r.Get("/v1/info", a.handleInfo)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	// Session endpoints: rate limited, body capped.
	r.Group(func(r chi.Router) {
		r.Use(RateLimit(opts.RateLimitPerSecond, opts.RateLimitBurst))
		r.Use(MaxBodyBytes(opts.MaxBodyBytes))
		r.Post("/auth/login", a.handleLogin)
		r.Post("/auth/logout", a.handleLogout)
		r.Get("/auth/session", a.handleSession)
	})

	// Service API: bearer tokens or a session, plus a policy check.
	r.Group(func(r chi.Router) {
		r.Use(a.withServiceAuth)
		r.Use(MaxBodyBytes(opts.MaxBodyBytes))
		r.With(a.requirePermission("manage", "notifications")).
			Post("/v1/notifications", a.handlePublishNotification)
	})

	// Authenticated pages and the notification stream.
	r.Group(func(r chi.Router) {
		r.Use(a.authGuard)
		r.Get("/", a.handlePage("home"))
		r.Get("/home", a.handlePage("home"))
		r.Get("/charges", a.handlePage("charges"))
		r.Get("/occurrences", a.handlePage("occurrences"))
		r.Get("/reports", a.handlePage("reports"))
		r.Get("/settings", a.handlePage("settings"))
		r.Get("/ws/notifications", a.handleNotificationsWS)
	})

	// Guest-only pages.
	r.Group(func(r chi.Router) {
		r.Use(a.guestGuard)
		r.Get("/login", a.handlePage("login"))
	})

	// The proxy streams bodies; no body cap, no parsing.
	r.Handle("/api/*", http.StripPrefix("/api", a.proxy))

	a.router = r
	return a, nil
}

// Handler returns the server handler, instrumented with metrics.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router)
}
