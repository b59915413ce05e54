package httpapi

import (
	"net/http"
	"net/url"
	"strings"

	"condoplex.org/internal/auth"
	"condoplex.org/internal/obs"
	"condoplex.org/internal/proxy"
)

const (
	loginRoute = "/login"
	homeRoute  = "/home"

	returnURLParam = "returnUrl"
)

// authGuard protects authenticated-only routes. An anonymous visitor is
// redirected to the login route with the current path as returnUrl, except
// from the root path which redirects bare. API-shaped requests get 401 JSON
// instead of a redirect.
func (a *API) authGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := a.sessions.CheckAuth(r.Context(), sessionToken(r))
		if user == nil {
			if wantsJSON(r) {
				writeError(w, r, http.StatusUnauthorized, "authentication required")
				return
			}
			obs.ObserveGuardRedirect("auth")
			target := loginRoute
			if r.URL.Path != "/" {
				q := url.Values{}
				q.Set(returnURLParam, r.URL.Path)
				target += "?" + q.Encode()
			}
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), user)))
	})
}

// guestGuard protects guest-only routes such as the login page: an
// authenticated visitor is sent to the home route.
func (a *API) guestGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := a.sessions.CheckAuth(r.Context(), sessionToken(r))
		if user != nil {
			obs.ObserveGuardRedirect("guest")
			http.Redirect(w, r, homeRoute, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sessionToken pulls the public session cookie value from the request.
func sessionToken(r *http.Request) string {
	c, err := r.Cookie(proxy.PublicCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// wantsJSON reports whether the request looks like an API call rather than a
// browser navigation.
func wantsJSON(r *http.Request) bool {
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
