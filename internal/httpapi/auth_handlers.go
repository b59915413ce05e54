package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"condoplex.org/internal/audit"
	"condoplex.org/internal/auth"
	"condoplex.org/internal/proxy"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin drives the login operation and relays the upstream session to
// the browser under the public cookie name. Bad credentials surface as 401
// for the login form to display; upstream unavailability as 502.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request payload")
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	user, token, err := a.sessions.Login(r.Context(), username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrBadCredentials):
			_ = audit.LogEvent(r.Context(), "auth.login.denied", map[string]any{"username": username})
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		default:
			writeError(w, r, http.StatusBadGateway, "authentication upstream unavailable")
		}
		return
	}

	http.SetCookie(w, sessionCookie(token))
	_ = audit.LogEvent(auth.ContextWithUser(r.Context(), user), "auth.login.succeeded", map[string]any{
		"username": username,
	})
	render.Status(r, http.StatusOK)
	render.JSON(w, r, user)
}

// handleLogout clears the session. The public cookie is expired and local
// state dropped even when the upstream logout fails; navigating back to the
// login screen is the client's move.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	if err := a.sessions.Logout(r.Context(), token); err != nil {
		_ = audit.LogEvent(r.Context(), "auth.logout.upstream_failed", map[string]any{"error": err.Error()})
	} else {
		_ = audit.LogEvent(r.Context(), "auth.logout.succeeded", nil)
	}

	http.SetCookie(w, expiredSessionCookie())
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "logged_out"})
}

// handleSession answers "who am I" for the current session cookie.
func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	user := a.sessions.CheckAuth(r.Context(), sessionToken(r))
	if user == nil {
		writeError(w, r, http.StatusUnauthorized, "no active session")
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, user)
}

func sessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     proxy.PublicCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func expiredSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     proxy.PublicCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
