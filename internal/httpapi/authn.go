package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"condoplex.org/internal/audit"
	"condoplex.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var errInvalidServiceToken = errors.New("httpapi: invalid service token")

type serviceClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// ServiceTokenVerifier mints and checks HS256 bearer tokens for machine
// clients that cannot carry a browser session.
type ServiceTokenVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewServiceTokenVerifier returns nil when no secret is configured; the
// service-token path is then disabled entirely.
func NewServiceTokenVerifier(secret, issuer string) *ServiceTokenVerifier {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	return &ServiceTokenVerifier{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Mint issues a service token for the named subject with the given roles.
func (v *ServiceTokenVerifier) Mint(subject string, roles []string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	now := v.now()
	expiresAt := now.Add(ttl)
	claims := serviceClaims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Verify checks a bearer token and returns its subject and roles.
func (v *ServiceTokenVerifier) Verify(token string) (string, []string, error) {
	parsed, err := jwt.ParseWithClaims(token, &serviceClaims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return "", nil, errInvalidServiceToken
	}
	claims, ok := parsed.Claims.(*serviceClaims)
	if !ok || strings.TrimSpace(claims.Subject) == "" {
		return "", nil, errInvalidServiceToken
	}
	return claims.Subject, claims.Roles, nil
}

// withServiceAuth admits either a bearer service token or a browser session.
// On success the resolved principal is attached to the request context.
func (a *API) withServiceAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if header := r.Header.Get(authHeader); header != "" {
			if a.tokens == nil {
				writeError(w, r, http.StatusUnauthorized, "service tokens are not enabled")
				return
			}
			token, err := extractBearerToken(header)
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, err.Error())
				return
			}
			subject, roles, err := a.tokens.Verify(token)
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			user := serviceUser(subject, roles)
			next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), user)))
			return
		}

		user := a.sessions.CheckAuth(r.Context(), sessionToken(r))
		if user == nil {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), user)))
	})
}

// requirePermission gates a route on the policy engine.
func (a *API) requirePermission(action, subject string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := auth.UserFromContext(r.Context())
			if !ok {
				writeError(w, r, http.StatusUnauthorized, "authentication required")
				return
			}
			allowed, err := a.policy.Can(r.Context(), user, action, subject)
			if err != nil {
				writeError(w, r, http.StatusInternalServerError, "authorization error")
				return
			}
			if !allowed {
				_ = audit.LogEvent(r.Context(), "access.denied", map[string]any{
					"action":  action,
					"subject": subject,
					"path":    r.URL.Path,
				})
				writeError(w, r, http.StatusForbidden, "permission denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// serviceUser maps a verified token to a principal. Service accounts carry
// no numeric user id.
func serviceUser(subject string, roles []string) *auth.User {
	assignments := make([]auth.RoleAssignment, 0, len(roles))
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		assignments = append(assignments, auth.RoleAssignment{Role: role})
	}
	return &auth.User{Email: subject, Roles: assignments}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
