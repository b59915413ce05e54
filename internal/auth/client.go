package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"condoplex.org/internal/proxy"
)

const (
	defaultLoginPath  = "/auth/login/"
	defaultLogoutPath = "/auth/logout/"
	defaultWhoAmIPath = "/auth/me/"

	defaultTimeout = 10 * time.Second
)

// Client speaks to the upstream authentication endpoints. It addresses the
// backend directly, so it uses the backend-internal session cookie name.
type Client struct {
	base *url.URL
	http *http.Client

	loginPath  string
	logoutPath string
	whoamiPath string
}

// ClientOption configures the upstream client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithPaths overrides the upstream endpoint paths.
func WithPaths(login, logout, whoami string) ClientOption {
	return func(c *Client) {
		if login != "" {
			c.loginPath = login
		}
		if logout != "" {
			c.logoutPath = logout
		}
		if whoami != "" {
			c.whoamiPath = whoami
		}
	}
}

// NewClient builds an upstream auth client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("auth: parse upstream url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("auth: upstream url %q has no scheme or host", baseURL)
	}
	c := &Client{
		base:       base,
		http:       &http.Client{Timeout: defaultTimeout},
		loginPath:  defaultLoginPath,
		logoutPath: defaultLogoutPath,
		whoamiPath: defaultWhoAmIPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates credentials against the upstream. On success it returns
// the principal and the fresh session token issued via Set-Cookie.
func (c *Client) Login(ctx context.Context, username, password string) (*User, string, error) {
	body, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return nil, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.loginPath), bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer drainAndClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusForbidden:
		return nil, "", ErrBadCredentials
	default:
		return nil, "", fmt.Errorf("%w: login status %d", ErrUpstream, resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, "", fmt.Errorf("%w: decode principal: %v", ErrUpstream, err)
	}
	token := sessionTokenFrom(resp)
	if token == "" {
		return nil, "", fmt.Errorf("%w: login response carried no session cookie", ErrUpstream)
	}
	return &user, token, nil
}

// Logout invalidates the session upstream. Callers clear local state
// regardless of the returned error.
func (c *Client) Logout(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.logoutPath), nil)
	if err != nil {
		return err
	}
	attachSession(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: logout status %d", ErrUpstream, resp.StatusCode)
	}
	return nil
}

// WhoAmI resolves the principal for the given session token.
func (c *Client) WhoAmI(ctx context.Context, token string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(c.whoamiPath), nil)
	if err != nil {
		return nil, err
	}
	attachSession(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer drainAndClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthenticated
	default:
		return nil, fmt.Errorf("%w: whoami status %d", ErrUpstream, resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("%w: decode principal: %v", ErrUpstream, err)
	}
	return &user, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String()
}

func attachSession(req *http.Request, token string) {
	if token == "" {
		return
	}
	req.AddCookie(&http.Cookie{Name: proxy.UpstreamCookie, Value: token})
}

func sessionTokenFrom(resp *http.Response) string {
	for _, c := range resp.Cookies() {
		if c.Name == proxy.UpstreamCookie && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<16))
	_ = body.Close()
}
