// Package proxy forwards API-bound requests to the upstream backend while
// translating the session cookie name between the public-facing and
// backend-internal forms. Bodies are streamed end to end; the proxy never
// buffers or parses them, so arbitrary content types and uploads pass
// through. A single forwarding attempt is made per inbound request.
package proxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"condoplex.org/internal/obs"
)

// Proxy is the cookie-rewriting reverse proxy. It satisfies http.Handler.
type Proxy struct {
	upstream *url.URL
	rp       *httputil.ReverseProxy
}

// Option configures the proxy.
type Option func(*Proxy)

// WithTransport overrides the round tripper used to reach the upstream.
func WithTransport(rt http.RoundTripper) Option {
	return func(p *Proxy) {
		p.rp.Transport = rt
	}
}

// New builds a proxy targeting a fixed upstream base URL. The upstream origin
// replaces the inbound Host so the backend sees a same-origin request.
func New(upstreamURL string, opts ...Option) (*Proxy, error) {
	target, err := url.Parse(upstreamURL)
	if err != nil {
		return nil, fmt.Errorf("proxy: parse upstream url: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("proxy: upstream url %q has no scheme or host", upstreamURL)
	}

	p := &Proxy{upstream: target}
	p.rp = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.Host = target.Host
			rewriteRequestCookies(pr.Out.Header)
		},
		ModifyResponse: func(resp *http.Response) error {
			rewriteResponseCookies(resp.Header)
			return nil
		},
		ErrorHandler: p.upstreamError,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Upstream returns the configured upstream base URL.
func (p *Proxy) Upstream() *url.URL { return p.upstream }

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.rp.ServeHTTP(w, r)
}

// upstreamError surfaces a failed forwarding attempt as 502. No retry.
func (p *Proxy) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	obs.ObserveProxyUpstreamError()
	obs.LogRequest(map[string]any{
		"ts":     time.Now().UTC().Format(time.RFC3339Nano),
		"level":  "error",
		"msg":    "proxy_upstream_error",
		"method": r.Method,
		"path":   r.URL.Path,
		"error":  err.Error(),
	})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = w.Write([]byte(`{"error":"upstream unavailable"}`))
}
