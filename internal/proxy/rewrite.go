package proxy

import (
	"net/http"
	"strings"
)

// The browser only ever sees the public cookie name; the upstream only ever
// sees its internal one. The rename is a textual substring replacement applied
// to cookie headers in both directions and must leave every other cookie
// name and value in the same header untouched.
const (
	// PublicCookie is the session cookie name visible to the browser.
	PublicCookie = "__session"
	// UpstreamCookie is the session cookie name the backend expects.
	UpstreamCookie = "__session-django"
)

// RewriteCookieHeader renames the public session cookie to the upstream name
// in a request Cookie header. Every occurrence is replaced, not just the
// first.
func RewriteCookieHeader(header string) string {
	return strings.ReplaceAll(header, PublicCookie, UpstreamCookie)
}

// RewriteSetCookie renames the upstream session cookie back to the public
// name in a single Set-Cookie header value.
func RewriteSetCookie(value string) string {
	return strings.ReplaceAll(value, UpstreamCookie, PublicCookie)
}

// rewriteRequestCookies applies the request-direction rename in place,
// preserving the multi-valued shape of the header.
func rewriteRequestCookies(h http.Header) {
	values := h.Values("Cookie")
	if len(values) == 0 {
		return
	}
	rewritten := make([]string, len(values))
	changed := false
	for i, v := range values {
		if strings.Contains(v, PublicCookie) {
			rewritten[i] = RewriteCookieHeader(v)
			changed = true
		} else {
			rewritten[i] = v
		}
	}
	if changed {
		h["Cookie"] = rewritten
	}
}

// rewriteResponseCookies applies the response-direction rename in place,
// one Set-Cookie string at a time.
func rewriteResponseCookies(h http.Header) {
	values := h.Values("Set-Cookie")
	if len(values) == 0 {
		return
	}
	rewritten := make([]string, len(values))
	for i, v := range values {
		rewritten[i] = RewriteSetCookie(v)
	}
	h["Set-Cookie"] = rewritten
}
