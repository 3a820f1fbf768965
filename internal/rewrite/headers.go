// Package rewrite transforms upstream responses so that a browser keeps
// navigating through the proxy: redirect targets, security and CORS headers,
// and absolute URLs inside textual bodies.
//
// Everything here is textual. URLs assembled by scripts at runtime, split
// across attributes, or spelled with a different host (CDN aliases,
// protocol-relative links in bodies) are not rewritten, and a URL-shaped string
// inside a comment or string literal is rewritten like any other.
package rewrite

import (
	"net/http"
	"strings"

	"path-proxy-go/internal/model"
)

// redirectHeaders carry URLs a browser follows or resolves against.
var redirectHeaders = []string{"Location", "Content-Location"}

// cspHeaders would block subresources that now load through the proxy origin.
var cspHeaders = []string{"Content-Security-Policy", "Content-Security-Policy-Report-Only"}

// hopByHopHeaders are connection-scoped and never relayed to the client.
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Location rewrites a redirect target received from domain so that following it
// stays on the proxy.
func Location(loc, domain string, pc model.ProxyContext) string {
	if loc == "" {
		return loc
	}
	if rest, ok := cutOrigin(loc, domain); ok {
		return pc.BaseURL() + rest
	}
	if strings.HasPrefix(loc, "/") && !strings.HasPrefix(loc, "//") && !underBasePath(loc, pc.BasePath) {
		return pc.BasePath + loc
	}
	if len(loc) >= 5 && strings.EqualFold(loc[:5], "http:") {
		return "https:" + loc[5:]
	}
	return loc
}

// cutOrigin strips an http, https or protocol-relative origin for domain from u
// and returns what follows it.
func cutOrigin(u, domain string) (string, bool) {
	var rest string
	switch lower := strings.ToLower(u); {
	case strings.HasPrefix(lower, "https://"):
		rest = u[len("https://"):]
	case strings.HasPrefix(lower, "http://"):
		rest = u[len("http://"):]
	case strings.HasPrefix(lower, "//"):
		rest = u[len("//"):]
	default:
		return "", false
	}

	end := strings.IndexAny(rest, "/?#")
	if end < 0 {
		end = len(rest)
	}
	if !strings.EqualFold(rest[:end], domain) {
		return "", false
	}
	return rest[end:], true
}

func underBasePath(p, base string) bool {
	if p == base {
		return true
	}
	for _, sep := range []string{"/", "?", "#"} {
		if strings.HasPrefix(p, base+sep) {
			return true
		}
	}
	return false
}

// RewriteRedirects applies Location to every redirect-bearing header in h.
func RewriteRedirects(h http.Header, domain string, pc model.ProxyContext) {
	for _, key := range redirectHeaders {
		if v := h.Get(key); v != "" {
			h.Set(key, Location(v, domain, pc))
		}
	}
}

// RelaxSecurity removes the Content-Security-Policy headers.
func RelaxSecurity(h http.Header) {
	for _, key := range cspHeaders {
		h.Del(key)
	}
}

// ApplyCORS grants the proxy origin credentialed access, overriding any upstream policy.
func ApplyCORS(h http.Header, pc model.ProxyContext) {
	h.Set("Access-Control-Allow-Origin", pc.Origin())
	h.Set("Access-Control-Allow-Credentials", "true")
}

// DropHopByHop removes hop-by-hop headers, including any named by Connection.
func DropHopByHop(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, k := range strings.Split(f, ",") {
			if k = strings.TrimSpace(k); k != "" {
				h.Del(k)
			}
		}
	}
	for _, k := range hopByHopHeaders {
		h.Del(k)
	}
}
