// Package route extracts the target origin from a path-addressed request.
//
// A request for /github.com/login?next=x addresses https://github.com/login?next=x.
// The first path segment is the target domain; everything after it is the path on
// the target. Domains are only checked for shape (non-empty, at least one dot):
// there is no DNS lookup and no allowlist, so any syntactically plausible host is
// reachable through the proxy.
package route

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidDomain is returned when the first path segment does not look like a hostname.
var ErrInvalidDomain = errors.New("invalid target domain")

// Target is the origin and path a request is forwarded to.
type Target struct {
	Domain     string
	RemotePath string
}

// Resolve splits an inbound request path into a Target.
func Resolve(path string) (Target, error) {
	rest := strings.TrimPrefix(path, "/")

	domain, remotePath := rest, "/"
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		domain, remotePath = rest[:i], rest[i:]
	}

	if domain == "" || !strings.Contains(domain, ".") {
		return Target{}, fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}

	return Target{Domain: domain, RemotePath: remotePath}, nil
}

// URL returns the absolute https URL of the target with rawQuery attached unchanged.
// RemotePath is expected in escaped form.
func (t Target) URL(rawQuery string) (*url.URL, error) {
	u, err := url.Parse("https://" + t.Domain + t.RemotePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDomain, err)
	}
	// userinfo or other authority syntax smuggled into the first segment
	if u.Host != t.Domain {
		return nil, fmt.Errorf("%w: host %q does not match %q", ErrInvalidDomain, u.Host, t.Domain)
	}
	u.RawQuery = rawQuery
	return u, nil
}
