// Package model defines shared request-scoped types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"

	"path-proxy-go/internal/route"
)

// ProxyScheme is the scheme the proxy is assumed to be reached over.
const ProxyScheme = "https"

// ProxyContext describes how the proxy itself is addressed for one request.
// Rewritten URLs are built from it.
type ProxyContext struct {
	Host     string // Host header of the inbound request
	Scheme   string
	BasePath string // "/" + target domain
}

// NewProxyContext derives the ProxyContext for a request to domain received on host.
func NewProxyContext(host, domain string) ProxyContext {
	return ProxyContext{
		Host:     host,
		Scheme:   ProxyScheme,
		BasePath: "/" + domain,
	}
}

// Origin returns scheme://host of the proxy.
func (p ProxyContext) Origin() string {
	return p.Scheme + "://" + p.Host
}

// BaseURL returns the absolute URL under which the target domain is served.
func (p ProxyContext) BaseURL() string {
	return p.Origin() + p.BasePath
}

// ProxyRequest represents a client request to be forwarded to a target domain.
type ProxyRequest struct {
	Ctx           context.Context
	Method        string
	Target        route.Target
	RawQuery      string
	Proxy         ProxyContext
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
}

// ProxyResponse represents the upstream response on its way back to the client.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// ErrorResponse is the JSON body of every error the proxy generates itself.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Tip     string `json:"tip,omitempty"`
}
