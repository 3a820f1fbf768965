// Package service implements the proxy transaction: build the outbound request
// for a resolved target, send it, and rewrite the response for the client.
package service

import (
	"fmt"
	"log/slog"
	"net/http"

	"path-proxy-go/internal/client"
	"path-proxy-go/internal/config"
	"path-proxy-go/internal/metrics"
	"path-proxy-go/internal/model"
	"path-proxy-go/internal/rewrite"
)

// identityHeaders reveal the client or the proxy chain and are never sent upstream.
var identityHeaders = []string{
	"X-Forwarded-For",
	"X-Forwarded-Host",
	"X-Real-Ip",
	"Forwarded",
	"Via",
}

// ProxyService handles the forwarding logic for proxy requests.
type ProxyService struct {
	client    *client.UpstreamClient
	rewriter  *rewrite.Rewriter
	userAgent string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewProxyService creates a ProxyService.
// The metrics parameter is optional; pass nil to disable error metrics.
func NewProxyService(c *client.UpstreamClient, rw *rewrite.Rewriter, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	ua := cfg.Upstream.UserAgent
	if ua == "" {
		ua = config.DefaultUserAgent
	}
	return &ProxyService{
		client:    c,
		rewriter:  rw,
		userAgent: ua,
		logger:    logger.With("component", "proxy_service"),
		metrics:   m,
	}
}

// Forward sends a ProxyRequest to its target and returns the rewritten response.
// The caller is responsible for closing the response body. Every error returned
// is a *ProxyError.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	target, err := pr.Target.URL(pr.RawQuery)
	if err != nil {
		return nil, s.fail(&ProxyError{Kind: KindInternal, Err: fmt.Errorf("build target url: %w", err)})
	}

	header := s.outboundHeaders(pr.Header, pr.Proxy)

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"domain", pr.Target.Domain,
		"path", pr.Target.RemotePath,
	)

	resp, err := s.client.DoStream(pr.Ctx, pr.Method, target.String(), pr.Target.Domain, header, pr.Body, pr.ContentLength)
	if err != nil {
		return nil, s.fail(classifyUpstream(fmt.Errorf("forward to %s: %w", pr.Target.Domain, err)))
	}

	if err := s.rewriter.Response(resp, pr.Method, pr.Target.Domain, pr.Proxy); err != nil {
		return nil, s.fail(&ProxyError{Kind: KindInternal, Err: fmt.Errorf("rewrite response: %w", err)})
	}
	return resp, nil
}

func (s *ProxyService) fail(pe *ProxyError) *ProxyError {
	if s.metrics != nil {
		s.metrics.UpstreamErrors.WithLabelValues(pe.Kind.String()).Inc()
	}
	return pe
}

// outboundHeaders builds the header set sent to the target so that the request
// looks like a direct browser visit coming from the proxied page.
func (s *ProxyService) outboundHeaders(src http.Header, pc model.ProxyContext) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}

	rewrite.DropHopByHop(dst)
	dst.Del("Host")
	for _, key := range identityHeaders {
		dst.Del(key)
	}

	dst.Set("User-Agent", s.userAgent)
	dst.Set("Referer", pc.BaseURL())
	dst.Set("Origin", pc.BaseURL())
	dst.Set("X-Forwarded-Proto", "https")
	return dst
}
