package rewrite

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"path-proxy-go/internal/config"
	"path-proxy-go/internal/metrics"
	"path-proxy-go/internal/model"
)

// Rewriter applies the response rewrite stage to upstream responses.
type Rewriter struct {
	maxBodyBytes int64
	stripMetaCSP bool
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// NewRewriter creates a Rewriter from the rewrite config section.
// The metrics parameter is optional; pass nil to disable rewrite metrics.
func NewRewriter(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Rewriter {
	return &Rewriter{
		maxBodyBytes: cfg.Rewrite.MaxBodyBytes,
		stripMetaCSP: cfg.Rewrite.StripMetaCSPEnabled(),
		logger:       logger.With("component", "rewriter"),
		metrics:      m,
	}
}

// Response rewrites resp in place: redirects, security headers, body, then CORS.
// On error resp.Body has already been closed.
func (rw *Rewriter) Response(resp *model.ProxyResponse, method, domain string, pc model.ProxyContext) error {
	DropHopByHop(resp.Header)
	RewriteRedirects(resp.Header, domain, pc)
	RelaxSecurity(resp.Header)

	if err := rw.body(resp, method, domain, pc); err != nil {
		return err
	}

	ApplyCORS(resp.Header, pc)
	return nil
}

// hasRewritableBody reports whether the response carries a complete entity body.
func hasRewritableBody(method string, status int) bool {
	if method == http.MethodHead {
		return false
	}
	switch {
	case status < 200,
		status == http.StatusNoContent,
		status == http.StatusPartialContent,
		status == http.StatusNotModified:
		return false
	}
	return true
}

func (rw *Rewriter) body(resp *model.ProxyResponse, method, domain string, pc model.ProxyContext) error {
	contentType := resp.Header.Get("Content-Type")
	if !hasRewritableBody(method, resp.StatusCode) || !IsTextual(contentType) {
		rw.record(metrics.OutcomePassthrough)
		return nil
	}

	encoding := resp.Header.Get("Content-Encoding")
	dec, err := newDecoder(encoding, resp.Body)
	if errors.Is(err, errUnsupportedEncoding) {
		rw.logger.Debug("body not rewritten", "domain", domain, "content_encoding", encoding)
		rw.record(metrics.OutcomeUnsupportedEncoding)
		return nil
	}
	if err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode body: %w", err)
	}

	raw := resp.Body
	buf, err := io.ReadAll(io.LimitReader(dec, rw.maxBodyBytes+1))
	if err != nil {
		_ = dec.Close()
		_ = raw.Close()
		return fmt.Errorf("read body: %w", err)
	}

	if int64(len(buf)) > rw.maxBodyBytes {
		rw.logger.Debug("body exceeds rewrite limit, streaming unmodified",
			"domain", domain,
			"limit_bytes", rw.maxBodyBytes,
		)
		resp.Body = &multiReadCloser{
			Reader:  io.MultiReader(bytes.NewReader(buf), dec),
			closers: []io.Closer{dec, raw},
		}
		if !isIdentity(encoding) {
			resp.Header.Del("Content-Encoding")
			resp.Header.Del("Content-Length")
		}
		rw.record(metrics.OutcomeOversize)
		return nil
	}
	_ = dec.Close()
	_ = raw.Close()

	out := Body(buf, domain, pc)
	if rw.stripMetaCSP && isHTML(contentType) {
		stripped, changed, err := stripMetaCSP(out)
		if err != nil {
			rw.logger.Warn("could not parse HTML for meta CSP removal", "domain", domain, "err", err)
		} else if changed {
			out = stripped
		}
	}

	resp.Body = io.NopCloser(bytes.NewReader(out))
	resp.Header.Del("Content-Encoding")
	resp.Header.Set("Content-Length", strconv.Itoa(len(out)))
	rw.record(metrics.OutcomeRewritten)
	return nil
}

func (rw *Rewriter) record(outcome string) {
	if rw.metrics != nil {
		rw.metrics.BodyRewrites.WithLabelValues(outcome).Inc()
	}
}

// multiReadCloser reads from Reader and closes every closer in order.
type multiReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiReadCloser) Close() error {
	var errs []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
