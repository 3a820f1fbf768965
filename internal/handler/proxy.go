package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"path-proxy-go/internal/metrics"
	"path-proxy-go/internal/model"
	"path-proxy-go/internal/route"
	"path-proxy-go/internal/service"
)

// ProxyHandler forwards /{domain}/{path} requests to https://{domain}/{path}.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProxyHandler creates a ProxyHandler.
// The metrics parameter is optional; pass nil to disable rejection metrics.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
		metrics: m,
	}
}

// Handle resolves the target from the request path, proxies the request and
// streams the rewritten response back.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	target, err := route.Resolve(req.URL.EscapedPath())
	if err != nil {
		h.logger.Debug("rejected path", "path", req.URL.Path, "err", err)
		return h.reject(c)
	}

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Target:        target,
		RawQuery:      req.URL.RawQuery,
		Proxy:         model.NewProxyContext(req.Host, target.Domain),
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Upstream values replace anything set by middleware (CORS, security headers).
	dst := c.Response().Header()
	for key, vals := range resp.Header {
		dst.Del(key)
		for _, v := range vals {
			dst.Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// The status is already sent, so a failure here leaves the client with a
	// truncated body. Only logging is possible.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Warn("streaming response body",
			"err", err,
			"domain", target.Domain,
			"path", target.RemotePath,
		)
	}

	return nil
}

func (h *ProxyHandler) reject(c echo.Context) error {
	if h.metrics != nil {
		h.metrics.RouteRejections.Inc()
	}
	return invalidDomain(c)
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	if errors.Is(err, route.ErrInvalidDomain) {
		return h.reject(c)
	}

	status := http.StatusBadGateway
	kind := service.KindUnreachable
	var pe *service.ProxyError
	if errors.As(err, &pe) {
		kind = pe.Kind
	}
	if kind == service.KindInternal {
		status = http.StatusInternalServerError
	}

	attrs := []any{
		"err", err,
		"kind", kind.String(),
		"path", c.Request().URL.Path,
	}
	if kind == service.KindCanceled {
		h.logger.Info("client went away", attrs...)
	} else {
		h.logger.Error("proxy error", attrs...)
	}

	return c.JSON(status, model.ErrorResponse{
		Success: false,
		Message: proxyFailedMessage,
		Error:   err.Error(),
		Tip:     usageTip,
	})
}
