package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"path-proxy-go/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// statusResponse is the body of /proxy/status.
type statusResponse struct {
	Status             string `json:"status"`
	Version            string `json:"version"`
	Usage              string `json:"usage"`
	UpstreamScheme     string `json:"upstream_scheme"`
	TimeoutSeconds     int    `json:"timeout_seconds"`
	RewriteMaxBytes    int64  `json:"rewrite_max_body_bytes"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify"`
}

// Status returns proxy status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Status:             "ok",
		Version:            string(h.version),
		Usage:              "/{domain}/{path}, for example /github.com",
		UpstreamScheme:     "https",
		TimeoutSeconds:     h.cfg.Upstream.TimeoutSeconds,
		RewriteMaxBytes:    h.cfg.Rewrite.MaxBodyBytes,
		InsecureSkipVerify: h.cfg.Upstream.InsecureSkipVerify,
	})
}
