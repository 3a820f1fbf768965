package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"path-proxy-go/internal/config"
	"path-proxy-go/internal/metrics"
)

func testConfig(origin string) *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{BodyMaxBytes: 16},
		CORS:    config.CORSConfig{AllowOrigin: origin},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewEcho_CORSPreflight(t *testing.T) {
	tests := []struct {
		name            string
		policy          string
		wantOrigin      string
		wantCredentials string
	}{
		{"wildcard", config.CORSWildcard, "*", ""},
		{"reflect", config.CORSReflect, "https://app.example", "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEcho(testConfig(tt.policy), discardLogger(), metrics.New())
			e.Any("/*", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

			req := httptest.NewRequest(http.MethodOptions, "/github.com/api", http.NoBody)
			req.Header.Set("Origin", "https://app.example")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != http.StatusNoContent {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCredentials {
				t.Errorf("Access-Control-Allow-Credentials = %q, want %q", got, tt.wantCredentials)
			}
		})
	}
}

func TestNewEcho_BodyLimitUsesErrorShape(t *testing.T) {
	e := newEcho(testConfig(config.CORSWildcard), discardLogger(), metrics.New())
	e.Any("/*", func(c echo.Context) error {
		_, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/github.com/upload", strings.NewReader(strings.Repeat("x", 64)))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
	if !strings.Contains(rec.Body.String(), `"success":false`) {
		t.Errorf("body = %q, want JSON error shape", rec.Body.String())
	}
	if rec.Header().Get("X-Robots-Tag") == "" {
		t.Error("X-Robots-Tag should be set on error responses")
	}
}

func TestRegisterMetrics(t *testing.T) {
	m := metrics.New()

	cfg := testConfig(config.CORSWildcard)
	e := newEcho(cfg, discardLogger(), m)
	registerMetrics(e, cfg, m, discardLogger())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "path_proxy_route_rejections_total") {
		t.Error("metrics output should include path_proxy_route_rejections_total")
	}
}

func TestRegisterMetrics_Disabled(t *testing.T) {
	m := metrics.New()

	cfg := testConfig(config.CORSWildcard)
	cfg.Metrics.Enabled = false
	e := newEcho(cfg, discardLogger(), m)
	registerMetrics(e, cfg, m, discardLogger())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &config.Config{Log: config.LogConfig{Level: tt.level, Format: "text"}}
			logger := newLogger(cfg)
			if !logger.Enabled(context.Background(), tt.want) {
				t.Errorf("level %v should be enabled", tt.want)
			}
			if tt.want > slog.LevelDebug && logger.Enabled(context.Background(), tt.want-1) {
				t.Errorf("level below %v should be disabled", tt.want)
			}
		})
	}
}
