package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"path-proxy-go/internal/client"
	"path-proxy-go/internal/config"
	"path-proxy-go/internal/metrics"
	"path-proxy-go/internal/model"
	"path-proxy-go/internal/rewrite"
	"path-proxy-go/internal/service"
)

const proxyHost = "proxy.example"

func testConfig() *config.Config {
	return &config.Config{
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:     10,
			IdleConnections:    10,
			UserAgent:          "test-agent/1.0",
			InsecureSkipVerify: true,
		},
		Rewrite: config.RewriteConfig{MaxBodyBytes: 1 << 20},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProxyHandler(cfg *config.Config, m *metrics.Metrics) *ProxyHandler {
	logger := discardLogger()
	uc := client.NewUpstreamClient(cfg, logger, m)
	rw := rewrite.NewRewriter(cfg, logger, m)
	svc := service.NewProxyService(uc, rw, cfg, logger, m)
	return NewProxyHandler(svc, logger, m)
}

func newProxyRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Host = proxyHost
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var body model.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v (body %q)", err, rec.Body.String())
	}
	return body
}

func TestProxyHandler_Handle(t *testing.T) {
	var domain string
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/video/BV1xx411c7mG" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/video/BV1xx411c7mG")
		}
		if r.URL.RawQuery != "p=2" {
			t.Errorf("query = %q, want %q", r.URL.RawQuery, "p=2")
		}
		if r.Header.Get("X-Forwarded-For") != "" {
			t.Error("X-Forwarded-For reached the target")
		}
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		w.Header().Set("Access-Control-Allow-Origin", "https://"+domain)
		_, _ = fmt.Fprintf(w, `<img src="http://%s/a.png">`, domain)
	}))
	defer upstream.Close()
	domain = upstream.Listener.Addr().String()

	h := newTestProxyHandler(testConfig(), nil)

	e := echo.New()
	req := newProxyRequest(http.MethodGet, "/"+domain+"/video/BV1xx411c7mG?p=2", http.NoBody)
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Response().Header().Set("Access-Control-Allow-Origin", "*")

	if err := h.Handle(c); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	want := fmt.Sprintf(`<img src="https://%s/%s/a.png">`, proxyHost, domain)
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}
	if got := rec.Header().Values("Access-Control-Allow-Origin"); len(got) != 1 || got[0] != "https://"+proxyHost {
		t.Errorf("Access-Control-Allow-Origin = %v, want [%q]", got, "https://"+proxyHost)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("Access-Control-Allow-Credentials should be true")
	}
	if rec.Header().Get("Content-Security-Policy") != "" {
		t.Error("Content-Security-Policy should be removed")
	}
}

func TestProxyHandler_Handle_PostBody(t *testing.T) {
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if string(b) != "a=1&b=2" {
			t.Errorf("body = %q, want %q", b, "a=1&b=2")
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer upstream.Close()
	domain := upstream.Listener.Addr().String()

	h := newTestProxyHandler(testConfig(), nil)

	e := echo.New()
	req := newProxyRequest(http.MethodPost, "/"+domain+"/form", strings.NewReader("a=1&b=2"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Handle(c); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
}

func TestProxyHandler_Handle_InvalidDomain(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"root", "/"},
		{"no dot", "/localhost/admin"},
		{"single word", "/github"},
		{"empty first segment", "//github.com/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New()
			h := newTestProxyHandler(testConfig(), m)

			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(newProxyRequest(http.MethodGet, tt.path, http.NoBody), rec)

			if err := h.Handle(c); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}

			body := decodeError(t, rec)
			if body.Success {
				t.Error("success = true, want false")
			}
			if !strings.Contains(body.Message, "/github.com") {
				t.Errorf("message = %q, want an example path", body.Message)
			}
			if got := testutil.ToFloat64(m.RouteRejections); got != 1 {
				t.Errorf("route rejections = %v, want 1", got)
			}
		})
	}
}

func TestProxyHandler_Handle_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	domain := ln.Addr().String()
	_ = ln.Close()

	h := newTestProxyHandler(testConfig(), nil)

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(newProxyRequest(http.MethodGet, "/"+domain+"/", http.NoBody), rec)

	if err := h.Handle(c); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}

	body := decodeError(t, rec)
	if body.Success {
		t.Error("success = true, want false")
	}
	if body.Error == "" {
		t.Error("error field should carry the underlying cause")
	}
	if body.Tip == "" {
		t.Error("tip should not be empty")
	}
}

func TestProxyHandler_Handle_RewriteFailure(t *testing.T) {
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write([]byte("not gzip at all"))
	}))
	defer upstream.Close()
	domain := upstream.Listener.Addr().String()

	h := newTestProxyHandler(testConfig(), nil)

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(newProxyRequest(http.MethodGet, "/"+domain+"/", http.NoBody), rec)

	if err := h.Handle(c); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if body := decodeError(t, rec); body.Error == "" {
		t.Error("error field should carry the underlying cause")
	}
}

func TestProxyHandler_Handle_InvalidHostInPath(t *testing.T) {
	h := newTestProxyHandler(testConfig(), nil)

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(newProxyRequest(http.MethodGet, "/user@github.com/", http.NoBody), rec)

	if err := h.Handle(c); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHTTPErrorHandler(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		err         error
		wantStatus  int
		wantMessage string
		wantTip     bool
	}{
		{"not found", http.MethodGet, echo.ErrNotFound, http.StatusNotFound, "Not Found", false},
		{"body too large", http.MethodPost, echo.ErrStatusRequestEntityTooLarge, http.StatusRequestEntityTooLarge, "Request Entity Too Large", false},
		{"rate limited", http.MethodGet, echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded"), http.StatusTooManyRequests, "rate limit exceeded", false},
		{"plain error", http.MethodGet, fmt.Errorf("[PANIC RECOVER] boom"), http.StatusInternalServerError, "Internal Server Error", true},
		{"non-string message", http.MethodGet, echo.NewHTTPError(http.StatusBadGateway, map[string]string{"x": "y"}), http.StatusBadGateway, "Bad Gateway", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(tt.method, "/", http.NoBody), rec)

			NewHTTPErrorHandler(discardLogger())(tt.err, c)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := decodeError(t, rec)
			if body.Success {
				t.Error("success = true, want false")
			}
			if body.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", body.Message, tt.wantMessage)
			}
			if (body.Tip != "") != tt.wantTip {
				t.Errorf("tip = %q, want present=%v", body.Tip, tt.wantTip)
			}
		})
	}
}

func TestHTTPErrorHandler_Head(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodHead, "/", http.NoBody), rec)

	NewHTTPErrorHandler(discardLogger())(echo.ErrNotFound, c)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD error response has body %q", rec.Body.String())
	}
}

func TestHTTPErrorHandler_Committed(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", http.NoBody), rec)
	c.Response().WriteHeader(http.StatusOK)

	NewHTTPErrorHandler(discardLogger())(echo.ErrNotFound, c)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("committed response got body %q", rec.Body.String())
	}
}
