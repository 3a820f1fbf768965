package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"path-proxy-go/internal/model"
)

const (
	invalidDomainMessage = "Enter a valid site domain, for example /github.com or /bilibili.com/video/BV1xx411c7mG"
	proxyFailedMessage   = "Proxy request failed"
	usageTip             = "Check that the domain is correct, for example /github.com or /baidu.com"
)

func invalidDomain(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, model.ErrorResponse{
		Success: false,
		Message: invalidDomainMessage,
	})
}

// NewHTTPErrorHandler returns an Echo error handler that renders framework errors
// (unknown method, body too large, rate limited, recovered panics) in the same
// JSON shape as proxy errors.
func NewHTTPErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	logger = logger.With("component", "error_handler")

	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := http.StatusText(code)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				message = m
			} else {
				message = http.StatusText(code)
			}
		}

		body := model.ErrorResponse{Success: false, Message: message}
		if code >= http.StatusInternalServerError {
			logger.Error("unhandled error",
				"err", err,
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
			)
			body.Error = message
			body.Tip = usageTip
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, body)
		}
		if werr != nil {
			logger.Error("writing error response", "err", fmt.Errorf("status %d: %w", code, werr))
		}
	}
}
