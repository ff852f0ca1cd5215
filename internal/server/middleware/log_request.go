package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
)

// LogRequestConfig configures LogRequest. Logger is required.
type LogRequestConfig struct {
	Logger  Logger
	Skipper Skipper
	// RequestBody reports whether a JSON request body is logged.
	RequestBody func(c echo.Context) bool
}

// LogRequest logs one line per request: 5xx at error, 4xx at warn, the rest
// at info. Path params (channel_id, message_id, client_id) are logged as
// fields of their own next to the route template and request id.
func LogRequest(config LogRequestConfig) echo.MiddlewareFunc {
	if config.Logger == nil {
		panic("Logger is required to use LogRequest")
	}
	if config.Skipper == nil {
		config.Skipper = DefaultSkipper
	}
	if config.RequestBody == nil {
		config.RequestBody = func(echo.Context) bool { return false }
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.Skipper(c) {
				return next(c)
			}

			start := time.Now()
			req := c.Request()

			var body json.RawMessage
			if config.RequestBody(c) && strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
				body, _ = io.ReadAll(req.Body)
				req.Body = io.NopCloser(bytes.NewReader(body))
			}

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			args := requestFields(c, status, time.Since(start))
			if len(body) > 0 {
				args = append(args, "request_body", body)
			}

			switch {
			case status >= 500:
				if err != nil {
					args = append(args, "error", err.Error())
				}
				config.Logger.Errorw("http request", args...)
			case status >= 400:
				if err != nil {
					args = append(args, "error", err.Error())
				}
				config.Logger.Warnw("http request", args...)
			default:
				config.Logger.Infow("http request", args...)
			}
			return err
		}
	}
}

func requestFields(c echo.Context, status int, latency time.Duration) []any {
	req := c.Request()
	args := make([]any, 0, 20)
	args = append(args,
		"status", status,
		"method", req.Method,
		"route", c.Path(),
		"uri", req.RequestURI,
		"latency_ms", latency.Milliseconds(),
		"request_id", GetRequestID(c),
	)
	for _, name := range c.ParamNames() {
		if v := c.Param(name); v != "" {
			args = append(args, name, v)
		}
	}
	if origin := req.Header.Get(echo.HeaderOrigin); origin != "" {
		args = append(args, "origin", origin)
	}
	return args
}
