package middleware

import (
	"reflect"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nguyentranbao-ct/campaign-chat/pkg/util"
)

// NotFoundRoute labels requests that matched no route, so probes for
// arbitrary paths do not mint new series.
const NotFoundRoute = "/not-found"

var gatewayRequests = util.MustHistogramVec(
	"gateway_request_duration_seconds",
	"Latency of session gateway requests by route template.",
	"code", "method", "route",
)

// Metrics serves the prometheus registry on metricsPath and records the
// latency of every other request not skipped. Streaming routes such as the
// change feed should be skipped; they live as long as the client.
func Metrics(metricsPath string, skipper Skipper) echo.MiddlewareFunc {
	if skipper == nil {
		skipper = DefaultSkipper
	}
	scrape := echo.WrapHandler(promhttp.Handler())

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().URL.Path == metricsPath {
				return scrape(c)
			}
			if skipper(c) {
				return next(c)
			}

			route := c.Path()
			if isNotFoundHandler(c.Handler()) {
				route = NotFoundRoute
			}

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			gatewayRequests.
				WithLabelValues(strconv.Itoa(c.Response().Status), c.Request().Method, route).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func isNotFoundHandler(handler echo.HandlerFunc) bool {
	return reflect.ValueOf(handler).Pointer() == reflect.ValueOf(echo.NotFoundHandler).Pointer()
}
