package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
)

var (
	corsMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
	}, ", ")
	corsHeaders = strings.Join([]string{
		echo.HeaderContentType, echo.HeaderXRequestID,
	}, ", ")
)

// CORS lets browser UIs whose origin matches pattern call the gateway and
// read the X-Request-ID of each reply. Preflights from an allowed origin
// are answered with 204, from any other origin with 403.
func CORS(pattern *regexp.Regexp) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Response().Header()
			header.Add(echo.HeaderVary, echo.HeaderOrigin)

			origin := c.Request().Header.Get(echo.HeaderOrigin)
			preflight := c.Request().Method == http.MethodOptions && origin != ""
			if origin == "" || !pattern.MatchString(origin) {
				if preflight {
					return c.NoContent(http.StatusForbidden)
				}
				return next(c)
			}

			header.Set(echo.HeaderAccessControlAllowOrigin, origin)
			header.Set(echo.HeaderAccessControlExposeHeaders, echo.HeaderXRequestID)
			if preflight {
				header.Set(echo.HeaderAccessControlAllowMethods, corsMethods)
				header.Set(echo.HeaderAccessControlAllowHeaders, corsHeaders)
				header.Set(echo.HeaderAccessControlMaxAge, "600")
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}
