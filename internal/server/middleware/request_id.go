package middleware

import (
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nguyentranbao-ct/campaign-chat/pkg/logger/log"
)

// maxRequestIDLen bounds ids accepted from the X-Request-ID header; longer
// ones are replaced.
const maxRequestIDLen = 64

// GenerateRequestID returns a time-ordered hex id.
func GenerateRequestID() string {
	return primitive.NewObjectID().Hex()
}

// GetRequestID returns the id RequestID attached to the request.
func GetRequestID(c echo.Context) string {
	return log.RequestID(c.Request().Context())
}

// RequestID tags every request with the caller's X-Request-ID, or a fresh
// id, and echoes it on the response. The id rides the request context, so
// context logging and outbound chat API calls made for the request carry it.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" || len(id) > maxRequestIDLen {
				id = GenerateRequestID()
			}
			c.SetRequest(req.WithContext(log.WithRequestID(req.Context(), id)))
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			return next(c)
		}
	}
}
