package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/nguyentranbao-ct/campaign-chat/pkg/logger/log"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "caller id kept", header: "ui-42", want: "ui-42"},
		{name: "generated when absent"},
		{name: "oversized id replaced", header: strings.Repeat("x", maxRequestIDLen+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.Use(RequestID())
			e.GET("/", func(c echo.Context) error {
				assert.Equal(t, GetRequestID(c), log.RequestID(c.Request().Context()))
				return c.String(http.StatusOK, GetRequestID(c))
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderXRequestID, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			id := rec.Header().Get(echo.HeaderXRequestID)
			assert.Equal(t, id, rec.Body.String())
			if tt.want != "" {
				assert.Equal(t, tt.want, id)
			} else {
				assert.Len(t, id, 24)
			}
		})
	}
}
