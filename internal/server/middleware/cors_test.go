package middleware

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

var localOrigins = regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1)(:[0-9]+)?$`)

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		origin      string
		wantStatus  int
		wantAllowed string
		wantMethods bool
	}{
		{name: "allowed origin", method: http.MethodGet, origin: "http://localhost:5173", wantStatus: http.StatusOK, wantAllowed: "http://localhost:5173"},
		{name: "foreign origin served without cors headers", method: http.MethodGet, origin: "https://evil.example", wantStatus: http.StatusOK},
		{name: "no origin", method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "preflight from allowed origin", method: http.MethodOptions, origin: "http://127.0.0.1:8080", wantStatus: http.StatusNoContent, wantAllowed: "http://127.0.0.1:8080", wantMethods: true},
		{name: "preflight from foreign origin", method: http.MethodOptions, origin: "https://evil.example", wantStatus: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.Use(CORS(localOrigins))
			e.GET("/api/v1/session", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

			req := httptest.NewRequest(tt.method, "/api/v1/session", nil)
			if tt.origin != "" {
				req.Header.Set(echo.HeaderOrigin, tt.origin)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAllowed, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
			assert.Equal(t, echo.HeaderOrigin, rec.Header().Get(echo.HeaderVary))
			if tt.wantAllowed != "" {
				assert.Equal(t, echo.HeaderXRequestID, rec.Header().Get(echo.HeaderAccessControlExposeHeaders))
			}
			if tt.wantMethods {
				assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowMethods), http.MethodDelete)
				assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowHeaders), echo.HeaderXRequestID)
			}
		})
	}
}
