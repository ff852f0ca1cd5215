package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/campaign-chat/internal/models"
	pkgmdw "github.com/nguyentranbao-ct/campaign-chat/internal/server/middleware"
)

func errorHandler(log pkgmdw.Logger) echo.HTTPErrorHandler {
	return pkgmdw.ErrorHandler(log, translateError)
}

// translateError maps session and chat API errors to gateway responses.
// It returns nil for errors it does not recognise.
func translateError(err error) *pkgmdw.ResponseError {
	status, code := 0, ""
	switch {
	case errors.Is(err, models.ErrEmptyContent):
		status, code = http.StatusBadRequest, "empty_content"
	case errors.Is(err, models.ErrNoCredential):
		status, code = http.StatusUnauthorized, "no_credential"
	case errors.Is(err, models.ErrAuthRejected):
		status, code = http.StatusUnauthorized, "auth_rejected"
	case errors.Is(err, models.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrChannelSwitched):
		status, code = http.StatusConflict, "channel_switched"
	case errors.Is(err, models.ErrNotConnected):
		status, code = http.StatusServiceUnavailable, "not_connected"
	case errors.Is(err, models.ErrRetryExhausted):
		status, code = http.StatusServiceUnavailable, "retry_exhausted"
	case errors.Is(err, models.ErrSessionClosed):
		status, code = http.StatusServiceUnavailable, "session_closed"
	}

	var apiErr *models.APIError
	if status == 0 && errors.As(err, &apiErr) {
		status, code = http.StatusBadGateway, "chat_api_error"
	}
	if status == 0 {
		return nil
	}
	return &pkgmdw.ResponseError{
		Status:       status,
		Err:          err,
		ErrorCode:    code,
		ErrorMessage: err.Error(),
	}
}
