package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorHandler renders every handler error as a ResponseError envelope.
// translate, when set, gets the first chance to turn a domain error into a
// ResponseError; echo errors and canceled requests are handled here.
func ErrorHandler(log Logger, translate func(error) *ResponseError) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if err == nil || c.Response().Committed {
			return
		}

		resp := &ResponseError{
			Status:       http.StatusInternalServerError,
			Success:      false,
			Err:          err,
			ErrorMessage: http.StatusText(http.StatusInternalServerError),
		}

		var (
			he *echo.HTTPError
			re *ResponseError
		)
		switch {
		case errors.As(err, &he):
			resp.Status = he.Code
			resp.ErrorMessage = fmt.Sprint(he.Message)
		case errors.As(err, &re):
			resp = re
		case translate != nil && translate(err) != nil:
			resp = translate(err)
		case errors.Is(err, context.Canceled) && c.Request().Context().Err() == context.Canceled:
			// client went away
			resp.Status = 499
		}

		if resp.Status == http.StatusNotFound && isNotFoundHandler(c.Handler()) {
			resp.ErrorMessage = "no route matched"
		}
		if resp.Status >= http.StatusInternalServerError {
			log.Errorw("request failed", "status", resp.Status, "error", err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(resp.Status)
		} else {
			err = c.JSON(resp.Status, resp)
		}
		if err != nil {
			log.Errorw("could not response", "code", resp.Status, "response_body", resp)
		}
	}
}
