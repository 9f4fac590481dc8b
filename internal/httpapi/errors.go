// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wardenauth/warden/internal/auth"
	"github.com/wardenauth/warden/pkg/errutil"
)

// Codes produced by the request layer itself.
const (
	CodeRateLimited = "RATE_LIMITED"
	CodeNotFound    = "NOT_FOUND"
	CodeInternal    = "INTERNAL"
)

// ErrorBody is the JSON envelope of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a stable code and a client-safe message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusByCode maps domain error codes to HTTP statuses. Codes outside the
// table are internal failures.
var statusByCode = map[string]int{
	auth.CodeValidation:         http.StatusBadRequest,
	auth.CodeDuplicateAccount:   http.StatusConflict,
	auth.CodeInvalidCredentials: http.StatusUnauthorized,
	auth.CodeAccountDisabled:    http.StatusForbidden,
	auth.CodeAccountNotFound:    http.StatusNotFound,
	auth.CodeInvalidResetCode:   http.StatusBadRequest,
	auth.CodeTokenExpired:       http.StatusUnauthorized,
	auth.CodeTokenInvalid:       http.StatusUnauthorized,
	auth.CodeTokenReuseDetected: http.StatusUnauthorized,
	auth.CodeUnauthorized:       http.StatusUnauthorized,
	auth.CodeForbidden:          http.StatusForbidden,
	CodeRateLimited:             http.StatusTooManyRequests,
}

// fixedMessages replace the error text for codes whose message must not vary
// with the cause.
var fixedMessages = map[string]string{
	auth.CodeInvalidCredentials: "invalid email or password",
	auth.CodeInvalidResetCode:   "invalid reset code",
}

// StatusFor returns the HTTP status for an error code.
func StatusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// errorHandler renders every handler error as an ErrorBody. Unmapped errors
// are logged and answered with a generic 500.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, detail := describe(err)
		if status >= http.StatusInternalServerError {
			errutil.LogErrorContext(c.Request().Context(), logger, "request failed", err,
				"method", c.Request().Method,
				"route", c.Path(),
			)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, ErrorBody{Error: detail})
		}
		if writeErr != nil {
			logger.Debug("write error response", "error", writeErr)
		}
	}
}

func describe(err error) (int, ErrorDetail) {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return describeHTTPError(httpErr)
	}

	code := errutil.Code(err)
	status := StatusFor(code)
	if status == http.StatusInternalServerError {
		return status, ErrorDetail{Code: CodeInternal, Message: "internal server error"}
	}
	msg, ok := fixedMessages[code]
	if !ok {
		// Mapped errors are created fresh by the auth package, so their
		// text is the client-facing message.
		msg = err.Error()
	}
	return status, ErrorDetail{Code: code, Message: msg}
}

// describeHTTPError covers errors raised by echo itself: unknown routes,
// wrong methods and oversized bodies.
func describeHTTPError(httpErr *echo.HTTPError) (int, ErrorDetail) {
	switch httpErr.Code {
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return httpErr.Code, ErrorDetail{Code: CodeNotFound, Message: http.StatusText(httpErr.Code)}
	case http.StatusRequestEntityTooLarge, http.StatusBadRequest, http.StatusUnsupportedMediaType:
		return httpErr.Code, ErrorDetail{Code: auth.CodeValidation, Message: http.StatusText(httpErr.Code)}
	}
	if httpErr.Code < http.StatusInternalServerError {
		return httpErr.Code, ErrorDetail{Code: CodeInternal, Message: http.StatusText(httpErr.Code)}
	}
	return http.StatusInternalServerError, ErrorDetail{Code: CodeInternal, Message: "internal server error"}
}
