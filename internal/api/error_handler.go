package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/greenpoint/recycling-ledger/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps ledger and registration errors to their HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>", "field": "<field>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, resp := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, resp)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message)}
	}

	if le, ok := domain.AsLedgerError(err); ok {
		code := statusFor(le.Kind)
		if code >= http.StatusInternalServerError {
			log.Error().
				Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Msg("ledger operation failed")
		}
		return code, errorResponse{Error: le.Message, Field: le.Field}
	}

	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		return http.StatusNotFound, errorResponse{Error: "Recycling transaction not found."}
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, errorResponse{Error: "User not found or inactive."}
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
}

func statusFor(kind error) int {
	switch {
	case errors.Is(kind, domain.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(kind, domain.ErrInvalidMaterial),
		errors.Is(kind, domain.ErrUnknownMaterial),
		errors.Is(kind, domain.ErrInvalidQuantity),
		errors.Is(kind, domain.ErrInvalidName),
		errors.Is(kind, domain.ErrInvalidPhone):
		return http.StatusBadRequest
	case errors.Is(kind, domain.ErrDuplicateScan),
		errors.Is(kind, domain.ErrNegativeBalance):
		return http.StatusConflict
	case errors.Is(kind, domain.ErrOperationFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
