package api

import (
	"errors"
	"net/http"

	"github.com/SuperReturn/Oracle/pkg/server/aggregator"
)

var (
	ErrMissingSignature = errors.New("missing request signature")
	ErrInvalidSignature = errors.New("invalid request signature")
	ErrStaleRequest     = errors.New("request timestamp outside allowed window")
	ErrBadRequest       = errors.New("malformed request")
	ErrUnknownOperation = errors.New("unknown admin operation")
	ErrUnknownSource    = errors.New("unknown source")
)

// statusCode maps an error to the HTTP status returned to the caller.
func statusCode(err error) int {
	switch {
	case errors.Is(err, ErrMissingSignature), errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrStaleRequest):
		return http.StatusUnauthorized
	case aggregator.IsAuthorizationError(err):
		return http.StatusForbidden
	case errors.Is(err, aggregator.ErrReentrantCall), errors.Is(err, aggregator.ErrSourceChanged):
		return http.StatusConflict
	case errors.Is(err, aggregator.ErrPrimaryUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrUnknownOperation), errors.Is(err, ErrUnknownSource),
		aggregator.IsConfigurationError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
