// Package price provides a client for the oracle HTTP API.
package price

import "errors"

var (
	// ErrPriceServerHTTPError indicates that the price server returned an HTTP error.
	ErrPriceServerHTTPError = errors.New("price server returned HTTP error")
	// ErrBaseURLRequired indicates that no server URL was given.
	ErrBaseURLRequired = errors.New("base URL is required")
	// ErrInvalidResponse indicates a malformed response body.
	ErrInvalidResponse = errors.New("invalid response")
)
