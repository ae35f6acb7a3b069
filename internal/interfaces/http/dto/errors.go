package dto

import (
	"errors"
	"net/http"

	"github.com/storefront/backend/internal/domain/shared"
)

// Error codes surfaced by the HTTP layer on top of the domain taxonomy
const (
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeBadRequest   = "BAD_REQUEST"
)

// domainCodeHTTPStatus maps domain error codes to HTTP status codes.
// STORE_UNAVAILABLE maps to 503 so clients can tell "system degraded" apart
// from "tenant unknown".
var domainCodeHTTPStatus = map[string]int{
	shared.ErrNotFound.Code:         http.StatusNotFound,
	shared.ErrConflict.Code:         http.StatusConflict,
	shared.ErrValidation.Code:       http.StatusBadRequest,
	shared.ErrStoreUnavailable.Code: http.StatusServiceUnavailable,
	shared.ErrInternal.Code:         http.StatusInternalServerError,
	ErrCodeUnauthorized:             http.StatusUnauthorized,
	ErrCodeForbidden:                http.StatusForbidden,
	ErrCodeRateLimited:              http.StatusTooManyRequests,
	ErrCodeBadRequest:               http.StatusBadRequest,
}

// GetHTTPStatus returns the HTTP status for an error code, defaulting to 500
func GetHTTPStatus(code string) int {
	if status, ok := domainCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// FromError converts any error into a response plus HTTP status. Domain
// errors keep their code and message; everything else is reported as an
// opaque internal error so raw backend errors never reach a client.
func FromError(err error) (Response, int) {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return NewErrorResponse(domainErr.Code, domainErr.Message), GetHTTPStatus(domainErr.Code)
	}
	return NewErrorResponse(shared.ErrInternal.Code, shared.ErrInternal.Message), http.StatusInternalServerError
}
