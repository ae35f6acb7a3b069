package shared

import "fmt"

// DomainError represents a domain-level error with a stable machine-readable code
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is allows errors.Is matching by code, so copies created with
// WithMessage still compare equal to their sentinel
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithMessage returns a copy of the error with a more specific message
func (e *DomainError) WithMessage(format string, args ...any) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Error taxonomy shared by every layer.
//
// ErrNotFound is an expected outcome (unknown host, missing cache key) and is
// not logged as an error. ErrStoreUnavailable marks an unreachable backend and
// triggers graceful degradation on read paths; callers must be able to tell it
// apart from "tenant unknown".
var (
	ErrNotFound         = NewDomainError("NOT_FOUND", "Resource not found")
	ErrConflict         = NewDomainError("CONFLICT", "Resource already exists")
	ErrStoreUnavailable = NewDomainError("STORE_UNAVAILABLE", "Backing store is unreachable")
	ErrValidation       = NewDomainError("VALIDATION", "Invalid input provided")
	ErrInternal         = NewDomainError("INTERNAL", "Unexpected internal error")
)
