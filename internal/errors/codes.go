// Package errors provides structured domain error handling for the list
// service.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeUnauthenticated indicates a missing or unknown credential.
	CodeUnauthenticated Code = "UNAUTHENTICATED"

	// CodeValidation indicates malformed mutation input.
	CodeValidation Code = "VALIDATION"

	// CodeNotFound indicates a requested item does not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeForbidden indicates the actor is not entitled to the operation.
	CodeForbidden Code = "FORBIDDEN"

	// CodeInvalidTransition indicates a state change the item's current
	// state does not permit.
	CodeInvalidTransition Code = "INVALID_TRANSITION"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeInvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
