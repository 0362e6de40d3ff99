package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a failure for callers and the HTTP layer.
type Code string

const (
	CodeValidation           Code = "VALIDATION_ERROR"
	CodeAuthorization        Code = "AUTHORIZATION_ERROR"
	CodeNotFound             Code = "NOT_FOUND"
	CodeExternalVerification Code = "EXTERNAL_VERIFICATION_FAILURE"
	CodePaymentRejected      Code = "PAYMENT_REJECTED"
	CodeCryptoAuth           Code = "CRYPTO_AUTHENTICATION_FAILURE"
	CodeInvalidTransition    Code = "INVALID_TRANSITION"
	CodeConcurrencyConflict  Code = "CONCURRENCY_CONFLICT"
)

var (
	ErrValidation    = &Error{Code: CodeValidation, Message: "invalid input"}
	ErrAuthorization = &Error{Code: CodeAuthorization, Message: "not authorized"}
	ErrNotFound      = &Error{Code: CodeNotFound, Message: "not found"}

	// ErrExternalVerification is ambiguous and retryable: the facilitator or
	// chain could not be reached, so the payment state is unknown. It must
	// never be treated as a confirmed rejection.
	ErrExternalVerification = &Error{Code: CodeExternalVerification, Message: "external verification unavailable"}

	// ErrPaymentRejected is a confirmed, terminal rejection from the
	// facilitator or chain.
	ErrPaymentRejected = &Error{Code: CodePaymentRejected, Message: "payment rejected"}

	ErrCryptoAuth        = &Error{Code: CodeCryptoAuth, Message: "authentication failed"}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition, Message: "invalid state transition"}
	ErrConcurrency       = &Error{Code: CodeConcurrencyConflict, Message: "concurrent modification"}
)

// Error carries a taxonomy code plus a human message.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any error of the same code so wrapped instances compare equal
// to the package sentinels.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// New returns a taxonomy error with a specific message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the taxonomy code from err, or "" if err is untyped.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPStatus maps a taxonomy code to a response status.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeAuthorization:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeExternalVerification:
		return http.StatusBadGateway
	case CodePaymentRejected:
		return http.StatusPaymentRequired
	case CodeCryptoAuth:
		return http.StatusForbidden
	case CodeInvalidTransition, CodeConcurrencyConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
