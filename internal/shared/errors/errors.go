// Package errors provides application-level error types and utilities.
// Beyond the generic validation/not-found/conflict types it carries the
// billing error taxonomy: configuration, method-not-supported, verification,
// provider-fetch, and state-conflict errors, each tagged so callers can
// branch on retryability without matching strings.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation_error"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeInternal     ErrorType = "internal_error"
	ErrorTypeBadRequest   ErrorType = "bad_request"

	// Billing taxonomy. Configuration and method-not-supported failures are
	// permanent; verification failures reject the request without mutation;
	// provider fetch failures are the only retryable kind; state conflicts
	// are recorded and left for the reconciliation sweep.
	ErrorTypeConfiguration      ErrorType = "configuration_error"
	ErrorTypeMethodNotSupported ErrorType = "method_not_supported"
	ErrorTypeVerification       ErrorType = "verification_error"
	ErrorTypeProviderFetch      ErrorType = "provider_fetch"
	ErrorTypeStateConflict      ErrorType = "state_conflict"
)

// AppError represents an application error with additional context
type AppError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details string    `json:"details,omitempty"`

	// Provider context, set on provider_fetch errors so the upstream HTTP
	// status and error code survive wrapping.
	ProviderStatus int    `json:"-"`
	ProviderCode   string `json:"-"`

	cause error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *AppError) Unwrap() error {
	return e.cause
}

func newAppError(t ErrorType, code int, message string, details ...string) *AppError {
	detail := ""
	if len(details) > 0 {
		detail = details[0]
	}
	return &AppError{
		Type:    t,
		Message: message,
		Code:    code,
		Details: detail,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeValidation, http.StatusBadRequest, message, details...)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeNotFound, http.StatusNotFound, message, details...)
}

// NewConflictError creates a new conflict error
func NewConflictError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeConflict, http.StatusConflict, message, details...)
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeUnauthorized, http.StatusUnauthorized, message, details...)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeInternal, http.StatusInternalServerError, message, details...)
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeBadRequest, http.StatusBadRequest, message, details...)
}

// NewConfigurationError reports missing or invalid credentials. Raised at
// provider construction so misconfiguration surfaces at startup, not
// mid-transaction.
func NewConfigurationError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeConfiguration, http.StatusInternalServerError, message, details...)
}

// NewMethodNotSupportedError reports an operation a provider cannot perform
// (e.g. server-side creation of a store IAP subscription). Permanent; callers
// must not retry.
func NewMethodNotSupportedError(provider, method string) *AppError {
	return newAppError(ErrorTypeMethodNotSupported, http.StatusBadRequest,
		fmt.Sprintf("method %s is not supported by provider %s", method, provider))
}

// NewVerificationError reports a signature mismatch or malformed receipt.
// The request is rejected with no state mutation; redelivery is governed by
// the sender, never retried internally.
func NewVerificationError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeVerification, http.StatusUnauthorized, message, details...)
}

// NewProviderFetchError reports a transient failure calling a provider API.
// Carries the upstream HTTP status and provider error code; retryable.
func NewProviderFetchError(message string, providerStatus int, providerCode string, cause error) *AppError {
	e := newAppError(ErrorTypeProviderFetch, http.StatusBadGateway, message)
	e.ProviderStatus = providerStatus
	e.ProviderCode = providerCode
	e.cause = cause
	return e
}

// NewStateConflictError reports an inbound event that contradicts persisted
// state in a way the transition table does not cover. Recorded for the
// reconciliation sweep; not retried.
func NewStateConflictError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeStateConflict, http.StatusConflict, message, details...)
}

// IsAppError checks if the error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

func isType(err error, t ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == t
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }

// IsConfigurationError checks if the error is a configuration error
func IsConfigurationError(err error) bool { return isType(err, ErrorTypeConfiguration) }

// IsMethodNotSupported checks if the error marks a permanently unsupported operation
func IsMethodNotSupported(err error) bool { return isType(err, ErrorTypeMethodNotSupported) }

// IsVerificationError checks if the error is a verification failure
func IsVerificationError(err error) bool { return isType(err, ErrorTypeVerification) }

// IsStateConflictError checks if the error is a state conflict
func IsStateConflictError(err error) bool { return isType(err, ErrorTypeStateConflict) }

// IsRetryable reports whether the failure is transient. Only provider fetch
// errors qualify; verification, configuration, and not-supported failures are
// terminal for the request.
func IsRetryable(err error) bool { return isType(err, ErrorTypeProviderFetch) }

// IsDuplicateError checks if the error is a database duplicate key error
func IsDuplicateError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// MySQL duplicate entry
	if strings.Contains(errStr, "Duplicate entry") || strings.Contains(errStr, "duplicate key") {
		return true
	}
	// SQLite and PostgreSQL unique violations
	if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "unique constraint") {
		return true
	}
	return false
}
