// Package errors provides unified error handling for the lifecycle core.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code.
type ErrorCode string

const (
	// Validation errors (3xxx)
	ErrCodeInvalidInput     ErrorCode = "VAL_3001"
	ErrCodeMissingParameter ErrorCode = "VAL_3002"
	ErrCodeInvalidFormat    ErrorCode = "VAL_3003"
	ErrCodeOutOfRange       ErrorCode = "VAL_3004"

	// Resource errors (4xxx)
	ErrCodeNotFound      ErrorCode = "RES_4001"
	ErrCodeAlreadyExists ErrorCode = "RES_4002"
	ErrCodeConflict      ErrorCode = "RES_4003"

	// Service errors (5xxx)
	ErrCodeInternal      ErrorCode = "SVC_5001"
	ErrCodeDatabaseError ErrorCode = "SVC_5002"
	ErrCodeTimeout       ErrorCode = "SVC_5003"

	// Cryptographic errors (6xxx)
	ErrCodeVerificationFailed ErrorCode = "CRYPTO_6001"

	// Transport errors (7xxx)
	ErrCodeRateLimitExceeded ErrorCode = "TRANSPORT_7001"

	// Lifecycle errors (8xxx) — spec.md §7
	ErrCodePhaseLockRejected       ErrorCode = "LIFE_8001"
	ErrCodeSoulValidationFailed    ErrorCode = "LIFE_8002"
	ErrCodePersistenceFailure      ErrorCode = "LIFE_8003"
	ErrCodeDeathClockCorrupted     ErrorCode = "LIFE_8004"
	ErrCodeBequestValidationFailed ErrorCode = "LIFE_8005"
	ErrCodeBequestTransferFailed   ErrorCode = "LIFE_8006"
	ErrCodeClockSkew               ErrorCode = "LIFE_8007"
)

// ServiceError represents a structured error with code, message, and HTTP status.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError.
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap wraps an existing error with a ServiceError.
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Validation errors

func InvalidInput(field, reason string) *ServiceError {
	return New(ErrCodeInvalidInput, "invalid input", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

func MissingParameter(param string) *ServiceError {
	return New(ErrCodeMissingParameter, "missing required parameter", http.StatusBadRequest).
		WithDetails("parameter", param)
}

func OutOfRange(field string, min, max interface{}) *ServiceError {
	return New(ErrCodeOutOfRange, "value out of range", http.StatusBadRequest).
		WithDetails("field", field).WithDetails("min", min).WithDetails("max", max)
}

// Resource errors

func NotFound(resource, id string) *ServiceError {
	return New(ErrCodeNotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).WithDetails("id", id)
}

func Conflict(message string) *ServiceError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

// Service errors

func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

// DatabaseError wraps a persistence failure — spec.md §7 PersistenceFailure.
// Returned from inside store.WithTx, it causes the enclosing transaction to
// be rolled back.
func DatabaseError(operation string, err error) *ServiceError {
	return Wrap(ErrCodePersistenceFailure, "persistence failure", http.StatusInternalServerError, err).
		WithDetails("operation", operation)
}

func Timeout(operation string) *ServiceError {
	return New(ErrCodeTimeout, "operation timed out", http.StatusGatewayTimeout).
		WithDetails("operation", operation)
}

// Lifecycle errors — spec.md §7

// PhaseLockRejected is returned when a write targets a non-active soul
// stratum. Recoverable: the caller gets a descriptive message and the
// rejection is journaled as experimental evidence by engine/soullock.
func PhaseLockRejected(targetPhase, currentPhase string) *ServiceError {
	return New(ErrCodePhaseLockRejected, fmt.Sprintf("soul stratum %q is locked and not writable from phase %q", targetPhase, currentPhase), http.StatusConflict).
		WithDetails("target_phase", targetPhase).
		WithDetails("current_phase", currentPhase)
}

// SoulValidationFailed is returned when attempted content exceeds size caps
// or matches an injection pattern. Recoverable: no write occurs.
func SoulValidationFailed(reasons []string) *ServiceError {
	return New(ErrCodeSoulValidationFailed, "soul content failed validation", http.StatusBadRequest).
		WithDetails("reasons", reasons)
}

// DeathClockCorrupted is fatal: the revealed duration hash matched none of
// the six candidates, so degradation semantics cannot be computed safely.
func DeathClockCorrupted() *ServiceError {
	return New(ErrCodeDeathClockCorrupted, "sealed death clock duration hash did not match any candidate — degradation semantics cannot be computed safely", http.StatusInternalServerError)
}

// BequestValidationFailed is per-entry and non-aborting.
func BequestValidationFailed(recipient, reason string) *ServiceError {
	return New(ErrCodeBequestValidationFailed, "bequest entry failed validation", http.StatusBadRequest).
		WithDetails("recipient", recipient).WithDetails("reason", reason)
}

// BequestTransferFailed is per-entry and non-aborting.
func BequestTransferFailed(recipient string, err error) *ServiceError {
	return Wrap(ErrCodeBequestTransferFailed, "bequest transfer failed", http.StatusBadGateway, err).
		WithDetails("recipient", recipient)
}

// ClockSkew is a warn-once condition: now < birthTimestamp, treated as age 0.
func ClockSkew(birthTimestamp, now int64) *ServiceError {
	return New(ErrCodeClockSkew, "observed time precedes birth timestamp; treating age as zero", http.StatusOK).
		WithDetails("birth_timestamp", birthTimestamp).WithDetails("now", now)
}

func VerificationFailed(err error) *ServiceError {
	return Wrap(ErrCodeVerificationFailed, "verification failed", http.StatusUnauthorized, err)
}

// RateLimitExceeded is returned when a client exceeds the status surface's
// request budget.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(ErrCodeRateLimitExceeded, "rate limit exceeded", http.StatusTooManyRequests).
		WithDetails("limit", limit).WithDetails("window", window)
}

// Helper functions

// IsServiceError checks if an error is a ServiceError.
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error chain.
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status code for an error.
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Code returns the ErrorCode carried by err, or "" if err is not a ServiceError.
func Code(err error) ErrorCode {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.Code
	}
	return ""
}
