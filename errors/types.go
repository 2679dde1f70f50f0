package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode identifies a class of failure
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound   ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Session errors
	ErrCodeSessionNotFound  ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSessionExists    ErrorCode = "SESSION_EXISTS"
	ErrCodeSnapshotMismatch ErrorCode = "SNAPSHOT_MISMATCH"

	// Agent process errors
	ErrCodeSpawnFailed      ErrorCode = "SPAWN_FAILED"
	ErrCodeStreamDecode     ErrorCode = "STREAM_DECODE"
	ErrCodeStaleResumeToken ErrorCode = "STALE_RESUME_TOKEN"
	ErrCodeQuotaExhausted   ErrorCode = "QUOTA_EXHAUSTED"

	// Worktree errors
	ErrCodeWorktreeUnavailable ErrorCode = "WORKTREE_UNAVAILABLE"

	// Transport errors
	ErrCodeDaemonUnavailable ErrorCode = "DAEMON_UNAVAILABLE"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// RelayError represents a structured error with context
type RelayError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *RelayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *RelayError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *RelayError) WithDetail(key string, value interface{}) *RelayError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *RelayError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new RelayError
func New(code ErrorCode, message string) *RelayError {
	return &RelayError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a RelayError
func Wrap(err error, code ErrorCode, message string) *RelayError {
	return &RelayError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is reports whether err, or any error it wraps, is a RelayError with code.
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	relayErr, ok := err.(*RelayError)
	if !ok {
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return Is(unwrapper.Unwrap(), code)
		}
		return false
	}

	if relayErr.Code == code {
		return true
	}
	return relayErr.Cause != nil && Is(relayErr.Cause, code)
}

// GetCode extracts the outermost error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	relayErr, ok := err.(*RelayError)
	if !ok {
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return relayErr.Code
}
