// Package errors provides standardized error types for the query pipeline.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for pipeline outcomes and infrastructure failures.
const (
	CodeSemanticMiss        = "SEMANTIC_MISS"
	CodeValidationRejected  = "VALIDATION_REJECTED"
	CodeResourceExhausted   = "RESOURCE_EXHAUSTED"
	CodeExecutionFailed     = "EXECUTION_FAILED"
	CodeClarificationNeeded = "CLARIFICATION_NEEDED"
	CodeRetryExhausted      = "RETRY_EXHAUSTED"

	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeNotFound         = "NOT_FOUND"
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeDeadlineExceeded = "DEADLINE_EXCEEDED"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeUnavailable      = "UNAVAILABLE"
)

// PipelineError represents a pipeline error with code, message, and optional details.
type PipelineError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by code.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail adds a single detail to the error.
func (e *PipelineError) WithDetail(key string, value interface{}) *PipelineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Common errors
var (
	ErrSemanticMiss        = &PipelineError{Code: CodeSemanticMiss, Message: "no entity resolved against the schema"}
	ErrClarificationNeeded = &PipelineError{Code: CodeClarificationNeeded, Message: "intent confidence below floor, clarification needed"}
	ErrRetryExhausted      = &PipelineError{Code: CodeRetryExhausted, Message: "retry budget exhausted"}
	ErrResourceExhausted   = &PipelineError{Code: CodeResourceExhausted, Message: "connection pool exhausted"}
	ErrConnectionFailed    = &PipelineError{Code: CodeConnectionFailed, Message: "database connection failed"}
	ErrDeadlineExceeded    = &PipelineError{Code: CodeDeadlineExceeded, Message: "request deadline exceeded"}
	ErrBackendNotFound     = &PipelineError{Code: CodeNotFound, Message: "backend not registered"}
)

// New creates a new PipelineError with the given code and message.
func New(code, message string) *PipelineError {
	return &PipelineError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with a PipelineError.
func Wrap(err error, code, message string) *PipelineError {
	if err == nil {
		return nil
	}
	return &PipelineError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code, format string, args ...interface{}) *PipelineError {
	if err == nil {
		return nil
	}
	return &PipelineError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// GetCode extracts the error code from an error.
func GetCode(err error) string {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Code
	}
	return CodeInternal
}

// IsCode checks whether an error carries the given pipeline code.
func IsCode(err error, code string) bool {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Code == code
	}
	return false
}

// IsRetryable reports whether an execution error is worth another attempt.
// Resource exhaustion and permission failures are never retried; transient
// connectivity and timeout conditions are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch GetCode(err) {
	case CodeResourceExhausted, CodePermissionDenied, CodeValidationRejected,
		CodeClarificationNeeded, CodeSemanticMiss, CodeInvalidRequest:
		return false
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"network",
		"broken pipe",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
