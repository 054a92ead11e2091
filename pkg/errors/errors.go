// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for Concierge.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies Concierge errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeConfiguration indicates a required setting is missing or invalid.
	// Configuration errors abort process startup.
	CodeConfiguration ErrorCode = "CONFIGURATION_ERROR"

	// CodeConnection indicates a capability session could not be established.
	// Fatal to the affected capability only.
	CodeConnection ErrorCode = "CONNECTION_ERROR"

	// CodeInvalidArgument indicates tool arguments failed schema validation.
	CodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// CodeBackend indicates a remote call failed or returned a malformed response.
	CodeBackend ErrorCode = "BACKEND_ERROR"

	// CodeTimeout indicates an operation exceeded its deadline.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeToolNotFound indicates a tool name is not present in the registry.
	CodeToolNotFound ErrorCode = "TOOL_NOT_FOUND"

	// CodeDuplicateTool indicates two capabilities derived the same tool name.
	// Fatal at startup.
	CodeDuplicateTool ErrorCode = "DUPLICATE_TOOL"

	// CodeDecision indicates the decision procedure failed.
	CodeDecision ErrorCode = "DECISION_ERROR"
)

// ConciergeError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type ConciergeError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int
}

// Error implements the error interface.
func (e *ConciergeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *ConciergeError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *ConciergeError) MarshalJSON() ([]byte, error) {
	type Alias ConciergeError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new ConciergeError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *ConciergeError {
	return &ConciergeError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
		StatusCode: codeToStatusCode(code),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *ConciergeError) WithContext(key string, value interface{}) *ConciergeError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *ConciergeError) WithAttribute(key, value string) *ConciergeError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *ConciergeError) WithRecoverable(recoverable bool) *ConciergeError {
	e.Recoverable = recoverable
	return e
}

// AsConciergeError attempts to convert an error to a ConciergeError.
// Returns the error as ConciergeError if it is one, or wraps it otherwise.
func AsConciergeError(err error) *ConciergeError {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*ConciergeError); ok {
		return ce
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the error code of err, or CodeInternal for untyped errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if ce, ok := err.(*ConciergeError); ok {
		return ce.Code
	}
	return CodeInternal
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *ConciergeError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// codeToStatusCode maps error codes to HTTP-ish status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeToolNotFound:
		return 404
	case CodeInvalidArgument, CodeConfiguration, CodeDuplicateTool:
		return 400
	case CodeTimeout:
		return 408
	case CodeBackend, CodeConnection:
		return 502
	default:
		return 500
	}
}
