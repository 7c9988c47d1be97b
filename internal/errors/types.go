package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeTask     ErrorType = "task"
	ErrorTypeProtocol ErrorType = "protocol"
	ErrorTypeWatch    ErrorType = "watch"
	ErrorTypeIO       ErrorType = "io"
	ErrorTypeInternal ErrorType = "internal"
)

// PipelineError is a structured error type with context.
type PipelineError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	Recoverable bool
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithComponent adds component context.
func (e *PipelineError) WithComponent(component string) *PipelineError {
	e.Component = component

	return e
}

// Error creation functions

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewTaskFailure creates a task-level error. Task failures are recoverable:
// the pipeline converts them into failure results and keeps running.
func NewTaskFailure(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeTask,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewProtocolError creates a channel-protocol error. Protocol violations are
// never recoverable; they indicate a programming error in the caller.
func NewProtocolError(code, message string) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeProtocol,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewWatchError creates a file-watch error.
func NewWatchError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeWatch,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// Error recovery and handling utilities

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Recoverable
	}

	return false
}

// IsProtocolError checks if an error is a channel-protocol violation.
func IsProtocolError(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type == ErrorTypeProtocol
	}

	return false
}

// IsConfigError checks if an error is configuration-related.
func IsConfigError(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type == ErrorTypeConfig
	}

	return false
}

// Common error codes.
const (
	ErrCodeNoWorkers        = "ERR_NO_WORKERS"
	ErrCodeNegativeCapacity = "ERR_NEGATIVE_CAPACITY"
	ErrCodeNilWork          = "ERR_NIL_WORK"
	ErrCodeClosed           = "ERR_CLOSED"
	ErrCodeQueueFull        = "ERR_QUEUE_FULL"
	ErrCodeNotStarted       = "ERR_NOT_STARTED"
	ErrCodeAlreadyStarted   = "ERR_ALREADY_STARTED"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeInvalidPath      = "ERR_INVALID_PATH"
	ErrCodePathTraversal    = "ERR_PATH_TRAVERSAL"
	ErrCodeWorkPanic        = "ERR_WORK_PANIC"
	ErrCodeInternalError    = "ERR_INTERNAL"
)

// Sentinel errors for dispatcher lifecycle and configuration. Callers match
// them with errors.Is; PipelineError.Is compares on Type and Code, so wrapped
// copies still match.
var (
	// ErrNoWorkers is returned when a dispatcher is created with a worker
	// count below one.
	ErrNoWorkers = NewConfigError(ErrCodeNoWorkers, "worker count must be at least 1")

	// ErrNegativeCapacity is returned when a bounded queue capacity is
	// negative.
	ErrNegativeCapacity = NewConfigError(ErrCodeNegativeCapacity, "queue capacity must not be negative")

	// ErrNilWork is returned when a dispatcher is created without a work
	// function.
	ErrNilWork = NewConfigError(ErrCodeNilWork, "work function must not be nil")

	// ErrClosed is returned when submitting to a dispatcher after Close.
	ErrClosed = NewProtocolError(ErrCodeClosed, "dispatcher is closed")

	// ErrQueueFull is returned by non-blocking submits when the bounded
	// task queue is at capacity.
	ErrQueueFull = NewProtocolError(ErrCodeQueueFull, "task queue is full")

	// ErrNotStarted is returned when submitting to a dispatcher before
	// Start.
	ErrNotStarted = NewProtocolError(ErrCodeNotStarted, "dispatcher is not started")

	// ErrAlreadyStarted is returned when starting a dispatcher twice.
	ErrAlreadyStarted = NewProtocolError(ErrCodeAlreadyStarted, "dispatcher is already started")
)

// Helper functions for common errors

// ErrInvalidPath creates a path validation error.
func ErrInvalidPath(path string) *PipelineError {
	return NewConfigError(ErrCodeInvalidPath, "invalid path: "+path)
}

// ErrPathTraversal creates a path traversal error.
func ErrPathTraversal(path string) *PipelineError {
	return NewConfigError(ErrCodePathTraversal, "path traversal attempt: "+path)
}
