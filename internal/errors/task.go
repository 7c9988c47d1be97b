package errors

import (
	"errors"
	"fmt"
)

// TaskError wraps a work-function failure with the id of the task that
// produced it. It is the error carried inside a failure result, so sinks can
// always recover the task id even after further wrapping.
type TaskError struct {
	TaskID int
	Err    error
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d failed: %v", e.TaskID, e.Err)
}

// Unwrap returns the underlying failure.
func (e *TaskError) Unwrap() error {
	return e.Err
}

// NewTaskError wraps err with the failing task's id.
func NewTaskError(taskID int, err error) *TaskError {
	return &TaskError{TaskID: taskID, Err: err}
}

// IsTaskError reports whether err carries task context.
func IsTaskError(err error) bool {
	var te *TaskError

	return errors.As(err, &te)
}

// TaskIDOf extracts the task id from err if it is a TaskError.
func TaskIDOf(err error) (int, bool) {
	var te *TaskError
	if errors.As(err, &te) {
		return te.TaskID, true
	}

	return 0, false
}

// PanicError records a panic recovered at the worker boundary. The panic is
// converted into an ordinary failure result; the pool keeps running.
type PanicError struct {
	Value interface{}
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("work function panicked: %v", e.Value)
}

// NewPanicError captures a recovered panic value and stack.
func NewPanicError(value interface{}, stack []byte) *PanicError {
	return &PanicError{Value: value, Stack: stack}
}

// IsPanic reports whether err originated from a recovered panic.
func IsPanic(err error) bool {
	var pe *PanicError

	return errors.As(err, &pe)
}
