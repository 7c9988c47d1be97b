package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineErrorError(t *testing.T) {
	testCases := []struct {
		name     string
		err      *PipelineError
		contains []string
	}{
		{
			name: "code and message",
			err: &PipelineError{
				Type:    ErrorTypeConfig,
				Code:    ErrCodeConfigInvalid,
				Message: "workers must be positive",
			},
			contains: []string{"[ERR_CONFIG_INVALID]", "workers must be positive"},
		},
		{
			name: "with component",
			err: &PipelineError{
				Type:      ErrorTypeInternal,
				Code:      ErrCodeInternalError,
				Message:   "state corrupted",
				Component: "dispatcher",
			},
			contains: []string{"component:dispatcher", "state corrupted"},
		},
		{
			name: "with cause",
			err: &PipelineError{
				Type:    ErrorTypeIO,
				Code:    "ERR_READ",
				Message: "cannot read payload",
				Cause:   errors.New("permission denied"),
			},
			contains: []string{"cannot read payload", "permission denied"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg := tc.err.Error()
			for _, want := range tc.contains {
				assert.Contains(t, msg, want)
			}
		})
	}
}

func TestPipelineErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewInternalError(ErrCodeInternalError, "wrapper", cause)

	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestPipelineErrorIs(t *testing.T) {
	err := NewConfigError(ErrCodeNoWorkers, "no workers configured")

	assert.True(t, errors.Is(err, ErrNoWorkers))
	assert.False(t, errors.Is(err, ErrNegativeCapacity))
	assert.False(t, errors.Is(err, errors.New("no workers configured")))
}

func TestSentinelsMatchThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("submit rejected: %w", ErrClosed)

	assert.True(t, errors.Is(wrapped, ErrClosed))
	assert.False(t, errors.Is(wrapped, ErrQueueFull))
}

func TestConstructorsSetTypeAndRecoverability(t *testing.T) {
	testCases := []struct {
		name        string
		err         *PipelineError
		wantType    ErrorType
		recoverable bool
	}{
		{"config", NewConfigError("C", "m"), ErrorTypeConfig, false},
		{"task", NewTaskFailure("T", "m", nil), ErrorTypeTask, true},
		{"protocol", NewProtocolError("P", "m"), ErrorTypeProtocol, false},
		{"watch", NewWatchError("W", "m", nil), ErrorTypeWatch, true},
		{"io", NewIOError("I", "m", nil), ErrorTypeIO, false},
		{"internal", NewInternalError("X", "m", nil), ErrorTypeInternal, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantType, tc.err.Type)
			assert.Equal(t, tc.recoverable, tc.err.Recoverable)
			assert.Equal(t, tc.recoverable, IsRecoverable(tc.err))
		})
	}
}

func TestIsRecoverableGenericError(t *testing.T) {
	assert.False(t, IsRecoverable(errors.New("plain")))
	assert.False(t, IsRecoverable(nil))
}

func TestIsProtocolError(t *testing.T) {
	assert.True(t, IsProtocolError(ErrClosed))
	assert.True(t, IsProtocolError(fmt.Errorf("wrapped: %w", ErrQueueFull)))
	assert.False(t, IsProtocolError(ErrNoWorkers))
	assert.False(t, IsProtocolError(errors.New("plain")))
}

func TestIsConfigError(t *testing.T) {
	assert.True(t, IsConfigError(ErrNoWorkers))
	assert.True(t, IsConfigError(ErrNegativeCapacity))
	assert.False(t, IsConfigError(ErrClosed))
}

func TestWithContext(t *testing.T) {
	err := NewConfigError(ErrCodeConfigInvalid, "bad value").
		WithContext("field", "workers").
		WithContext("value", -1)

	require.NotNil(t, err.Context)
	assert.Equal(t, "workers", err.Context["field"])
	assert.Equal(t, -1, err.Context["value"])
}

func TestWithComponent(t *testing.T) {
	err := NewWatchError("W", "watch failed", nil).WithComponent("watcher")

	assert.Equal(t, "watcher", err.Component)
	assert.Contains(t, err.Error(), "component:watcher")
}

func TestErrPathHelpers(t *testing.T) {
	assert.Contains(t, ErrInvalidPath("///").Error(), "///")
	assert.Equal(t, ErrorTypeConfig, ErrPathTraversal("../x").Type)
}
