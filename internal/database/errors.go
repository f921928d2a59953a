package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Standard gateway errors
var (
	// ErrConnectionFailed is returned when a connection attempt fails
	ErrConnectionFailed = errors.New("connection failed")

	// ErrConnectionClosed is returned when attempting to use a closed connection
	ErrConnectionClosed = errors.New("connection is closed")

	// ErrInvalidConfiguration is returned when connection parameters are bad or missing
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrQueryRejected is returned when the validator refuses a statement
	ErrQueryRejected = errors.New("query rejected by validator")

	// ErrQueryFailed is returned when validated SQL fails at the engine
	ErrQueryFailed = errors.New("query execution failed")

	// ErrTimeout is returned when a command exceeds its deadline
	ErrTimeout = errors.New("command timed out")

	// ErrInvalidIdentifier is returned when an identifier contains disallowed characters
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrAdapterNotFound is returned when no adapter is registered for an engine
	ErrAdapterNotFound = errors.New("adapter not found")

	// ErrConnectionNotFound is returned when a named connection does not exist
	ErrConnectionNotFound = errors.New("named connection not found")

	// ErrAmbiguousConnection is returned when no connection name is given and
	// more than one is configured
	ErrAmbiguousConnection = errors.New("connection name is ambiguous")

	// ErrNotInitialized is returned when a tool runs before any
	// connection is configured
	ErrNotInitialized = errors.New("gateway not initialized")
)

// ConfigurationError is returned when a descriptor or config field is
// bad or missing. Field names the first offending field.
type ConfigurationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid configuration: field '%s': %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}

// Is checks if the error is ErrInvalidConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return errors.Is(target, ErrInvalidConfiguration)
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

// ConnectionError is returned when the gateway cannot reach or
// authenticate to a server. The message carries engine, host and port
// only; credentials and descriptor strings stay out of it.
type ConnectionError struct {
	Engine Engine
	Host   string
	Port   int
	Cause  error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s at %s:%d: %v", e.Engine, e.Host, e.Port, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is ErrConnectionFailed.
func (e *ConnectionError) Is(target error) bool {
	if errors.Is(target, ErrConnectionFailed) {
		return true
	}
	return errors.Is(e.Cause, target)
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(engine Engine, host string, port int, cause error) *ConnectionError {
	return &ConnectionError{Engine: engine, Host: host, Port: port, Cause: cause}
}

// ValidationError is returned when the validator rejects a statement.
// Violations holds every rule the statement broke, in check order.
type ValidationError struct {
	Violations []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("query validation failed: %s", strings.Join(e.Violations, "; "))
}

// Is checks if the error is ErrQueryRejected.
func (e *ValidationError) Is(target error) bool {
	return errors.Is(target, ErrQueryRejected)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(violations []string) *ValidationError {
	return &ValidationError{Violations: violations}
}

// ExecutionError wraps an engine-level failure of validated SQL with
// the engine and operation that produced it.
type ExecutionError struct {
	Engine    Engine
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Engine, e.Operation, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error.
func (e *ExecutionError) Is(target error) bool {
	if errors.Is(target, ErrQueryFailed) {
		return true
	}
	return errors.Is(e.Cause, target)
}

// NewExecutionError creates a new ExecutionError.
func NewExecutionError(engine Engine, operation string, cause error) *ExecutionError {
	return &ExecutionError{Engine: engine, Operation: operation, Cause: cause}
}

// TimeoutError is returned when a command exceeds its configured deadline.
type TimeoutError struct {
	Engine    Engine
	Operation string
	Timeout   time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("[%s] %s timed out after %s", e.Engine, e.Operation, e.Timeout)
	}
	return fmt.Sprintf("[%s] %s timed out", e.Engine, e.Operation)
}

// Is checks if the error is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return errors.Is(target, ErrTimeout)
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(engine Engine, operation string, timeout time.Duration) *TimeoutError {
	return &TimeoutError{Engine: engine, Operation: operation, Timeout: timeout}
}

// WrapError wraps an engine-level error with operation context.
// Deadline-flavored causes become TimeoutError carrying the configured
// timeout; everything else becomes ExecutionError. Already-wrapped
// errors are returned as-is.
func WrapError(engine Engine, operation string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}

	// Don't double-wrap
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return err
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(engine, operation, timeout)
	}

	return NewExecutionError(engine, operation, err)
}

// IsConnectionError checks if an error is a connection error.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnectionFailed)
}

// IsConfigurationError checks if an error is a configuration error.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsValidationError checks if an error is a validator rejection.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrQueryRejected)
}
