// Package errors provides standardized error handling for the daemon.
// It defines the sentinel errors shared across the scheduler core, an
// error classification scheme, and helper functions for consistent
// error wrapping.
package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that callers may retry
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should abort startup
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Scheduler construction errors. These abort process startup.
	ErrUnknownOverride    = errors.New("override does not match a registered component")
	ErrDuplicateComponent = errors.New("component name already registered")
	ErrDependencyCycle    = errors.New("circular or unsatisfiable component dependencies")

	// Lookup errors. Unknown names are always fatal to the caller so that
	// typos are caught immediately rather than read as "not running".
	ErrUnknownComponent = errors.New("unknown component")
	ErrUnknownCondition = errors.New("unknown condition")

	// Gating errors
	ErrPreconditionNotMet = errors.New("precondition not met")

	// Component lifecycle errors
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrShuttingDown   = errors.New("component is shutting down")

	// Connection errors used by the built-in components
	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Classify returns the error class for an error. Unclassified errors
// default to transient so that callers are free to retry them.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}

	switch {
	case errors.Is(err, ErrUnknownComponent),
		errors.Is(err, ErrUnknownCondition),
		errors.Is(err, ErrPreconditionNotMet),
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrMissingConfig):
		return ErrorInvalid
	case errors.Is(err, ErrUnknownOverride),
		errors.Is(err, ErrDuplicateComponent),
		errors.Is(err, ErrDependencyCycle):
		return ErrorFatal
	}

	return ErrorTransient
}

// IsTransient checks if an error is transient and may be retried
func IsTransient(err error) bool {
	return err != nil && Classify(err) == ErrorTransient
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	return err != nil && Classify(err) == ErrorInvalid
}

// IsFatal checks if an error is fatal and should abort startup
func IsFatal(err error) bool {
	return err != nil && Classify(err) == ErrorFatal
}

// newClassified creates a new classified error.
// Internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}
