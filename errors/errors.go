// Package errors provides standardized error handling for the service runtime.
// It includes error classification, the runtime's standard error variables, and
// helper functions for consistent error wrapping across packages.
package errors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
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
	// Lifecycle errors
	ErrUnknownAction     = errors.New("unknown action")
	ErrIllegalTransition = errors.New("illegal transition")
	ErrTransitionTimeout = errors.New("transition timeout")

	// Registry and resolution errors
	ErrUnknownService     = errors.New("unknown service")
	ErrUnknownFactory     = errors.New("unknown service factory")
	ErrUnknownInterceptor = errors.New("unknown interceptor factory")
	ErrFactoryTimeout     = errors.New("factory wait timeout")
	ErrUnresolvedEndpoint = errors.New("unresolved endpoint")
	ErrInvalidTarget      = errors.New("invalid endpoint target")

	// Endpoint traffic errors
	ErrEndpointClosed = errors.New("endpoint closed")
	ErrNoConnection   = errors.New("no connection available")
	ErrNotReceiving   = errors.New("endpoint does not receive")

	// Administrative boundary errors
	ErrUnknownCommand = errors.New("unknown command")

	// Connection and networking errors
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")

	// Configuration errors
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrMissingConfig  = errors.New("missing required configuration")
	ErrConfigNotFound = errors.New("configuration not found")
	ErrInvalidData    = errors.New("invalid data format")
	ErrParsingFailed  = errors.New("parsing failed")

	// Resource errors
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrRateLimited       = errors.New("rate limited")
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

// AttributeErrors reports the attributes a configuration call rejected.
// Attributes that are absent from the map were applied.
type AttributeErrors map[string]error

// Error lists the rejected attributes in name order
func (ae AttributeErrors) Error() string {
	names := ae.Names()
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, ae[name]))
	}
	return "rejected attributes: " + strings.Join(parts, "; ")
}

// Names returns the rejected attribute names sorted
func (ae AttributeErrors) Names() []string {
	names := make([]string, 0, len(ae))
	for name := range ae {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unwrap exposes the individual attribute errors to errors.Is and errors.As
func (ae AttributeErrors) Unwrap() []error {
	errs := make([]error, 0, len(ae))
	for _, name := range ae.Names() {
		errs = append(errs, ae[name])
	}
	return errs
}

// OrNil returns nil when no attribute was rejected
func (ae AttributeErrors) OrNil() error {
	if len(ae) == 0 {
		return nil
	}
	return ae
}

// sentinelClass classifies the standard errors when they arrive unwrapped
// by a ClassifiedError
var sentinelClass = []struct {
	err   error
	class ErrorClass
}{
	{ErrConnectionTimeout, ErrorTransient},
	{ErrConnectionLost, ErrorTransient},
	{ErrRateLimited, ErrorTransient},
	{ErrFactoryTimeout, ErrorTransient},
	{ErrTransitionTimeout, ErrorTransient},
	{context.DeadlineExceeded, ErrorTransient},
	{context.Canceled, ErrorTransient},

	{ErrInvalidData, ErrorInvalid},
	{ErrParsingFailed, ErrorInvalid},
	{ErrIllegalTransition, ErrorInvalid},
	{ErrUnknownAction, ErrorInvalid},
	{ErrUnknownService, ErrorInvalid},
	{ErrUnknownCommand, ErrorInvalid},
	{ErrInvalidTarget, ErrorInvalid},

	{ErrInvalidConfig, ErrorFatal},
	{ErrMissingConfig, ErrorFatal},
	{ErrResourceExhausted, ErrorFatal},
}

// Message fragments used as a last resort for foreign errors
var (
	transientPatterns = []string{"timeout", "connection", "network", "temporary", "unavailable", "busy"}
	fatalPatterns     = []string{"fatal", "panic", "invalid config", "missing config", "out of memory"}
)

// hasClass reports whether err carries class. An explicit classification
// wins over sentinels, sentinels win over message patterns.
func hasClass(err error, class ErrorClass) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == class
	}

	for _, s := range sentinelClass {
		if s.class == class && errors.Is(err, s.err) {
			return true
		}
	}

	switch class {
	case ErrorInvalid:
		var ae AttributeErrors
		return errors.As(err, &ae)
	case ErrorTransient:
		return matchesAny(err, transientPatterns)
	default:
		return matchesAny(err, fatalPatterns)
	}
}

func matchesAny(err error, patterns []string) bool {
	msg := strings.ToLower(err.Error())
	for _, pattern := range patterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// IsTransient checks if an error is transient and may be retried
func IsTransient(err error) bool {
	return hasClass(err, ErrorTransient)
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	return hasClass(err, ErrorFatal)
}

// IsInvalid checks if an error is due to invalid input or an illegal request
func IsInvalid(err error) bool {
	return hasClass(err, ErrorInvalid)
}

// Classify returns the error class for an error. Invalid is checked first so
// a rejected request is never retried; unknown errors count as transient.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ErrorTransient
	case IsInvalid(err):
		return ErrorInvalid
	case IsTransient(err):
		return ErrorTransient
	case IsFatal(err):
		return ErrorFatal
	}
	return ErrorTransient
}

// newClassified creates a new classified error.
// Use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
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
