// Package errors provides standardized error handling patterns for the service runtime.
//
// # Overview
//
// The package implements a three-class error classification system: Transient
// (temporary, retryable), Invalid (bad input, non-retryable), and Fatal (unrecoverable).
// Every failure the runtime reports to a caller is one of the standard error variables
// below, wrapped with context, so callers branch with errors.Is instead of matching strings.
//
// # Runtime Taxonomy
//
//   - ErrIllegalTransition: an action is not legal from the service's current state
//   - ErrUnknownAction: the action is not in the service's action table
//   - ErrTransitionTimeout: a lifecycle hook did not settle in time
//   - ErrFactoryTimeout: no factory for a requested type was registered within the wait window
//   - ErrUnresolvedEndpoint: an out endpoint has no real connection after validation
//   - ErrUnknownService / ErrUnknownCommand: administrative input errors
//
// Configuration calls report rejected attributes individually through AttributeErrors
// instead of failing the whole call.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")  // For retryable errors
//	errors.WrapInvalid(err, "Component", "Method", "action")    // For validation errors
//	errors.WrapFatal(err, "Component", "Method", "action")      // For unrecoverable errors
//
// The generic Wrap() function preserves the original error's classification:
//
//	errors.Wrap(err, "Component", "Method", "action")
//
// # Classification
//
// An explicit WrapTransient, WrapInvalid or WrapFatal wins. Otherwise the
// standard variables carry a fixed class (ErrIllegalTransition is invalid,
// ErrFactoryTimeout transient, ErrMissingConfig fatal) and foreign errors are
// matched by message as a last resort.
//
// Lifecycle transitions are never retried automatically; a timed out transition fails once
// and leaves the service in its rejected state.
package errors
