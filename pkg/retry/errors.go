package retry

import (
	"errors"
	"fmt"
)

// Sentinel errors for the orchestrator failure taxonomy.
var (
	// ErrValidation marks missing or malformed input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrAuth marks a 401/403-equivalent failure. Never retried and
	// reported distinctly from connectivity problems.
	ErrAuth = errors.New("authentication failed")

	// ErrTransient marks timeouts, rate limits and 5xx-equivalents.
	// Retried per policy.
	ErrTransient = errors.New("transient failure")

	// ErrStore marks a state persistence failure. The evaluation outcome
	// is undetermined: the write is never assumed to have succeeded and
	// the entity is re-evaluated on the next run.
	ErrStore = errors.New("state store failure")
)

// AuthError wraps ErrAuth with the failing endpoint for context.
type AuthError struct {
	Endpoint string
	Cause    error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("auth rejected by %s: %v", e.Endpoint, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *AuthError) Unwrap() error { return e.Cause }

// Is checks if the error matches ErrAuth.
func (e *AuthError) Is(target error) bool { return target == ErrAuth }

// TransientError wraps ErrTransient with the failing operation.
type TransientError struct {
	Op    string
	Cause error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *TransientError) Unwrap() error { return e.Cause }

// Is checks if the error matches ErrTransient.
func (e *TransientError) Is(target error) bool { return target == ErrTransient }

// StoreError wraps ErrStore with the entity whose state write failed.
type StoreError struct {
	EntityID int
	Cause    error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("state write for entity %d failed: %v", e.EntityID, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *StoreError) Unwrap() error { return e.Cause }

// Is checks if the error matches ErrStore.
func (e *StoreError) Is(target error) bool { return target == ErrStore }

// ValidationError wraps ErrValidation with the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is checks if the error matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
