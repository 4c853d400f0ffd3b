package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for gateway failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrEnvNotFound indicates the named environment does not exist.
	ErrEnvNotFound = errors.New("env not found")

	// ErrKeyNotFound indicates the requested key is absent from the store.
	ErrKeyNotFound = errors.New("key not found")

	// ErrAccessDenied indicates the credential lacks permission on the resource.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvocation indicates a callable raised during execution.
	ErrInvocation = errors.New("invocation failed")

	// ErrCancelled indicates cancellation was requested for the call.
	ErrCancelled = errors.New("cancellation requested")

	// ErrTimeout indicates a bounded wait elapsed. Internal coordination
	// only; never surfaces to clients as a failure.
	ErrTimeout = errors.New("operation timed out")
)

// Error wraps an underlying error with gateway classification.
// It preserves the original error in the chain for inspection via errors.As.
type Error struct {
	// Kind is the sentinel error for classification (e.g., ErrKeyNotFound).
	Kind error
	// Op is the operation that failed (e.g., "get", "call", "cancel").
	Op string
	// Resource is the key or environment name involved, if any.
	Resource string
	// Traceback is the captured failure detail for invocation errors.
	Traceback string
	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Resource != "":
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Resource, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Resource != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Resource, e.Kind)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// NewError creates a classified gateway error.
func NewError(kind error, op, resource string, err error) *Error {
	return &Error{
		Kind:     kind,
		Op:       op,
		Resource: resource,
		Err:      err,
	}
}

// EnvNotFound reports that the named environment does not exist.
func EnvNotFound(op, env string) error {
	return NewError(ErrEnvNotFound, op, env, nil)
}

// KeyNotFound reports that the key is absent from the store.
func KeyNotFound(op, key string) error {
	return NewError(ErrKeyNotFound, op, key, nil)
}

// AccessDenied reports a permission failure on the resource.
func AccessDenied(op, resource string) error {
	return NewError(ErrAccessDenied, op, resource, nil)
}

// InvocationFailure wraps a callable error, carrying its traceback.
// Returns nil if err is nil.
func InvocationFailure(key string, err error, traceback string) error {
	if err == nil {
		return nil
	}
	e := NewError(ErrInvocation, "call", key, err)
	e.Traceback = traceback
	return e
}

// Cancelled reports that cancellation was requested for the key.
func Cancelled(key string) error {
	return NewError(ErrCancelled, "call", key, nil)
}

// Timeout reports that a bounded wait elapsed for op.
func Timeout(op string) error {
	return NewError(ErrTimeout, op, "", nil)
}

// AsError extracts a classified *Error from the chain.
func AsError(err error, target **Error) bool {
	return errors.As(err, target)
}

// IsNotFound reports whether err is any not-found classification.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound) || errors.Is(err, ErrEnvNotFound)
}
