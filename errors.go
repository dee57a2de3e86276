package relgraph

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors, matched with errors.Is against the typed errors below.
var (
	// ErrNotFound is returned when an entity, relationship or row does not exist.
	ErrNotFound = errors.New("relgraph: not found")

	// ErrConfiguration is returned for model declarations that cannot be registered
	// or synthesized. These are fatal at startup.
	ErrConfiguration = errors.New("relgraph: invalid configuration")

	// ErrUnsupportedOperation is returned when a verb is not valid for a
	// relationship kind and has no fallback.
	ErrUnsupportedOperation = errors.New("relgraph: unsupported operation")

	// ErrHookAbort is returned when a before or after handler aborted an operation.
	ErrHookAbort = errors.New("relgraph: aborted by hook")

	// ErrNameCollision is returned when two distinct edges generate the same operation name.
	ErrNameCollision = errors.New("relgraph: operation name collision")

	// ErrDependencyUnsatisfiable marks a batch whose dependency sets cannot be ordered.
	ErrDependencyUnsatisfiable = errors.New("relgraph: unsatisfiable dependencies")
)

// NotFoundError represents an error when an entity, relationship or row is not found.
type NotFoundError struct {
	label string
	id    any // Optional: the ID that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("relgraph: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("relgraph: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the label of the missing item.
func (e *NotFoundError) Label() string {
	return e.label
}

// ID returns the ID that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given label.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// NewNotFoundErrorWithID returns a new NotFoundError with the ID that was searched for.
func NewNotFoundErrorWithID(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// ConfigurationError reports an invalid model declaration.
type ConfigurationError struct {
	Subject string // entity, edge or setting the error is about
	Message string
	Cause   error
}

// Error returns the error string.
func (e *ConfigurationError) Error() string {
	var sb strings.Builder
	sb.WriteString("relgraph: configuration error")
	if e.Subject != "" {
		sb.WriteString(" in ")
		sb.WriteString(e.Subject)
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target error matches ConfigurationError.
func (e *ConfigurationError) Is(err error) bool {
	return err == ErrConfiguration
}

// NewConfigurationError returns a new ConfigurationError with a formatted message.
func NewConfigurationError(subject, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// IsConfigurationError returns true if the error is a ConfigurationError.
// Name collisions are configuration errors too.
func IsConfigurationError(err error) bool {
	return err != nil && errors.Is(err, ErrConfiguration)
}

// UnsupportedOperationError is returned when a verb is not valid for a relationship.
type UnsupportedOperationError struct {
	Verb   string
	Source string
	Target string
	Alias  string
	Kind   string
}

// Error returns the error string.
func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("relgraph: operation %q not supported on %s relationship %s -> %s (as %s)",
		e.Verb, e.Kind, e.Source, e.Target, e.Alias)
}

// Is reports whether the target error matches UnsupportedOperationError.
func (e *UnsupportedOperationError) Is(err error) bool {
	return err == ErrUnsupportedOperation
}

// IsUnsupportedOperation returns true if the error is an UnsupportedOperationError.
func IsUnsupportedOperation(err error) bool {
	return err != nil && errors.Is(err, ErrUnsupportedOperation)
}

// HookAbortError is returned when a handler aborted an operation. For a
// before-phase abort the underlying operation never ran; for an after-phase
// abort it already ran and was not undone.
type HookAbortError struct {
	Event  string // e.g. "BeforeCreate"
	Entity string
	Reason error
}

// Error returns the error string.
func (e *HookAbortError) Error() string {
	if e.Reason == nil {
		return fmt.Sprintf("relgraph: %s on %s aborted by hook", e.Event, e.Entity)
	}
	return fmt.Sprintf("relgraph: %s on %s aborted by hook: %v", e.Event, e.Entity, e.Reason)
}

// Unwrap returns the handler's reason.
func (e *HookAbortError) Unwrap() error {
	return e.Reason
}

// Is reports whether the target error matches HookAbortError.
func (e *HookAbortError) Is(err error) bool {
	return err == ErrHookAbort
}

// IsHookAbort returns true if the error is a HookAbortError.
func IsHookAbort(err error) bool {
	if err == nil {
		return false
	}
	var e *HookAbortError
	return errors.As(err, &e)
}

// NameCollisionError is returned when two distinct operations share a generated name.
type NameCollisionError struct {
	Name   string
	First  string // description of the operation registered first
	Second string // description of the colliding operation
}

// Error returns the error string.
func (e *NameCollisionError) Error() string {
	return fmt.Sprintf("relgraph: operation name %q generated by both %s and %s", e.Name, e.First, e.Second)
}

// Is reports whether the target error matches NameCollisionError. A name
// collision is also a configuration error.
func (e *NameCollisionError) Is(err error) bool {
	return err == ErrNameCollision || err == ErrConfiguration
}

// IsNameCollision returns true if the error is a NameCollisionError.
func IsNameCollision(err error) bool {
	if err == nil {
		return false
	}
	var e *NameCollisionError
	return errors.As(err, &e)
}

// DependencyError describes dependency sets that could not be ordered.
// The loader logs it as a warning unless strict ordering is enabled.
type DependencyError struct {
	Sets []string // "entity[dep1,dep2]" for every unplaced set
}

// Error returns the error string.
func (e *DependencyError) Error() string {
	return fmt.Sprintf("relgraph: could not meet dependencies for %s (possible circular condition)",
		strings.Join(e.Sets, ", "))
}

// Is reports whether the target error matches DependencyError.
func (e *DependencyError) Is(err error) bool {
	return err == ErrDependencyUnsatisfiable
}

// QueryError wraps a query error with additional context.
type QueryError struct {
	Entity string // Entity being queried
	Op     string // Operation (e.g., "select", "count", "raw")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("relgraph: querying %s (%s): %v", e.Entity, e.Op, e.Err)
	}
	return fmt.Sprintf("relgraph: querying %s: %v", e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(entity, op string, err error) *QueryError {
	return &QueryError{Entity: entity, Op: op, Err: err}
}

// MutationError wraps a mutation error with additional context.
type MutationError struct {
	Entity string // Entity being mutated
	Op     string // Operation (e.g., "insert", "update", "delete")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("relgraph: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError returns a new MutationError.
func NewMutationError(entity, op string, err error) *MutationError {
	return &MutationError{Entity: entity, Op: op, Err: err}
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MutationError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Original error that triggered rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("relgraph: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}
