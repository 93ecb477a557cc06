package domain

import "fmt"

// Error types for consistent error handling across the portal.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrConflict indicates the requested dates collide with existing reservations.
type ErrConflict struct {
	Message   string
	Conflicts []Conflict
}

func (e *ErrConflict) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%d conflicting reservation(s)", len(e.Conflicts))
}

// ErrImport indicates the uploaded file cannot be processed at all.
// Row-level problems are reported as ParseWarning instead.
type ErrImport struct {
	Reason string
	Err    error
}

func (e *ErrImport) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("import failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("import failed: %s", e.Reason)
}

func (e *ErrImport) Unwrap() error {
	return e.Err
}

// ErrInvalidTransition indicates a statement lifecycle move that is not allowed.
type ErrInvalidTransition struct {
	From   StatementStatus
	Action string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot %s a statement in status %s", e.Action, e.From)
}
