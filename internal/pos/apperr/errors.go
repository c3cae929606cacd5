package apperr

import "fmt"

// ValidationError reports malformed input. Nothing was mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StateError reports an operation that is illegal for the entity's current
// status. Nothing was mutated.
type StateError struct {
	Entity string
	Status string
	Op     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state: cannot %s %s in status %q", e.Op, e.Entity, e.Status)
}

func State(entity, status, op string) error {
	return &StateError{Entity: entity, Status: status, Op: op}
}

// ConflictError reports a concurrent-modification version mismatch. The caller
// should reload the aggregate and retry the whole operation.
type ConflictError struct {
	Entity string
	ID     uint
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s %d was modified concurrently", e.Entity, e.ID)
}

func Conflict(entity string, id uint) error {
	return &ConflictError{Entity: entity, ID: id}
}

// ExternalDependencyError wraps a failure in a collaborator (catalog,
// inventory, card gateway, broker).
type ExternalDependencyError struct {
	Dependency string
	Err        error
}

func (e *ExternalDependencyError) Error() string {
	return fmt.Sprintf("external: %s: %v", e.Dependency, e.Err)
}

func (e *ExternalDependencyError) Unwrap() error { return e.Err }

func External(dependency string, err error) error {
	return &ExternalDependencyError{Dependency: dependency, Err: err}
}

// NotFoundError reports an unknown order/item/table reference.
type NotFoundError struct {
	Entity string
	ID     uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s %d", e.Entity, e.ID)
}

func NotFound(entity string, id uint) error {
	return &NotFoundError{Entity: entity, ID: id}
}
