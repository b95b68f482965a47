package requestlog

import "fmt"

// PersistenceError represents a failure of the storage backend.
type PersistenceError struct {
	Backend   string // "sqlite", "postgres", "memory"
	Operation string // "append", "list", "delete", ...
	Cause     error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(backend, operation string, cause error) *PersistenceError {
	return &PersistenceError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// RecorderError represents an entry that could not be queued for writing.
type RecorderError struct {
	ProjectID    string
	DeploymentID string
	Cause        error
}

// Error implements the error interface.
func (e *RecorderError) Error() string {
	return fmt.Sprintf("recorder error [project=%s, deployment=%s]: %v", e.ProjectID, e.DeploymentID, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *RecorderError) Unwrap() error {
	return e.Cause
}

// NewRecorderError creates a new RecorderError.
func NewRecorderError(projectID, deploymentID string, cause error) *RecorderError {
	return &RecorderError{
		ProjectID:    projectID,
		DeploymentID: deploymentID,
		Cause:        cause,
	}
}

// RetentionError represents an error during retention pruning.
type RetentionError struct {
	Phase string // "age" or "count"
	Cause error
}

// Error implements the error interface.
func (e *RetentionError) Error() string {
	return fmt.Sprintf("retention error [phase=%s]: %v", e.Phase, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *RetentionError) Unwrap() error {
	return e.Cause
}

// NewRetentionError creates a new RetentionError.
func NewRetentionError(phase string, cause error) *RetentionError {
	return &RetentionError{
		Phase: phase,
		Cause: cause,
	}
}
