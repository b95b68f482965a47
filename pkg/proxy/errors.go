package proxy

import "fmt"

// DuplicateEntryError is returned by Register when the deployment already has
// a proxy.
type DuplicateEntryError struct {
	Key Key
}

// Error implements the error interface.
func (e *DuplicateEntryError) Error() string {
	return fmt.Sprintf("proxy already registered [project=%s, deployment=%s]", e.Key.ProjectID, e.Key.DeploymentID)
}

// NewDuplicateEntryError creates a new DuplicateEntryError.
func NewDuplicateEntryError(key Key) *DuplicateEntryError {
	return &DuplicateEntryError{Key: key}
}

// PortInUseError is returned by Register when the listen port is held by
// another proxy or refused by the OS.
type PortInUseError struct {
	Port  int
	Owner *Key // set when another registered proxy owns the port
	Cause error
}

// Error implements the error interface.
func (e *PortInUseError) Error() string {
	if e.Owner != nil {
		return fmt.Sprintf("port %d in use by proxy [project=%s, deployment=%s]", e.Port, e.Owner.ProjectID, e.Owner.DeploymentID)
	}
	if e.Cause != nil {
		return fmt.Sprintf("port %d in use: %v", e.Port, e.Cause)
	}
	return fmt.Sprintf("port %d in use", e.Port)
}

// Unwrap returns the underlying cause error.
func (e *PortInUseError) Unwrap() error {
	return e.Cause
}

// NewPortInUseError creates a new PortInUseError.
func NewPortInUseError(port int, owner *Key, cause error) *PortInUseError {
	return &PortInUseError{Port: port, Owner: owner, Cause: cause}
}

// NotFoundError is returned when no proxy is registered for a deployment.
type NotFoundError struct {
	Key Key
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("proxy not found [project=%s, deployment=%s]", e.Key.ProjectID, e.Key.DeploymentID)
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(key Key) *NotFoundError {
	return &NotFoundError{Key: key}
}

// InvalidRequestError is returned by Register for malformed requests.
type InvalidRequestError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid register request: %s %s", e.Field, e.Message)
}

// NewInvalidRequestError creates a new InvalidRequestError.
func NewInvalidRequestError(field, message string) *InvalidRequestError {
	return &InvalidRequestError{Field: field, Message: message}
}
