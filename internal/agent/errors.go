package agent

import (
	"errors"
	"fmt"
)

// ErrRuntimeUnreachable is returned (wrapped) by a container runtime whose
// daemon could not be queried at all. It is distinct from a reachable runtime
// that reports zero containers.
var ErrRuntimeUnreachable = errors.New("container runtime unreachable")

// ErrInvalidCommand marks a malformed or unknown observer command.
var ErrInvalidCommand = errors.New("invalid command")

// OperationError reports a failed start/stop/restart/create/logs call against
// the runtime. It is surfaced to the observer that issued the command and
// nowhere else.
type OperationError struct {
	// Op is the runtime operation, e.g. "stop" or "create".
	Op string

	// ContainerID is the target container, empty for create.
	ContainerID string

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface for OperationError.
func (e *OperationError) Error() string {
	if e.ContainerID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ContainerID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// NewOperationError creates an OperationError.
func NewOperationError(op, containerID string, err error) *OperationError {
	return &OperationError{Op: op, ContainerID: containerID, Err: err}
}

// IsOperationError reports whether err is or wraps an OperationError.
func IsOperationError(err error) bool {
	var opErr *OperationError
	return errors.As(err, &opErr)
}

// RepositoryError wraps a persistence failure. A reconciliation cycle that hits
// one is abandoned and retried on the next period.
type RepositoryError struct {
	Op  string
	Err error
}

// Error implements the error interface for RepositoryError.
func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// NewRepositoryError wraps err, returning nil when err is nil.
func NewRepositoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RepositoryError{Op: op, Err: err}
}

// IsRepositoryError reports whether err is or wraps a RepositoryError.
func IsRepositoryError(err error) bool {
	var repoErr *RepositoryError
	return errors.As(err, &repoErr)
}
