package nodes

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that a name does not exist in the tree
	ErrNotFound = errors.New("no such entry")

	// ErrAlreadyMapped indicates that a mapping conflicts with an existing entry
	ErrAlreadyMapped = errors.New("already mapped")

	// ErrTypeChanged indicates that a host path changed type underneath a node
	ErrTypeChanged = errors.New("backing path changed type")

	// ErrInvalidPrecondition indicates a contract violation by the caller,
	// such as deleting a node twice or reopening a deleted file
	ErrInvalidPrecondition = errors.New("invalid precondition")

	// ErrPermission indicates an attempt to mutate a read-only entry
	ErrPermission = errors.New("operation not permitted")
)

// Error wraps a node error with the operation and the path it applied to.
type Error struct {
	Op   string // Operation that failed (e.g., "map", "lookup")
	Path string // Virtual name or host path involved
	Err  error  // Underlying error
}

// Error implements the error interface, providing a formatted error message
func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Op, e.Path, e.Err)
}

// Unwrap implements error unwrapping for the errors.Is/As functions
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, path string, err error) *Error {
	return &Error{Op: op, Path: path, Err: err}
}

// Operation names used in errors and logs.
const (
	OpMap      = "map"
	OpLookup   = "lookup"
	OpReadDir  = "readdir"
	OpGetattr  = "getattr"
	OpSetattr  = "setattr"
	OpOpen     = "open"
	OpDelete   = "delete"
	OpRemove   = "remove"
	OpReadlink = "readlink"
	OpCreate   = "create"
)
