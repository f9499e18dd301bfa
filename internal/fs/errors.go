// Package fs exposes the sandboxfs node tree to the kernel through
// bazil.org/fuse.
//
// This file contains error types and error handling utilities.
package fs

import (
	"errors"
	"syscall"

	"bazil.org/fuse"

	"sandboxfs/internal/logging"
	"sandboxfs/internal/nodes"
)

var (
	errLogger = logging.GetLogger().WithPrefix("error")

	// ErrInvalidPath indicates an invalid path format
	ErrInvalidPath = errors.New("invalid path format")
)

// ToFuseError converts an error returned by the node tree into the errno
// reported to the kernel.
func ToFuseError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, nodes.ErrNotFound):
		return fuse.Errno(syscall.ENOENT)
	case errors.Is(err, nodes.ErrAlreadyMapped):
		return fuse.Errno(syscall.EEXIST)
	case errors.Is(err, nodes.ErrTypeChanged):
		return fuse.Errno(syscall.EIO)
	case errors.Is(err, nodes.ErrInvalidPrecondition), errors.Is(err, ErrInvalidPath):
		return fuse.Errno(syscall.EINVAL)
	case errors.Is(err, nodes.ErrPermission):
		return fuse.Errno(syscall.EPERM)
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		errLogger.Trace("Passing through host error: %v", err)
		return fuse.Errno(errno)
	}

	errLogger.Debug("Unknown error type, returning EIO: %v", err)
	return fuse.Errno(syscall.EIO)
}
