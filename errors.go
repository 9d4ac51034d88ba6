package spawnmgr

import (
	"errors"
	"fmt"
)

// Common errors returned by spawn manager operations
var (
	// ErrServerExited indicates the spawn server closed the channel instead of replying
	ErrServerExited = errors.New("spawnmgr: spawn server exited unexpectedly")

	// ErrClosed indicates the manager has already been torn down
	ErrClosed = errors.New("spawnmgr: manager closed")

	// ErrMessageTooLarge indicates a channel message exceeds the frame size limit
	ErrMessageTooLarge = errors.New("spawnmgr: message too large")

	// ErrNoDescriptor indicates the peer did not transfer a file descriptor
	ErrNoDescriptor = errors.New("spawnmgr: no file descriptor received")

	// ErrInvalidPID indicates the spawn server replied with a malformed process id
	ErrInvalidPID = errors.New("spawnmgr: invalid process id")
)

// SystemError represents an OS-level failure: socket pair creation, process
// creation or descriptor transfer.
type SystemError struct {
	// Op is the system operation that failed
	Op string
	// Err is the underlying OS error
	Err error
}

// Error returns a formatted error message
func (e *SystemError) Error() string {
	return fmt.Sprintf("spawnmgr %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *SystemError) Unwrap() error {
	return e.Err
}

// IOError represents an I/O failure: the log target could not be opened or
// the channel to the spawn server broke during an exchange.
type IOError struct {
	// Op is the operation that failed
	Op string
	// Path is the file involved, if any
	Path string
	// Err is the underlying error
	Err error
}

// Error returns a formatted error message
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("spawnmgr %s %q: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("spawnmgr %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *IOError) Unwrap() error {
	return e.Err
}

// RestartError is returned by Spawn when the spawn server needed a restart
// and the restart failed. Err is the *SystemError or *IOError the restart
// produced, unchanged.
type RestartError struct {
	Err error
}

// Error returns the cause's message with the restart context
func (e *RestartError) Error() string {
	return "spawnmgr restart: " + e.Err.Error()
}

// Unwrap returns the restart failure's cause
func (e *RestartError) Unwrap() error {
	return e.Err
}
