package spawnmgr

import (
	"errors"
	"net"
	"os"
)

// SpawnRequest describes one application to spawn. User and Group may be
// empty, in which case the spawn server uses its default identity.
type SpawnRequest struct {
	// AppRoot is the application root directory, passed to the server verbatim
	AppRoot string
	// User is the identity the worker should run as
	User string
	// Group is the group the worker should run as
	Group string
}

// Handle represents a spawned worker process. It is immutable; the listening
// socket it carries belongs to the caller, who must close it.
type Handle struct {
	appRoot string
	pid     int
	file    *os.File
}

// NewHandle builds a Handle from its parts. Ownership of file moves to the
// handle.
func NewHandle(appRoot string, pid int, file *os.File) *Handle {
	return &Handle{appRoot: appRoot, pid: pid, file: file}
}

// AppRoot returns the application root the worker was spawned for
func (h *Handle) AppRoot() string { return h.appRoot }

// PID returns the worker's process id
func (h *Handle) PID() int { return h.pid }

// File returns the worker's listening socket
func (h *Handle) File() *os.File { return h.file }

// Listener returns a net.Listener for the worker's socket. The listener uses
// its own duplicate of the descriptor; the handle's file stays open.
func (h *Handle) Listener() (net.Listener, error) {
	return net.FileListener(h.file)
}

// Close releases the worker's socket descriptor. Calling it more than once is
// harmless.
func (h *Handle) Close() error {
	if err := h.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
