//go:build darwin

package unix

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// socketpair creates a stream socket pair and marks both ends close-on-exec.
// Darwin has no SOCK_CLOEXEC, so the fork lock keeps a concurrent fork from
// inheriting the descriptors in between.
func socketpair() ([2]int, error) {
	syscall.ForkLock.RLock()
	defer syscall.ForkLock.RUnlock()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return fds, err
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])
	return fds, nil
}

const fdDir = "/dev/fd"

// closeRangeCloseOnExec reports false: Darwin has no close_range(2).
func closeRangeCloseOnExec() bool { return false }
