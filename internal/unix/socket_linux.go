//go:build linux

package unix

import (
	"math"

	"golang.org/x/sys/unix"
)

// socketpair creates a close-on-exec stream socket pair atomically.
func socketpair() ([2]int, error) {
	return unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
}

const fdDir = "/proc/self/fd"

// closeRangeCloseOnExec marks descriptors 3 and up in one call. It reports
// false on kernels without close_range(2) CLOSE_RANGE_CLOEXEC (before 5.11).
func closeRangeCloseOnExec() bool {
	return unix.CloseRange(3, math.MaxUint32, unix.CLOSE_RANGE_CLOEXEC) == nil
}
