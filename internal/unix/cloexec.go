//go:build linux || darwin

package unix

import (
	"os"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// MarkInheritedCloseOnExec sets close-on-exec on every open descriptor above
// stderr, so a child started afterwards inherits only what it is handed
// explicitly. Descriptors this process did not create through the Go runtime
// (inherited from its parent, opened by C code, syscall.Dup results) are
// otherwise passed on to every exec'd program.
func MarkInheritedCloseOnExec() error {
	syscall.ForkLock.Lock()
	defer syscall.ForkLock.Unlock()

	if closeRangeCloseOnExec() {
		return nil
	}
	return markListedCloseOnExec(fdDir)
}

// markListedCloseOnExec marks every descriptor listed in dir
func markListedCloseOnExec(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fd, err := strconv.Atoi(e.Name())
		if err != nil || fd <= 2 {
			continue
		}
		unix.CloseOnExec(fd)
	}
	return nil
}
