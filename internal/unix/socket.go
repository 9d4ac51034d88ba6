//go:build linux || darwin

// Package unix provides the platform-specific socket plumbing used to talk to
// the spawn server: anonymous socket pairs and descriptor passing.
package unix

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// ErrNoRights indicates a descriptor message arrived without SCM_RIGHTS data.
var ErrNoRights = errors.New("no descriptor in control message")

// Socketpair returns both ends of an anonymous AF_UNIX stream socket pair.
// Both descriptors are close-on-exec; the caller hands one of them to a child
// explicitly (as stdin), which clears the flag on the child's copy only.
func Socketpair() (parent, child *os.File, err error) {
	fds, err := socketpair()
	if err != nil {
		return nil, nil, os.NewSyscallError("socketpair", err)
	}
	return os.NewFile(uintptr(fds[0]), "spawnmgr-parent"), os.NewFile(uintptr(fds[1]), "spawnmgr-child"), nil
}

// FileConn converts a socket file into a *net.UnixConn. The connection owns a
// duplicate of the descriptor, so f can be closed afterwards.
func FileConn(f *os.File) (*net.UnixConn, error) {
	conn, err := net.FileConn(f)
	if err != nil {
		return nil, err
	}
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("%s is not a unix socket", f.Name())
	}
	return uc, nil
}

// SendFile transfers f over conn as a single dummy byte carrying one
// SCM_RIGHTS control message.
func SendFile(conn *net.UnixConn, f *os.File) error {
	rights := unix.UnixRights(int(f.Fd()))
	n, oobn, err := conn.WriteMsgUnix([]byte{0}, rights, nil)
	if err != nil {
		return err
	}
	if n != 1 || oobn != len(rights) {
		return fmt.Errorf("short descriptor write: %d/%d", n, oobn)
	}
	return nil
}

// ReceiveFile reads one dummy byte plus its SCM_RIGHTS payload from conn and
// returns the first transferred descriptor as a file. Any further descriptors
// in the same message are closed. io.EOF is returned when the peer closed the
// connection before sending anything.
func ReceiveFile(conn *net.UnixConn, name string) (*os.File, error) {
	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(4*4))

	n, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return nil, err
	}
	if n == 0 && oobn == 0 {
		return nil, io.EOF
	}

	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return nil, os.NewSyscallError("parse control message", err)
	}

	var fds []int
	for i := range msgs {
		rights, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			continue
		}
		fds = append(fds, rights...)
	}
	if len(fds) == 0 {
		return nil, ErrNoRights
	}
	for _, extra := range fds[1:] {
		_ = unix.Close(extra)
	}

	unix.CloseOnExec(fds[0])
	return os.NewFile(uintptr(fds[0]), name), nil
}
