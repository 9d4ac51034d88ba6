package spawnmgr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/axondata/go-spawnmgr/internal/unix"
)

// MaxMessageSize is the largest payload a single channel message may carry.
// The frame header is a 16-bit big-endian length.
const MaxMessageSize = 1<<16 - 1

// Channel is the message-passing connection between the manager and the
// spawn server. Implementations need not be safe for concurrent use; the
// manager never interleaves two exchanges.
type Channel interface {
	// Write sends one message made of the command name followed by args
	Write(command string, args ...string) error
	// Read blocks for the next message. It returns io.EOF, and no other
	// error, when the peer closed the channel cleanly.
	Read() ([]string, error)
	// ReadFile blocks until the peer transfers one file descriptor
	ReadFile() (*os.File, error)
	// Close releases the channel. It is safe to call more than once.
	Close() error
}

// deadliner is implemented by channels whose blocking calls can be bounded.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// UnixChannel is a Channel over one end of a Unix stream socket.
//
// Each message is a 2-byte big-endian payload length followed by the fields,
// each terminated by a NUL byte. A file descriptor travels as a single dummy
// byte carrying an SCM_RIGHTS control message.
type UnixChannel struct {
	conn *net.UnixConn

	closeOnce sync.Once
	closeErr  error
}

// NewUnixChannel wraps the socket file f. The channel takes ownership of f;
// f is closed before NewUnixChannel returns, whether or not it succeeds.
func NewUnixChannel(f *os.File) (*UnixChannel, error) {
	defer func() { _ = f.Close() }()

	conn, err := unix.FileConn(f)
	if err != nil {
		return nil, &SystemError{Op: "channel", Err: err}
	}
	return &UnixChannel{conn: conn}, nil
}

// Write sends command and args as one message
func (c *UnixChannel) Write(command string, args ...string) error {
	fields := make([]string, 0, len(args)+1)
	fields = append(fields, command)
	fields = append(fields, args...)
	return c.WriteMessage(fields...)
}

// WriteMessage sends fields as one message
func (c *UnixChannel) WriteMessage(fields ...string) error {
	size := 0
	for _, f := range fields {
		if strings.IndexByte(f, 0) >= 0 {
			return &IOError{Op: "write", Err: fmt.Errorf("field %q contains a NUL byte", f)}
		}
		size += len(f) + 1
	}
	if size > MaxMessageSize {
		return &IOError{Op: "write", Err: ErrMessageTooLarge}
	}

	buf := make([]byte, 2, 2+size)
	binary.BigEndian.PutUint16(buf, uint16(size))
	for _, f := range fields {
		buf = append(buf, f...)
		buf = append(buf, 0)
	}

	if _, err := c.conn.Write(buf); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	return nil
}

// Read returns the next message's fields, or io.EOF if the peer closed the
// channel between messages.
func (c *UnixChannel) Read() ([]string, error) {
	var header [2]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &IOError{Op: "read", Err: err}
	}

	size := binary.BigEndian.Uint16(header[:])
	payload := make([]byte, size)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, &IOError{Op: "read", Err: err}
	}

	if size == 0 {
		return []string{}, nil
	}
	return strings.Split(strings.TrimSuffix(string(payload), "\x00"), "\x00"), nil
}

// ReadFile receives one file descriptor from the peer
func (c *UnixChannel) ReadFile() (*os.File, error) {
	f, err := unix.ReceiveFile(c.conn, "spawnmgr-worker")
	switch {
	case err == nil:
		return f, nil
	case errors.Is(err, io.EOF):
		return nil, &IOError{Op: "read descriptor", Err: ErrServerExited}
	case errors.Is(err, unix.ErrNoRights):
		return nil, &IOError{Op: "read descriptor", Err: ErrNoDescriptor}
	default:
		return nil, &IOError{Op: "read descriptor", Err: err}
	}
}

// WriteFile transfers f's descriptor to the peer. f stays open; the peer
// receives its own copy.
func (c *UnixChannel) WriteFile(f *os.File) error {
	if err := unix.SendFile(c.conn, f); err != nil {
		return &IOError{Op: "write descriptor", Err: err}
	}
	return nil
}

// SetDeadline bounds all pending and future reads and writes
func (c *UnixChannel) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// Close closes the socket. Only the first call does any work.
func (c *UnixChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
