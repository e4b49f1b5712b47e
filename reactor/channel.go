package reactor

import (
	"net"
	"syscall"

	"github.com/joeycumines/go-reactor/errs"
	"golang.org/x/sys/unix"
)

// Channel is the handle the reactor needs from a non-blocking byte
// transport: register-readiness (via its fd), read-bytes, write-bytes,
// close, local/remote address. Reads and writes go straight through
// unix.Read/unix.Write on the raw fd rather than through net.Conn's own
// Read/Write, since those would re-enter the Go runtime's netpoller and
// race with this package's own epoll/kqueue registration of the same fd.
type Channel struct {
	conn net.Conn
	fd   int
}

// NewChannel adopts conn — which must satisfy syscall.Conn (true of
// *net.TCPConn, *net.UnixConn, and similar) — as a reactor Channel,
// switching its underlying fd into non-blocking mode.
func NewChannel(conn net.Conn) (*Channel, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil, &errs.UsageError{Message: "reactor: channel requires a syscall.Conn"}
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, err
	}

	var fd int
	var setErr error
	ctrlErr := raw.Control(func(fdPtr uintptr) {
		fd = int(fdPtr)
		setErr = unix.SetNonblock(fd, true)
	})
	if ctrlErr != nil {
		return nil, ctrlErr
	}
	if setErr != nil {
		return nil, setErr
	}

	return &Channel{conn: conn, fd: fd}, nil
}

// FD returns the channel's underlying, non-blocking file descriptor.
func (c *Channel) FD() int { return c.fd }

// Read performs a single non-blocking read. wouldBlock reports EAGAIN (no
// data right now, distinct from n==0 meaning the peer closed for writing).
func (c *Channel) Read(p []byte) (n int, wouldBlock bool, err error) {
	n, err = unix.Read(c.fd, p)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, true, nil
		}
		return 0, false, err
	}
	return n, false, nil
}

// Write performs a single non-blocking write. wouldBlock reports EAGAIN;
// the caller re-arms write interest and retries once writable again.
func (c *Channel) Write(p []byte) (n int, wouldBlock bool, err error) {
	n, err = unix.Write(c.fd, p)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, true, nil
		}
		return 0, false, err
	}
	return n, false, nil
}

// Close closes the underlying connection.
func (c *Channel) Close() error { return c.conn.Close() }

// LocalAddr returns the channel's local address.
func (c *Channel) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr returns the channel's remote address.
func (c *Channel) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }
