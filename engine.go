package opentls

import (
	"io"
	"iter"
	"net"
	"time"
)

// Role
// 连接中的角色。
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// engineConn is the net.Conn handed to crypto/tls. When the transport reports a
// transient condition it either suspends the running coroutine or, outside of
// one, retries in place.
//
// Once buffered is set, writes never reach the transport directly. They queue
// in pending and the owner flushes them, so the engine never pauses while it
// holds its output lock.
type engineConn struct {
	rw        io.ReadWriter
	suspend   func() bool
	abandoned bool
	buffered  bool
	pending   []byte
}

func newEngineConn(rw io.ReadWriter) *engineConn {
	return &engineConn{rw: rw}
}

func (c *engineConn) wait() bool {
	if c.abandoned {
		return false
	}
	if c.suspend == nil {
		return true
	}
	if !c.suspend() {
		c.abandoned = true
		return false
	}
	return true
}

func (c *engineConn) Read(p []byte) (int, error) {
	for {
		if c.abandoned {
			return 0, ErrAbandoned
		}
		n, err := c.rw.Read(p)
		if n > 0 || !isTransient(err) {
			return n, err
		}
		if !c.wait() {
			return 0, ErrAbandoned
		}
	}
}

func (c *engineConn) Write(p []byte) (int, error) {
	if c.buffered {
		if c.abandoned {
			return 0, ErrAbandoned
		}
		c.pending = append(c.pending, p...)
		return len(p), nil
	}
	written := 0
	for written < len(p) {
		if c.abandoned {
			return written, ErrAbandoned
		}
		n, err := c.rw.Write(p[written:])
		written += n
		switch {
		case err == nil:
			if n == 0 {
				return written, io.ErrShortWrite
			}
		case !isTransient(err):
			return written, err
		case n == 0:
			if !c.wait() {
				return written, ErrAbandoned
			}
		}
	}
	return written, nil
}

// flush hands queued engine output to w until it is empty or w stops
// accepting. done is false when w would block.
func (c *engineConn) flush(w io.Writer) (done bool, err error) {
	for len(c.pending) > 0 {
		n, wErr := w.Write(c.pending)
		c.pending = c.pending[n:]
		if wErr != nil {
			if isTransient(wErr) {
				return false, nil
			}
			return false, wErr
		}
		if n == 0 {
			return false, io.ErrShortWrite
		}
	}
	c.pending = nil
	return true, nil
}

func (c *engineConn) Close() error {
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

type engineAddr struct{}

func (engineAddr) Network() string { return "opentls" }
func (engineAddr) String() string  { return "opentls" }

func (c *engineConn) LocalAddr() net.Addr {
	if conn, ok := c.rw.(interface{ LocalAddr() net.Addr }); ok {
		return conn.LocalAddr()
	}
	return engineAddr{}
}

func (c *engineConn) RemoteAddr() net.Addr {
	if conn, ok := c.rw.(interface{ RemoteAddr() net.Addr }); ok {
		return conn.RemoteAddr()
	}
	return engineAddr{}
}

func (c *engineConn) SetDeadline(t time.Time) error {
	if conn, ok := c.rw.(interface{ SetDeadline(time.Time) error }); ok {
		return conn.SetDeadline(t)
	}
	return nil
}

func (c *engineConn) SetReadDeadline(t time.Time) error {
	if conn, ok := c.rw.(interface{ SetReadDeadline(time.Time) error }); ok {
		return conn.SetReadDeadline(t)
	}
	return nil
}

func (c *engineConn) SetWriteDeadline(t time.Time) error {
	if conn, ok := c.rw.(interface{ SetWriteDeadline(time.Time) error }); ok {
		return conn.SetWriteDeadline(t)
	}
	return nil
}

// coroutine runs one engine operation so that it can pause whenever the
// engine conn finds the transport not ready.
type coroutine struct {
	conn     *engineConn
	fn       func() (int, error)
	next     func() (struct{}, bool)
	stop     func()
	n        int
	err      error
	finished bool
}

func startCoroutine(conn *engineConn, fn func() (int, error)) *coroutine {
	co := &coroutine{conn: conn, fn: fn}
	co.next, co.stop = iter.Pull(co.body)
	return co
}

func (co *coroutine) body(yield func(struct{}) bool) {
	co.conn.suspend = func() bool {
		return yield(struct{}{})
	}
	co.n, co.err = co.fn()
	co.conn.suspend = nil
	co.finished = true
}

// resume runs until the operation finishes or pauses.
func (co *coroutine) resume() (paused bool) {
	_, paused = co.next()
	return
}

// abandon unwinds a paused operation. Nothing more reaches the transport.
func (co *coroutine) abandon() {
	co.conn.abandoned = true
	co.stop()
	co.conn.suspend = nil
}
