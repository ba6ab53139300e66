//go:build linux

package transport

import (
	"context"
	"io"
	"net"
	"os"
	"sync/atomic"
	"syscall"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/opentls/pkg/sys"
	"github.com/brickingsoft/opentls/task"
	"golang.org/x/sys/unix"
)

// Socket
// 基于 epoll 就绪通知的非阻塞 TCP 传输。
type Socket struct {
	conn   *net.TCPConn
	raw    syscall.RawConn
	reg    *registration
	closed atomic.Bool
}

// NewSocket
// 接管 conn。conn 的描述符已由运行时设置为非阻塞，Socket 直接在其上读写。
func NewSocket(poller *Poller, conn *net.TCPConn) (*Socket, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, socketError("attach", err)
	}
	fd := -1
	if err = raw.Control(func(s uintptr) { fd = int(s) }); err != nil {
		return nil, socketError("attach", err)
	}
	return &Socket{
		conn: conn,
		raw:  raw,
		reg:  poller.attach(fd),
	}, nil
}

// DialSocket
// 建立 TCP 连接并包装为 Socket。
func DialSocket(ctx context.Context, poller *Poller, network string, address string) (*Socket, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		_ = conn.Close()
		return nil, socketError("dial", errors.New("not a tcp connection"))
	}
	s, err := NewSocket(poller, tcp)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Socket) TryRead(p []byte) (n int, err error) {
	if len(p) == 0 {
		return
	}
	var opErr error
	if err = s.raw.Read(func(fd uintptr) bool {
		n, opErr = unix.Read(int(fd), p)
		return true
	}); err != nil {
		return 0, s.closedError("read", err)
	}
	switch {
	case opErr == nil && n == 0:
		return 0, io.EOF
	case opErr == unix.EAGAIN || opErr == unix.EINTR:
		return 0, ErrNotReady
	case opErr != nil:
		return 0, os.NewSyscallError("read", opErr)
	}
	return
}

func (s *Socket) TryWrite(p []byte) (n int, err error) {
	if len(p) == 0 {
		return
	}
	var opErr error
	if err = s.raw.Write(func(fd uintptr) bool {
		n, opErr = unix.Write(int(fd), p)
		return true
	}); err != nil {
		return 0, s.closedError("write", err)
	}
	switch {
	case opErr == unix.EAGAIN || opErr == unix.EINTR:
		return 0, ErrNotReady
	case opErr != nil:
		return 0, os.NewSyscallError("write", opErr)
	}
	return
}

func (s *Socket) RegisterReadable(w task.Waker) {
	if err := s.reg.want(sys.EventRead, w); err != nil {
		// the next TryRead surfaces the failure
		w.Wake()
	}
}

func (s *Socket) RegisterWritable(w task.Waker) {
	if err := s.reg.want(sys.EventWrite, w); err != nil {
		w.Wake()
	}
}

// CloseWrite
// 关闭写方向。
func (s *Socket) CloseWrite() error {
	return s.conn.CloseWrite()
}

// Close
// 注销并关闭连接。
func (s *Socket) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.reg.poller.detach(s.reg)
	return s.conn.Close()
}

func (s *Socket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *Socket) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *Socket) closedError(op string, cause error) error {
	if s.closed.Load() {
		return errors.From(ErrClosed, errors.WithMeta(errMetaPkgKey, errMetaPkgVal), errors.WithMeta(errMetaOpKey, op))
	}
	return socketError(op, cause)
}

func socketError(op string, cause error) error {
	return errors.New(
		"socket failed",
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaOpKey, op),
		errors.WithWrap(cause),
	)
}
