package opentls

import (
	"net"

	"github.com/brickingsoft/errors"
)

// Listener
// 接受连接并在其上完成服务端握手。
type Listener struct {
	inner    net.Listener
	acceptor *Acceptor
}

// NewListener
// 包装 inner，握手由 acceptor 完成。
func NewListener(inner net.Listener, acceptor *Acceptor) *Listener {
	return &Listener{inner: inner, acceptor: acceptor}
}

// Listen
// 监听 laddr。
func Listen(network string, laddr string, acceptor *Acceptor) (*Listener, error) {
	if acceptor == nil {
		return nil, configurationError(opBuild, errors.New("acceptor is nil"))
	}
	l, err := net.Listen(network, laddr)
	if err != nil {
		return nil, err
	}
	return NewListener(l, acceptor), nil
}

// Accept
// 接受下一个连接并完成握手。握手失败时连接被关闭，错误返回给调用方。
func (l *Listener) Accept() (*Stream, error) {
	conn, err := l.inner.Accept()
	if err != nil {
		return nil, err
	}
	stream, err := l.acceptor.Accept(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return stream, nil
}

func (l *Listener) Addr() net.Addr {
	return l.inner.Addr()
}

func (l *Listener) Close() error {
	return l.inner.Close()
}
