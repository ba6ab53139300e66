package opentls

import (
	"context"
	"sync"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/opentls/task"
	"github.com/brickingsoft/opentls/transport"
	"github.com/brickingsoft/rxp/async"
)

type opKind int

const (
	opKindWrite opKind = iota + 1
	opKindShutdown
)

// AsyncStream
// 握手完成后的会话流，工作在 transport.AsyncTransport 之上。
//
// 读与写（含 Shutdown）各自独立，一个读可以挂起在写的同时进行。
// 每个方向同一时刻只能有一个操作，挂起中的操作必须以同样的参数继续轮询，
// 或由 Close 放弃。所有轮询必须在同一个协程中进行，Read、Write 与 Shutdown
// 返回的 future 都运行在握手所用的执行器上，满足这一点。
type AsyncStream struct {
	session
	adapter *adapter
	exec    *task.Executor

	readCo  *coroutine
	readBuf []byte

	writing  opKind
	writeBuf []byte
	written  int
	writeErr error

	shutdown    bool
	shutdownErr error
	closeMu     sync.Mutex
	closed      bool
}

func newAsyncStream(s *session, a *adapter, exec *task.Executor) *AsyncStream {
	s.ec.buffered = true
	return &AsyncStream{
		session: *s,
		adapter: a,
		exec:    exec,
	}
}

// PollRead
// 读取应用数据。对端发送 close_notify 后返回 io.EOF。
func (s *AsyncStream) PollRead(cx *task.Context, p []byte) (n int, ready bool, err error) {
	if s.readCo != nil && !sameBuffer(s.readBuf, p) {
		panic("opentls: pending AsyncStream read polled with another buffer")
	}
	if s.isClosed() {
		return 0, true, s.closedError(opRead)
	}
	s.adapter.enter(cx)
	defer s.adapter.leave()
	if s.readCo == nil {
		s.readBuf = p
		s.readCo = startCoroutine(s.ec, func() (int, error) {
			return s.conn.Read(p)
		})
	}
	paused := s.readCo.resume()
	// key update replies and alerts produced by the read
	if s.writing == 0 {
		_, _ = s.ec.flush(s.adapter)
	}
	if paused {
		return 0, false, nil
	}
	co := s.readCo
	s.readCo = nil
	s.readBuf = nil
	return co.n, true, co.err
}

// PollWrite
// 写入应用数据，完成时 p 已全部交给传输。
func (s *AsyncStream) PollWrite(cx *task.Context, p []byte) (n int, ready bool, err error) {
	return s.pollWrite(cx, opKindWrite, p, func() (int, error) {
		return s.conn.Write(p)
	})
}

// PollShutdown
// 发送 close_notify。重复调用返回第一次的结果，对端已关闭同样视为成功。
func (s *AsyncStream) PollShutdown(cx *task.Context) (ready bool, err error) {
	if s.shutdown && s.writing == 0 {
		return true, s.shutdownErr
	}
	_, ready, err = s.pollWrite(cx, opKindShutdown, nil, func() (int, error) {
		return 0, s.conn.CloseWrite()
	})
	if !ready {
		return
	}
	s.shutdown = true
	err = s.session.shutdown(err)
	s.shutdownErr = err
	return
}

// pollWrite runs fn once, which only queues records, then flushes them.
func (s *AsyncStream) pollWrite(cx *task.Context, kind opKind, p []byte, fn func() (int, error)) (int, bool, error) {
	if s.writing != 0 && (s.writing != kind || !sameBuffer(s.writeBuf, p)) {
		panic("opentls: pending AsyncStream write polled with other arguments")
	}
	op := opWrite
	if kind == opKindShutdown {
		op = opShutdown
	}
	if s.isClosed() {
		return 0, true, s.closedError(op)
	}
	s.adapter.enter(cx)
	defer s.adapter.leave()
	if s.writing == 0 {
		s.writing = kind
		s.writeBuf = p
		s.written, s.writeErr = fn()
	}
	flushed, err := s.ec.flush(s.adapter)
	if err == nil && !flushed {
		return 0, false, nil
	}
	n, writeErr := s.written, s.writeErr
	s.writing, s.writeBuf, s.written, s.writeErr = 0, nil, 0, nil
	if writeErr == nil && err != nil {
		n, writeErr = 0, err
	}
	return n, true, writeErr
}

func (s *AsyncStream) isClosed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed
}

func (s *AsyncStream) closedError(op string) error {
	return errors.From(
		ErrClosed,
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaOpKey, op),
	)
}

// Close
// 放弃挂起中的操作并关闭传输，不发送 close_notify。需要优雅关闭时先 Shutdown。
func (s *AsyncStream) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()
	if s.readCo != nil {
		s.readCo.abandon()
		s.readCo = nil
		s.readBuf = nil
	}
	s.writing, s.writeBuf = 0, nil
	s.ec.pending = nil
	return s.adapter.Close()
}

// Transport
// 握手时传入的传输。
func (s *AsyncStream) Transport() transport.AsyncTransport {
	return s.adapter.transport
}

// Read
// 在握手所用的执行器上读取，返回兑现读取字节数的 future。
//
// 已有读取在进行时 future 以 ErrBusy 失败。
func (s *AsyncStream) Read(ctx context.Context, p []byte) async.Future[int] {
	started := false
	return spawnFuture[int](ctx, s.executor(), func(cx *task.Context) (int, bool, error) {
		if !started {
			if s.readCo != nil {
				return 0, true, s.busyError(opRead)
			}
			started = true
		}
		return s.PollRead(cx, p)
	}, func() {
		// an abandoned read may hold part of a record
		if started && s.readCo != nil {
			_ = s.Close()
		}
	})
}

// Write
// 在握手所用的执行器上写入全部 p。
//
// 已有写入或关闭在进行时 future 以 ErrBusy 失败。
func (s *AsyncStream) Write(ctx context.Context, p []byte) async.Future[int] {
	started := false
	return spawnFuture[int](ctx, s.executor(), func(cx *task.Context) (int, bool, error) {
		if !started {
			if s.writing != 0 {
				return 0, true, s.busyError(opWrite)
			}
			started = true
		}
		return s.PollWrite(cx, p)
	}, s.cancelWrite(&started))
}

// Shutdown
// 在握手所用的执行器上发送 close_notify。
func (s *AsyncStream) Shutdown(ctx context.Context) async.Future[async.Void] {
	started := false
	return spawnFuture[async.Void](ctx, s.executor(), func(cx *task.Context) (async.Void, bool, error) {
		if !started {
			if s.writing != 0 {
				return async.Void{}, true, s.busyError(opShutdown)
			}
			started = true
		}
		ready, err := s.PollShutdown(cx)
		return async.Void{}, ready, err
	}, s.cancelWrite(&started))
}

// a half flushed record cannot be taken back
func (s *AsyncStream) cancelWrite(started *bool) func() {
	return func() {
		if *started && s.writing != 0 {
			_ = s.Close()
		}
	}
}

func (s *AsyncStream) busyError(op string) error {
	return errors.From(
		ErrBusy,
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaOpKey, op),
	)
}

func (s *AsyncStream) executor() *task.Executor {
	if s.exec == nil {
		panic("opentls: AsyncStream has no executor, poll it directly")
	}
	return s.exec
}

func sameBuffer(a, b []byte) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}
