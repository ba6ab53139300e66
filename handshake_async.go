package opentls

import (
	"context"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/opentls/task"
	"github.com/brickingsoft/opentls/transport"
	"github.com/brickingsoft/rxp/async"
)

// HandshakeState
// 异步握手状态。只会单向前进：NotStarted → InProgress → Done | Failed。
type HandshakeState int

const (
	HandshakeNotStarted HandshakeState = iota
	HandshakeInProgress
	HandshakeDone
	HandshakeFailed
)

func (s HandshakeState) String() string {
	switch s {
	case HandshakeNotStarted:
		return "not started"
	case HandshakeInProgress:
		return "in progress"
	case HandshakeDone:
		return "done"
	case HandshakeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further poll is allowed.
func (s HandshakeState) Terminal() bool {
	return s == HandshakeDone || s == HandshakeFailed
}

// AsyncHandshake
// 在 transport.AsyncTransport 上由调度器轮询推进的握手。
//
// 未就绪时 Poll 返回 ready=false，此时唤醒器已登记到传输上；
// 完成后再次 Poll 会 panic。
type AsyncHandshake struct {
	factory *engineFactory
	adapter *adapter
	state   HandshakeState
	mid     *MidHandshake
	result  *AsyncStream
	err     error
	exec    *task.Executor
}

func newAsyncHandshake(f *engineFactory, t transport.AsyncTransport) *AsyncHandshake {
	return &AsyncHandshake{
		factory: f,
		adapter: newAdapter(t),
	}
}

// State
// 当前状态。
func (h *AsyncHandshake) State() HandshakeState {
	return h.state
}

// Err returns the failure once the state is HandshakeFailed.
func (h *AsyncHandshake) Err() error {
	return h.err
}

// Poll
// 推进握手。
func (h *AsyncHandshake) Poll(cx *task.Context) (stream *AsyncStream, ready bool, err error) {
	if h.state.Terminal() {
		panic("opentls: AsyncHandshake polled after completion")
	}
	h.adapter.enter(cx)
	defer h.adapter.leave()

	var (
		s   *session
		mid *MidHandshake
	)
	if h.state == HandshakeNotStarted {
		s, mid, err = h.factory.start(h.adapter)
	} else {
		pending := h.mid
		h.mid = nil
		s, mid, err = pending.resume()
	}
	switch {
	case err != nil:
		h.state = HandshakeFailed
		h.err = err
		return nil, true, err
	case mid != nil:
		h.state = HandshakeInProgress
		h.mid = mid
		return nil, false, nil
	}
	h.state = HandshakeDone
	h.result = newAsyncStream(s, h.adapter, h.exec)
	return h.result, true, nil
}

// Abandon
// 放弃握手并关闭传输。终止状态下无效。
func (h *AsyncHandshake) Abandon() error {
	switch h.state {
	case HandshakeNotStarted:
		h.state = HandshakeFailed
		h.err = ErrAbandoned
		return h.adapter.Close()
	case HandshakeInProgress:
		pending := h.mid
		h.mid = nil
		h.state = HandshakeFailed
		h.err = ErrAbandoned
		return pending.Abandon()
	default:
		return nil
	}
}

// Spawn
// 在 exec 上运行握手，返回完成时兑现的 async.Future。
//
// ctx 结束时握手被放弃，future 以 ErrClosed 失败并包装 ctx 的错误。
func (h *AsyncHandshake) Spawn(ctx context.Context, exec *task.Executor) async.Future[*AsyncStream] {
	if h.state != HandshakeNotStarted {
		return async.FailedImmediately[*AsyncStream](withExecutors(ctx), errors.New(
			"handshake already started",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, opHandshake),
		))
	}
	h.exec = exec
	return spawnFuture[*AsyncStream](ctx, exec, h.Poll, func() {
		_ = h.Abandon()
	})
}
