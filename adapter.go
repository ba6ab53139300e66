package opentls

import (
	"github.com/brickingsoft/opentls/task"
	"github.com/brickingsoft/opentls/transport"
)

// adapter presents an AsyncTransport as the blocking-style io.ReadWriter the
// engine expects. A would-block result always has a waker registered behind it.
//
// The task context is bound only while a poll runs.
type adapter struct {
	transport transport.AsyncTransport
	cx        *task.Context
}

func newAdapter(t transport.AsyncTransport) *adapter {
	return &adapter{transport: t}
}

func (a *adapter) enter(cx *task.Context) {
	a.cx = cx
}

func (a *adapter) leave() {
	a.cx = nil
}

func (a *adapter) context() *task.Context {
	if a.cx == nil {
		panic("opentls: async transport used outside of a poll")
	}
	return a.cx
}

func (a *adapter) Read(p []byte) (int, error) {
	n, err := a.transport.TryRead(p)
	if !transport.IsNotReady(err) {
		return n, err
	}
	if n > 0 {
		return n, nil
	}
	a.transport.RegisterReadable(a.context().Waker())
	return 0, ErrWouldBlock
}

func (a *adapter) Write(p []byte) (int, error) {
	n, err := a.transport.TryWrite(p)
	if !transport.IsNotReady(err) {
		return n, err
	}
	if n > 0 {
		return n, nil
	}
	a.transport.RegisterWritable(a.context().Waker())
	return 0, ErrWouldBlock
}

func (a *adapter) Close() error {
	return a.transport.Close()
}
