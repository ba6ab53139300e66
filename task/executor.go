package task

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/brickingsoft/errors"
)

var (
	ErrClosed  = errors.Define("task: executor was closed")
	ErrRunning = errors.Define("task: executor is already running")
)

// Executor
// 协作式单协程执行器。
//
// 任务只在被唤醒时才会被轮询，队列为空时执行器阻塞等待，不会自旋。
// Run 只能在一个协程中运行，Spawn 与 Wake 可在任意协程调用。
type Executor struct {
	mu      sync.Mutex
	queue   []*entry
	live    map[*entry]struct{}
	signal  chan struct{}
	closeCh chan struct{}
	stopped chan struct{}
	closed  bool
	running bool
	polls   atomic.Int64
}

// NewExecutor
// 创建执行器。需要调用 Run 或 Start 才会开始轮询任务。
func NewExecutor() *Executor {
	return &Executor{
		live:    make(map[*entry]struct{}),
		signal:  make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
}

// Polls returns how many times any task has been polled.
func (exec *Executor) Polls() int64 {
	return exec.polls.Load()
}

// Spawn
// 提交任务，任务会被立即调度一次。
func (exec *Executor) Spawn(t Task) *Handle {
	return exec.spawn(nil, t)
}

// SpawnContext
// 提交任务，并在 ctx 结束时取消任务。
func (exec *Executor) SpawnContext(ctx context.Context, t Task) *Handle {
	return exec.spawn(ctx, t)
}

func (exec *Executor) spawn(ctx context.Context, t Task) *Handle {
	e := &entry{
		exec: exec,
		task: t,
		done: make(chan struct{}),
	}
	h := &Handle{e: e}
	exec.mu.Lock()
	if exec.closed {
		exec.mu.Unlock()
		if c, ok := t.(Canceler); ok {
			c.Cancel()
		}
		e.finish()
		return h
	}
	exec.live[e] = struct{}{}
	exec.mu.Unlock()
	if ctx != nil {
		stop := context.AfterFunc(ctx, h.Cancel)
		exec.mu.Lock()
		e.stop = stop
		exec.mu.Unlock()
	}
	e.Wake()
	return h
}

// Start
// 在新协程中运行执行器，直到 Close。
func (exec *Executor) Start() {
	started := make(chan struct{})
	go func() {
		close(started)
		_ = exec.Run(context.Background())
	}()
	<-started
}

// Run
// 在当前协程中轮询任务，直到 ctx 结束或执行器被关闭。
func (exec *Executor) Run(ctx context.Context) (err error) {
	exec.mu.Lock()
	if exec.closed {
		exec.mu.Unlock()
		return ErrClosed
	}
	if exec.running {
		exec.mu.Unlock()
		return ErrRunning
	}
	exec.running = true
	exec.stopped = make(chan struct{})
	exec.mu.Unlock()

	for {
		e, nextErr := exec.next(ctx)
		if nextErr != nil {
			err = nextErr
			break
		}
		exec.run(e)
	}

	exec.mu.Lock()
	exec.running = false
	closed := exec.closed
	stopped := exec.stopped
	exec.mu.Unlock()
	if closed {
		exec.drain()
		err = nil
	}
	close(stopped)
	return
}

// Close
// 关闭执行器，所有未完成的任务都会被取消。
func (exec *Executor) Close() {
	exec.mu.Lock()
	if exec.closed {
		exec.mu.Unlock()
		return
	}
	exec.closed = true
	close(exec.closeCh)
	running := exec.running
	stopped := exec.stopped
	exec.mu.Unlock()
	if running {
		<-stopped
		return
	}
	exec.drain()
}

func (exec *Executor) next(ctx context.Context) (*entry, error) {
	for {
		exec.mu.Lock()
		if exec.closed {
			exec.mu.Unlock()
			return nil, ErrClosed
		}
		if len(exec.queue) > 0 {
			e := exec.queue[0]
			exec.queue[0] = nil
			exec.queue = exec.queue[1:]
			exec.mu.Unlock()
			return e, nil
		}
		exec.mu.Unlock()
		select {
		case <-exec.signal:
		case <-exec.closeCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (exec *Executor) run(e *entry) {
	if e.finished.Load() {
		return
	}
	e.queued.Store(false)
	if e.cancelled.Load() {
		if c, ok := e.task.(Canceler); ok {
			c.Cancel()
		}
		exec.retire(e)
		return
	}
	cx := NewContext(e)
	exec.polls.Add(1)
	e.polls.Add(1)
	done := e.task.Poll(cx)
	cx.Release()
	if done {
		exec.retire(e)
	}
}

func (exec *Executor) retire(e *entry) {
	exec.mu.Lock()
	delete(exec.live, e)
	exec.mu.Unlock()
	e.finish()
}

func (exec *Executor) enqueue(e *entry) {
	exec.mu.Lock()
	if exec.closed {
		exec.mu.Unlock()
		return
	}
	exec.queue = append(exec.queue, e)
	exec.mu.Unlock()
	select {
	case exec.signal <- struct{}{}:
	default:
	}
}

func (exec *Executor) drain() {
	exec.mu.Lock()
	entries := make([]*entry, 0, len(exec.live))
	for e := range exec.live {
		entries = append(entries, e)
	}
	exec.live = make(map[*entry]struct{})
	exec.queue = nil
	exec.mu.Unlock()
	for _, e := range entries {
		if c, ok := e.task.(Canceler); ok {
			c.Cancel()
		}
		e.finish()
	}
}

type entry struct {
	exec      *Executor
	task      Task
	queued    atomic.Bool
	cancelled atomic.Bool
	finished  atomic.Bool
	polls     atomic.Int64
	stop      func() bool
	done      chan struct{}
}

func (e *entry) Wake() {
	if e.finished.Load() {
		return
	}
	if e.queued.CompareAndSwap(false, true) {
		e.exec.enqueue(e)
	}
}

func (e *entry) finish() {
	if !e.finished.CompareAndSwap(false, true) {
		return
	}
	e.exec.mu.Lock()
	stop := e.stop
	e.exec.mu.Unlock()
	if stop != nil {
		stop()
	}
	close(e.done)
}

// Handle
// 已提交任务的句柄。
type Handle struct {
	e *entry
}

// Done is closed once the task has finished or been cancelled.
func (h *Handle) Done() <-chan struct{} {
	return h.e.done
}

// Polls returns how many times this task has been polled.
func (h *Handle) Polls() int64 {
	return h.e.polls.Load()
}

// Waker returns the waker of the task.
func (h *Handle) Waker() Waker {
	return h.e
}

// Cancel requests cancellation. The task's Cancel method, if any, runs on the
// executor goroutine instead of its next Poll.
func (h *Handle) Cancel() {
	if h.e.finished.Load() {
		return
	}
	h.e.cancelled.Store(true)
	// a queued entry sees the flag when it is dequeued
	if h.e.queued.CompareAndSwap(false, true) {
		h.e.exec.enqueue(h.e)
	}
}
