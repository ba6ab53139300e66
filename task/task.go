package task

import "sync/atomic"

// Waker
// 唤醒器。由执行器提供，资源就绪后调用 Wake 使任务被重新调度。
//
// Wake 可以在任何协程中调用，任务结束后调用无效。
type Waker interface {
	Wake()
}

// WakerFunc
// 函数形式的唤醒器。
type WakerFunc func()

func (fn WakerFunc) Wake() {
	fn()
}

// NoopWaker does nothing. Useful when a poll is driven by hand and readiness is
// checked by other means.
var NoopWaker Waker = WakerFunc(func() {})

// Context
// 单次 Poll 的执行上下文。
//
// 只在给出它的那次 Poll 期间有效，Poll 返回后再使用会 panic。
// 需要跨越 Poll 保留的是 Waker，而不是 Context。
type Context struct {
	waker    Waker
	released atomic.Bool
}

// NewContext
// 创建一个执行上下文，一般用于手动驱动任务。
func NewContext(waker Waker) *Context {
	if waker == nil {
		waker = NoopWaker
	}
	return &Context{waker: waker}
}

// Waker returns the waker of the task being polled.
func (cx *Context) Waker() Waker {
	if cx.released.Load() {
		panic("task: context used after its poll returned")
	}
	return cx.waker
}

// Release ends the validity of cx. Executors call it when Poll returns; callers
// driving a task by hand may do the same.
func (cx *Context) Release() {
	cx.released.Store(true)
}

// Task
// 可被轮询的任务。
//
// Poll 返回 true 表示任务已结束。返回 false 之前，任务必须已经把 cx 的 Waker
// 注册到它所等待的资源上，否则任务不会再被调度。
type Task interface {
	Poll(cx *Context) (done bool)
}

// Func
// 函数形式的任务。
type Func func(cx *Context) (done bool)

func (fn Func) Poll(cx *Context) bool {
	return fn(cx)
}

// Canceler is implemented by tasks that hold resources which must be released
// when the task is cancelled before it finishes.
type Canceler interface {
	Cancel()
}
