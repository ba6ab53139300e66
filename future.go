package opentls

import (
	"context"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/opentls/task"
	"github.com/brickingsoft/rxp/async"
)

// pollFunc advances an operation by one poll.
type pollFunc[R any] func(cx *task.Context) (result R, ready bool, err error)

// futureTask bridges a polled operation to an async.Promise.
type futureTask[R any] struct {
	ctx     context.Context
	poll    pollFunc[R]
	cancel  func()
	promise async.Promise[R]
}

func (t *futureTask[R]) Poll(cx *task.Context) bool {
	result, ready, err := t.poll(cx)
	if !ready {
		return false
	}
	if err != nil {
		t.promise.Fail(err)
	} else {
		t.promise.Succeed(result)
	}
	return true
}

func (t *futureTask[R]) Cancel() {
	if t.cancel != nil {
		t.cancel()
	}
	cause := t.ctx.Err()
	if cause == nil {
		cause = task.ErrClosed
	}
	t.promise.Fail(errors.From(
		ErrClosed,
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithWrap(cause),
	))
}

// spawnFuture runs poll on exec and completes the returned future with its
// result. ctx cancellation cancels the task and calls cancel on the executor.
func spawnFuture[R any](ctx context.Context, exec *task.Executor, poll pollFunc[R], cancel func()) async.Future[R] {
	ctx = withExecutors(ctx)
	promise, promiseErr := async.Make[R](ctx, async.WithWait())
	if promiseErr != nil {
		if cancel != nil {
			cancel()
		}
		return async.FailedImmediately[R](ctx, promiseErr)
	}
	t := &futureTask[R]{
		ctx:     ctx,
		poll:    poll,
		cancel:  cancel,
		promise: promise,
	}
	exec.SpawnContext(ctx, t)
	return promise.Future()
}
