package opentls

import (
	"context"
	"fmt"
	"sync"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/rxp"
)

var (
	executors     rxp.Executors
	executorsOnce sync.Once
	executorsMu   sync.Mutex
)

// Startup
// 启动回调执行器。
//
// ConnectAsync、AcceptAsync 与 AsyncStream 返回的 async.Future 由 rxp.Executors 完成回调，
// 握手本身在 task.Executor 上推进。未调用 Startup 时首次使用会创建默认执行器。
// 必须在第一次异步调用之前调用，之后调用返回错误。
func Startup(options ...rxp.Option) (err error) {
	executorsMu.Lock()
	defer executorsMu.Unlock()
	if executors != nil {
		return errors.New("executors already started", errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(fmt.Sprint(r), errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
		}
	}()
	executors = rxp.New(options...)
	return
}

// Shutdown
// 立即关闭回调执行器，不等待未完成的回调。
func Shutdown() error {
	return Executors().Close()
}

// ShutdownGracefully
// 等待所有回调完成后关闭执行器。
func ShutdownGracefully() error {
	return Executors().CloseGracefully()
}

// Executors
// 获取回调执行器。
func Executors() rxp.Executors {
	executorsOnce.Do(func() {
		executorsMu.Lock()
		defer executorsMu.Unlock()
		if executors == nil {
			executors = rxp.New()
		}
	})
	return executors
}

// withExecutors keeps executors already carried by ctx.
func withExecutors(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, exist := rxp.TryFrom(ctx); !exist {
		ctx = rxp.With(ctx, Executors())
	}
	return ctx
}
