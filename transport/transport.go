package transport

import (
	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/opentls/task"
)

var (
	ErrNotReady = errors.Define("transport: not ready")
	ErrClosed   = errors.Define("transport: use of closed transport")
)

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "transport"
	errMetaOpKey  = "op"
)

// AsyncTransport
// 非阻塞字节流传输。
//
// TryRead 与 TryWrite 不会阻塞：暂时无法推进时返回 ErrNotReady。
// 返回 ErrNotReady 之后，调用方需要通过 RegisterReadable / RegisterWritable
// 登记唤醒器，传输在就绪时调用它一次。登记时若已经就绪，唤醒器会被立即调用。
//
// 每个方向同一时刻只保留最后登记的唤醒器。TryRead 在对端关闭后返回 (0, io.EOF)。
type AsyncTransport interface {
	TryRead(p []byte) (n int, err error)
	TryWrite(p []byte) (n int, err error)
	RegisterReadable(w task.Waker)
	RegisterWritable(w task.Waker)
	Close() error
}

// IsNotReady
// 是否为未就绪错误。
func IsNotReady(err error) bool {
	return errors.Is(err, ErrNotReady)
}
