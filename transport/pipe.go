package transport

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/opentls/task"
)

const DefaultPipeCapacity = 16 * 1024

// Pipe
// 创建内存中的双工非阻塞管道，每个方向最多缓存 capacity 字节。
//
// 返回的两端互为对端，capacity 不大于 0 时使用 DefaultPipeCapacity。
func Pipe(capacity int) (*PipeEnd, *PipeEnd) {
	if capacity <= 0 {
		capacity = DefaultPipeCapacity
	}
	ab := &lane{capacity: capacity}
	ba := &lane{capacity: capacity}
	return &PipeEnd{in: ba, out: ab}, &PipeEnd{in: ab, out: ba}
}

// PipeEnd
// 管道的一端。
type PipeEnd struct {
	in     *lane
	out    *lane
	closed atomic.Bool
	reads  atomic.Int64
	writes atomic.Int64
}

func (end *PipeEnd) TryRead(p []byte) (n int, err error) {
	if end.closed.Load() {
		err = errors.From(ErrClosed, errors.WithMeta(errMetaPkgKey, errMetaPkgVal), errors.WithMeta(errMetaOpKey, "read"))
		return
	}
	end.reads.Add(1)
	n, err = end.in.read(p)
	return
}

func (end *PipeEnd) TryWrite(p []byte) (n int, err error) {
	if end.closed.Load() {
		err = errors.From(ErrClosed, errors.WithMeta(errMetaPkgKey, errMetaPkgVal), errors.WithMeta(errMetaOpKey, "write"))
		return
	}
	end.writes.Add(1)
	n, err = end.out.write(p)
	return
}

func (end *PipeEnd) RegisterReadable(w task.Waker) {
	end.in.registerReader(w)
}

func (end *PipeEnd) RegisterWritable(w task.Waker) {
	end.out.registerWriter(w)
}

// CloseWrite
// 关闭写方向，对端读完缓存后得到 io.EOF。
func (end *PipeEnd) CloseWrite() error {
	end.out.closeWrite()
	return nil
}

// Close
// 关闭两个方向。重复关闭无效。
func (end *PipeEnd) Close() error {
	if !end.closed.CompareAndSwap(false, true) {
		return nil
	}
	end.out.closeWrite()
	end.in.closeRead()
	return nil
}

// Attempts returns how many TryRead and TryWrite calls reached the buffers.
func (end *PipeEnd) Attempts() (reads int64, writes int64) {
	return end.reads.Load(), end.writes.Load()
}

// Buffered returns how many bytes wait to be read by this end.
func (end *PipeEnd) Buffered() int {
	end.in.mu.Lock()
	defer end.in.mu.Unlock()
	return len(end.in.buf)
}

// lane is one direction of a pipe.
type lane struct {
	mu         sync.Mutex
	buf        []byte
	capacity   int
	eof        bool
	readerGone bool
	reader     task.Waker
	writer     task.Waker
}

func (l *lane) read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return
	}
	l.mu.Lock()
	if len(l.buf) == 0 {
		eof := l.eof
		l.mu.Unlock()
		if eof {
			err = io.EOF
			return
		}
		err = ErrNotReady
		return
	}
	n = copy(p, l.buf)
	l.buf = append(l.buf[:0], l.buf[n:]...)
	w := l.writer
	l.writer = nil
	l.mu.Unlock()
	if w != nil {
		w.Wake()
	}
	return
}

func (l *lane) write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return
	}
	l.mu.Lock()
	if l.readerGone {
		l.mu.Unlock()
		err = io.ErrClosedPipe
		return
	}
	if l.eof {
		l.mu.Unlock()
		err = errors.From(ErrClosed, errors.WithMeta(errMetaPkgKey, errMetaPkgVal), errors.WithMeta(errMetaOpKey, "write"))
		return
	}
	space := l.capacity - len(l.buf)
	if space <= 0 {
		l.mu.Unlock()
		err = ErrNotReady
		return
	}
	n = min(space, len(p))
	l.buf = append(l.buf, p[:n]...)
	w := l.reader
	l.reader = nil
	l.mu.Unlock()
	if w != nil {
		w.Wake()
	}
	return
}

func (l *lane) registerReader(w task.Waker) {
	l.mu.Lock()
	if len(l.buf) > 0 || l.eof {
		l.mu.Unlock()
		w.Wake()
		return
	}
	l.reader = w
	l.mu.Unlock()
}

func (l *lane) registerWriter(w task.Waker) {
	l.mu.Lock()
	if len(l.buf) < l.capacity || l.readerGone || l.eof {
		l.mu.Unlock()
		w.Wake()
		return
	}
	l.writer = w
	l.mu.Unlock()
}

func (l *lane) closeWrite() {
	l.mu.Lock()
	l.eof = true
	r := l.reader
	l.reader = nil
	l.mu.Unlock()
	if r != nil {
		r.Wake()
	}
}

func (l *lane) closeRead() {
	l.mu.Lock()
	l.readerGone = true
	l.buf = nil
	w := l.writer
	l.writer = nil
	l.mu.Unlock()
	if w != nil {
		w.Wake()
	}
}
