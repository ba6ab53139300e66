//go:build linux

package sys

import (
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	EventRead  = unix.EPOLLIN | unix.EPOLLRDHUP
	EventWrite = unix.EPOLLOUT
	eventError = unix.EPOLLERR | unix.EPOLLHUP
)

// Readable reports whether events wake a reader. Errors and hangups wake both directions.
func Readable(events uint32) bool {
	return events&(EventRead|eventError) != 0
}

// Writable reports whether events wake a writer.
func Writable(events uint32) bool {
	return events&(EventWrite|eventError) != 0
}

func OpenEPoll() (*EPoll, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("eventfd", err)
	}
	p := &EPoll{fd: fd, wfd: wfd, done: make(chan struct{})}
	if err = unix.EpollCtl(fd, unix.EPOLL_CTL_ADD, wfd, &unix.EpollEvent{Fd: int32(wfd), Events: unix.EPOLLIN}); err != nil {
		_ = unix.Close(wfd)
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("epoll_ctl", err)
	}
	return p, nil
}

// EPoll
// epoll 实例，带 eventfd 唤醒。
//
// 所有兴趣都以 EPOLLONESHOT 注册，事件投递后需要 Mod 重新武装。
type EPoll struct {
	fd      int
	wfd     int
	closed  atomic.Bool
	waiting atomic.Bool
	done    chan struct{}
	once    sync.Once
}

func (p *EPoll) Wakeup() error {
	var x uint64 = 1
	_, err := unix.Write(p.wfd, (*(*[8]byte)(unsafe.Pointer(&x)))[:])
	if err != nil && err != unix.EAGAIN {
		return os.NewSyscallError("write", err)
	}
	return nil
}

// Wait dispatches events until Close. Only one goroutine may call it.
func (p *EPoll) Wait(iter func(fd int, events uint32)) error {
	if !p.waiting.CompareAndSwap(false, true) {
		return os.ErrInvalid
	}
	defer close(p.done)
	events := make([]unix.EpollEvent, 64)
	for {
		if p.closed.Load() {
			return nil
		}
		n, err := unix.EpollWait(p.fd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return os.NewSyscallError("epoll_wait", err)
		}
		for i := 0; i < n; i++ {
			if fd := int(events[i].Fd); fd != p.wfd {
				iter(fd, events[i].Events)
			} else {
				var data [8]byte
				_, _ = unix.Read(p.wfd, data[:])
			}
		}
	}
}

// Close stops Wait and releases both descriptors.
func (p *EPoll) Close() (err error) {
	p.once.Do(func() {
		p.closed.Store(true)
		if p.waiting.Load() {
			_ = p.Wakeup()
			<-p.done
		}
		if cErr := unix.Close(p.wfd); cErr != nil {
			err = os.NewSyscallError("close", cErr)
		}
		if cErr := unix.Close(p.fd); cErr != nil && err == nil {
			err = os.NewSyscallError("close", cErr)
		}
	})
	return
}

func (p *EPoll) Add(fd int, events uint32) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, events)
}

func (p *EPoll) Mod(fd int, events uint32) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, events)
}

func (p *EPoll) Del(fd int) error {
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{Fd: int32(fd)}); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

func (p *EPoll) ctl(op int, fd int, events uint32) error {
	ev := &unix.EpollEvent{Fd: int32(fd), Events: events | unix.EPOLLONESHOT}
	if err := unix.EpollCtl(p.fd, op, fd, ev); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}
