//go:build linux

package transport

import (
	"sync"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/opentls/pkg/sys"
	"github.com/brickingsoft/opentls/task"
)

// Poller
// 基于 epoll 的就绪通知器，一个后台协程负责分发事件。
type Poller struct {
	ep   *sys.EPoll
	mu   sync.Mutex
	regs map[int]*registration
	done chan struct{}
	err  error
}

// NewPoller
// 创建并启动通知器。
func NewPoller() (*Poller, error) {
	ep, err := sys.OpenEPoll()
	if err != nil {
		return nil, errors.New(
			"open poller failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, "poller"),
			errors.WithWrap(err),
		)
	}
	p := &Poller{
		ep:   ep,
		regs: make(map[int]*registration),
		done: make(chan struct{}),
	}
	go p.loop()
	return p, nil
}

func (p *Poller) loop() {
	defer close(p.done)
	p.err = p.ep.Wait(p.dispatch)
}

func (p *Poller) dispatch(fd int, events uint32) {
	p.mu.Lock()
	reg := p.regs[fd]
	p.mu.Unlock()
	if reg != nil {
		reg.fire(events)
	}
}

// Close
// 停止分发并关闭 epoll。已登记的唤醒器不会再被调用。
func (p *Poller) Close() error {
	if err := p.ep.Close(); err != nil {
		return err
	}
	<-p.done
	return nil
}

func (p *Poller) attach(fd int) *registration {
	reg := &registration{poller: p, fd: fd}
	p.mu.Lock()
	p.regs[fd] = reg
	p.mu.Unlock()
	return reg
}

func (p *Poller) detach(reg *registration) {
	p.mu.Lock()
	if p.regs[reg.fd] == reg {
		delete(p.regs, reg.fd)
	}
	p.mu.Unlock()
	reg.mu.Lock()
	if reg.added {
		_ = p.ep.Del(reg.fd)
		reg.added = false
	}
	reg.detached = true
	reg.reader = nil
	reg.writer = nil
	reg.mu.Unlock()
}

// registration tracks the one-shot interest of a single descriptor.
type registration struct {
	poller   *Poller
	fd       int
	mu       sync.Mutex
	added    bool
	detached bool
	interest uint32
	reader   task.Waker
	writer   task.Waker
}

func (reg *registration) want(events uint32, w task.Waker) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.detached {
		w.Wake()
		return nil
	}
	if events&sys.EventRead != 0 {
		reg.reader = w
	}
	if events&sys.EventWrite != 0 {
		reg.writer = w
	}
	reg.interest |= events
	return reg.arm()
}

func (reg *registration) arm() error {
	if !reg.added {
		if err := reg.poller.ep.Add(reg.fd, reg.interest); err != nil {
			return err
		}
		reg.added = true
		return nil
	}
	return reg.poller.ep.Mod(reg.fd, reg.interest)
}

func (reg *registration) fire(events uint32) {
	var wakers [2]task.Waker
	reg.mu.Lock()
	if sys.Readable(events) && reg.reader != nil {
		wakers[0] = reg.reader
		reg.reader = nil
		reg.interest &^= sys.EventRead
	}
	if sys.Writable(events) && reg.writer != nil {
		wakers[1] = reg.writer
		reg.writer = nil
		reg.interest &^= sys.EventWrite
	}
	if reg.interest != 0 && !reg.detached {
		_ = reg.arm()
	}
	reg.mu.Unlock()
	for _, w := range wakers {
		if w != nil {
			w.Wake()
		}
	}
}
