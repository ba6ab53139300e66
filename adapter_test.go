package opentls

import (
	"io"
	"sync/atomic"
	"testing"

	"github.com/brickingsoft/opentls/task"
	"github.com/brickingsoft/opentls/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scripted struct {
	reads     []result
	writes    []result
	readable  atomic.Int64
	writable  atomic.Int64
	lastWaker task.Waker
}

type result struct {
	n   int
	err error
}

func (s *scripted) TryRead(p []byte) (int, error) {
	r := s.reads[0]
	s.reads = s.reads[1:]
	return r.n, r.err
}

func (s *scripted) TryWrite(p []byte) (int, error) {
	r := s.writes[0]
	s.writes = s.writes[1:]
	return r.n, r.err
}

func (s *scripted) RegisterReadable(w task.Waker) {
	s.readable.Add(1)
	s.lastWaker = w
}

func (s *scripted) RegisterWritable(w task.Waker) {
	s.writable.Add(1)
	s.lastWaker = w
}

func (s *scripted) Close() error { return nil }

func TestAdapter_NotReadyRegistersWaker(t *testing.T) {
	tr := &scripted{
		reads:  []result{{0, transport.ErrNotReady}},
		writes: []result{{0, transport.ErrNotReady}},
	}
	a := newAdapter(tr)
	waker := task.WakerFunc(func() {})
	cx := task.NewContext(waker)
	a.enter(cx)
	defer a.leave()

	_, err := a.Read(make([]byte, 4))
	assert.Equal(t, ErrWouldBlock, err)
	assert.Equal(t, int64(1), tr.readable.Load())
	assert.NotNil(t, tr.lastWaker)

	_, err = a.Write([]byte("x"))
	assert.Equal(t, ErrWouldBlock, err)
	assert.Equal(t, int64(1), tr.writable.Load())
}

func TestAdapter_ProgressIsNeverWouldBlock(t *testing.T) {
	tr := &scripted{
		reads:  []result{{3, transport.ErrNotReady}, {2, nil}},
		writes: []result{{1, transport.ErrNotReady}},
	}
	a := newAdapter(tr)
	a.enter(task.NewContext(nil))
	defer a.leave()

	n, err := a.Read(make([]byte, 4))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = a.Read(make([]byte, 4))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = a.Write([]byte("xy"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(0), tr.readable.Load()+tr.writable.Load())
}

func TestAdapter_GenuineErrorsPassThrough(t *testing.T) {
	tr := &scripted{
		reads:  []result{{0, io.EOF}, {0, io.ErrUnexpectedEOF}},
		writes: []result{{0, io.ErrClosedPipe}},
	}
	a := newAdapter(tr)
	a.enter(task.NewContext(nil))
	defer a.leave()

	_, err := a.Read(make([]byte, 1))
	assert.Equal(t, io.EOF, err)
	_, err = a.Read(make([]byte, 1))
	assert.Equal(t, io.ErrUnexpectedEOF, err)
	assert.False(t, isTransient(err))
	_, err = a.Write([]byte("x"))
	assert.Equal(t, io.ErrClosedPipe, err)
	assert.Equal(t, int64(0), tr.readable.Load()+tr.writable.Load())
}

func TestAdapter_OutsidePollPanics(t *testing.T) {
	tr := &scripted{reads: []result{{0, transport.ErrNotReady}}}
	a := newAdapter(tr)
	assert.Panics(t, func() {
		_, _ = a.Read(make([]byte, 1))
	})
}
