package opentls

import (
	"io"
	"sync"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/opentls/pkg/metrics"
)

// Stream
// 握手完成后的会话流，工作在阻塞传输之上。
type Stream struct {
	session
	shutdownOnce sync.Once
	shutdownErr  error
}

func newStream(s *session) *Stream {
	return &Stream{session: *s}
}

// Read
// 读取应用数据。对端发送 close_notify 后返回 io.EOF。
func (s *Stream) Read(p []byte) (int, error) {
	return s.conn.Read(p)
}

// Write
// 写入应用数据。
func (s *Stream) Write(p []byte) (int, error) {
	return s.conn.Write(p)
}

// Shutdown
// 发送 close_notify 关闭写方向，传输保持打开。
//
// 可以重复调用，对端已经关闭的情况同样视为成功。
func (s *Stream) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(s.conn.CloseWrite())
	})
	return s.shutdownErr
}

func (s *session) shutdown(err error) error {
	role := s.role.String()
	if err == nil || errors.Is(err, io.EOF) {
		s.metrics.RecordShutdown(role, metrics.OutcomeSuccess)
		return nil
	}
	s.metrics.RecordShutdown(role, metrics.OutcomeFailure)
	s.logger.Debug().Err(err).Str("role", role).Msg("shutdown failed")
	return errors.New(
		"shutdown failed",
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaOpKey, opShutdown),
		errors.WithWrap(err),
	)
}

// Close
// 发送 close_notify 并关闭传输。
func (s *Stream) Close() error {
	return s.conn.Close()
}

// Transport
// 握手时传入的传输。
func (s *Stream) Transport() io.ReadWriter {
	return s.ec.rw
}
