package opentls

import (
	"crypto/tls"
	"crypto/x509"
	"io"
	"sync/atomic"
	"time"

	"github.com/brickingsoft/opentls/pkg/metrics"
	"github.com/rs/zerolog"
)

// engineFactory holds what a single handshake needs. The config is private to
// the handshake.
type engineFactory struct {
	role      Role
	config    *tls.Config
	localLeaf *x509.Certificate
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

func (f *engineFactory) start(rw io.ReadWriter) (*session, *MidHandshake, error) {
	conn := newEngineConn(rw)
	var tc *tls.Conn
	if f.role == RoleServer {
		tc = tls.Server(conn, f.config)
	} else {
		tc = tls.Client(conn, f.config)
	}
	co := startCoroutine(conn, func() (int, error) {
		return 0, tc.Handshake()
	})
	mid := &MidHandshake{
		factory: f,
		co:      co,
		conn:    tc,
		started: time.Now(),
	}
	return mid.step()
}

// MidHandshake
// 因传输暂时无法推进而暂停的握手。
//
// 只能被 Handshake 或 Abandon 消费一次，重复消费会 panic。
// 对同步的阻塞传输而言，这个状态只在瞬时错误（EAGAIN / EINTR）后出现。
type MidHandshake struct {
	factory   *engineFactory
	co        *coroutine
	conn      *tls.Conn
	started   time.Time
	consumed  atomic.Bool
	suspended int
}

// Handshake
// 继续握手。完成时返回会话流，再次暂停时返回新的 MidHandshake。
func (m *MidHandshake) Handshake() (*Stream, *MidHandshake, error) {
	s, next, err := m.resume()
	if s == nil {
		return nil, next, err
	}
	return newStream(s), nil, nil
}

// Abandon
// 放弃握手，不再向传输写入任何数据，并关闭实现了 io.Closer 的传输。
func (m *MidHandshake) Abandon() error {
	m.consume()
	m.co.abandon()
	m.factory.metrics.RecordHandshake(m.factory.role.String(), metrics.OutcomeAbandoned, time.Since(m.started))
	m.factory.logger.Debug().Str("role", m.factory.role.String()).Int("suspended", m.suspended).Msg("handshake abandoned")
	return m.co.conn.Close()
}

// Role returns the side this handshake plays.
func (m *MidHandshake) Role() Role {
	return m.factory.role
}

func (m *MidHandshake) consume() {
	if !m.consumed.CompareAndSwap(false, true) {
		panic("opentls: MidHandshake resumed more than once")
	}
}

func (m *MidHandshake) resume() (*session, *MidHandshake, error) {
	m.consume()
	next := &MidHandshake{
		factory:   m.factory,
		co:        m.co,
		conn:      m.conn,
		started:   m.started,
		suspended: m.suspended,
	}
	return next.step()
}

func (m *MidHandshake) step() (*session, *MidHandshake, error) {
	f := m.factory
	role := f.role.String()
	if m.co.resume() {
		m.suspended++
		f.metrics.RecordSuspension(role)
		f.logger.Trace().Str("role", role).Int("suspended", m.suspended).Msg("handshake paused")
		return nil, m, nil
	}
	if err := m.co.err; err != nil {
		ferr := handshakeError(f.role, err)
		if IsCertificateVerificationError(ferr) {
			f.metrics.RecordVerifyFailure(role)
		}
		f.metrics.RecordHandshake(role, metrics.OutcomeFailure, time.Since(m.started))
		f.logger.Debug().Err(err).Str("role", role).Msg("handshake failed")
		return nil, nil, ferr
	}
	f.metrics.RecordHandshake(role, metrics.OutcomeSuccess, time.Since(m.started))
	state := m.conn.ConnectionState()
	f.logger.Debug().
		Str("role", role).
		Str("version", protocolOf(state.Version).String()).
		Str("cipher", tls.CipherSuiteName(state.CipherSuite)).
		Int("suspended", m.suspended).
		Msg("handshake completed")
	return &session{
		role:      f.role,
		conn:      m.conn,
		ec:        m.co.conn,
		localLeaf: f.localLeaf,
		logger:    f.logger,
		metrics:   f.metrics,
	}, nil, nil
}

// handshakeSync drives a handshake over a blocking transport. A pause can only
// follow a transient error there, so the same attempt is retried at once.
func handshakeSync(f *engineFactory, rw io.ReadWriter) (*Stream, error) {
	s, mid, err := f.start(rw)
	for mid != nil {
		s, mid, err = mid.resume()
	}
	if err != nil {
		return nil, err
	}
	return newStream(s), nil
}
