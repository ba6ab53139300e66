package opentls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/opentls/pkg/metrics"
	"github.com/brickingsoft/opentls/task"
	"github.com/brickingsoft/opentls/transport"
	"github.com/brickingsoft/rxp/async"
	"github.com/rs/zerolog"
)

// Acceptor
// 服务端握手配置，创建后不可变，可在多个协程中共享。
type Acceptor struct {
	config  *tls.Config
	leaf    *x509.Certificate
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewAcceptor
// 以 identity 创建接收器。
func NewAcceptor(identity *Identity, options ...Option) (*Acceptor, error) {
	if identity == nil {
		return nil, configurationError(opBuild, errors.New("identity is nil"))
	}
	options = append(options[:len(options):len(options)], WithIdentity(identity))
	opts, err := buildOptions(options)
	if err != nil {
		return nil, err
	}
	lo, hi, err := versionRange(opts.MinProtocol, opts.MaxProtocol)
	if err != nil {
		return nil, err
	}
	config := &tls.Config{
		MinVersion:   lo,
		MaxVersion:   hi,
		Certificates: []tls.Certificate{opts.Identity.tlsCertificate()},
		NextProtos:   opts.NextProtos,
	}
	switch opts.ClientAuth {
	case ClientAuthRequest:
		config.ClientAuth = tls.VerifyClientCertIfGiven
	case ClientAuthRequire:
		config.ClientAuth = tls.RequireAndVerifyClientCert
	default:
		config.ClientAuth = tls.NoClientCert
	}
	if opts.ClientAuth != ClientAuthNone {
		config.ClientCAs = loadRoots(opts.RootCertificates, opts.DisableBuiltInRoots, opts.Logger)
	}
	return &Acceptor{
		config:  config,
		leaf:    opts.Identity.leaf,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

// NewAcceptorFromPKCS12
// 从 PKCS#12 内容创建接收器。
func NewAcceptorFromPKCS12(r io.Reader, password string, options ...Option) (*Acceptor, error) {
	identity, err := ReadIdentity(r, password)
	if err != nil {
		return nil, err
	}
	return NewAcceptor(identity, options...)
}

// Certificate returns the leaf certificate presented to clients.
func (a *Acceptor) Certificate() *Certificate {
	return certificateOf(a.leaf)
}

// MinProtocol returns the lowest version accepted.
func (a *Acceptor) MinProtocol() Protocol {
	return protocolOf(a.config.MinVersion)
}

// MaxProtocol returns the highest version accepted.
func (a *Acceptor) MaxProtocol() Protocol {
	return protocolOf(a.config.MaxVersion)
}

func (a *Acceptor) factory() *engineFactory {
	return &engineFactory{
		role:      RoleServer,
		config:    a.config.Clone(),
		localLeaf: a.leaf,
		logger:    a.logger,
		metrics:   a.metrics,
	}
}

// StartHandshake
// 在 rw 上开始握手，语义同 Connector.StartHandshake。
func (a *Acceptor) StartHandshake(rw io.ReadWriter) (*Stream, *MidHandshake, error) {
	s, mid, err := a.factory().start(rw)
	if s == nil {
		return nil, mid, err
	}
	return newStream(s), nil, nil
}

// Accept
// 在阻塞传输上完成握手。失败时 rw 的所有权仍归调用方。
func (a *Acceptor) Accept(rw io.ReadWriter) (*Stream, error) {
	return handshakeSync(a.factory(), rw)
}

// Handshake
// 在异步传输上创建尚未开始的握手。
func (a *Acceptor) Handshake(t transport.AsyncTransport) *AsyncHandshake {
	return newAsyncHandshake(a.factory(), t)
}

// AcceptAsync
// 在 exec 上完成异步握手。
func (a *Acceptor) AcceptAsync(ctx context.Context, exec *task.Executor, t transport.AsyncTransport) async.Future[*AsyncStream] {
	return a.Handshake(t).Spawn(ctx, exec)
}

// Accept
// 以 PKCS#12 身份创建接收器并完成异步握手。
func Accept(ctx context.Context, exec *task.Executor, r io.Reader, password string, t transport.AsyncTransport) async.Future[*AsyncStream] {
	acceptor, err := NewAcceptorFromPKCS12(r, password)
	if err != nil {
		return async.FailedImmediately[*AsyncStream](withExecutors(ctx), err)
	}
	return acceptor.AcceptAsync(ctx, exec, t)
}
