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

// Connector
// 客户端握手配置，创建后不可变，可在多个协程中共享。
type Connector struct {
	config                 *tls.Config
	roots                  *x509.CertPool
	useSNI                 bool
	acceptInvalidCerts     bool
	acceptInvalidHostnames bool
	logger                 zerolog.Logger
	metrics                *metrics.Metrics
}

// NewConnector
// 创建连接器。协议版本非法（如 SSLv3 或最低高于最高）时返回配置错误。
func NewConnector(options ...Option) (*Connector, error) {
	opts, err := buildOptions(options)
	if err != nil {
		return nil, err
	}
	lo, hi, err := versionRange(opts.MinProtocol, opts.MaxProtocol)
	if err != nil {
		return nil, err
	}
	roots := loadRoots(opts.RootCertificates, opts.DisableBuiltInRoots, opts.Logger)
	config := &tls.Config{
		MinVersion: lo,
		MaxVersion: hi,
		RootCAs:    roots,
		NextProtos: opts.NextProtos,
	}
	if opts.Identity != nil {
		config.Certificates = []tls.Certificate{opts.Identity.tlsCertificate()}
	}
	if opts.AcceptInvalidCerts {
		opts.Logger.Warn().Msg("certificate verification is disabled")
	} else if opts.AcceptInvalidHostnames {
		opts.Logger.Warn().Msg("hostname verification is disabled")
	}
	return &Connector{
		config:                 config,
		roots:                  roots,
		useSNI:                 opts.UseSNI,
		acceptInvalidCerts:     opts.AcceptInvalidCerts,
		acceptInvalidHostnames: opts.AcceptInvalidHostnames,
		logger:                 opts.Logger,
		metrics:                opts.Metrics,
	}, nil
}

func loadRoots(extra []*Certificate, disableBuiltIn bool, logger zerolog.Logger) *x509.CertPool {
	var pool *x509.CertPool
	if !disableBuiltIn {
		system, err := x509.SystemCertPool()
		if err != nil {
			logger.Debug().Err(err).Msg("load built-in roots failed")
		} else {
			pool = system
		}
	}
	if pool == nil {
		pool = x509.NewCertPool()
	}
	for _, cert := range extra {
		pool.AddCert(cert.cert)
	}
	return pool
}

// UseSNI reports whether the server name indication is sent.
func (c *Connector) UseSNI() bool {
	return c.useSNI
}

// DangerAcceptInvalidCerts reports whether server certificates are accepted unchecked.
func (c *Connector) DangerAcceptInvalidCerts() bool {
	return c.acceptInvalidCerts
}

// DangerAcceptInvalidHostnames reports whether hostname mismatches are accepted.
func (c *Connector) DangerAcceptInvalidHostnames() bool {
	return c.acceptInvalidHostnames
}

// MinProtocol returns the lowest version offered.
func (c *Connector) MinProtocol() Protocol {
	return protocolOf(c.config.MinVersion)
}

// MaxProtocol returns the highest version offered.
func (c *Connector) MaxProtocol() Protocol {
	return protocolOf(c.config.MaxVersion)
}

func (c *Connector) factory(domain string) *engineFactory {
	config := c.config.Clone()
	if c.useSNI {
		config.ServerName = domain
	}
	switch {
	case c.acceptInvalidCerts:
		config.InsecureSkipVerify = true
	case !c.useSNI || c.acceptInvalidHostnames:
		// crypto/tls only checks hostnames against ServerName, so the chain
		// is verified here instead.
		host := domain
		if c.acceptInvalidHostnames {
			host = ""
		}
		config.InsecureSkipVerify = true
		config.VerifyConnection = verifyPeer(c.roots, host)
	}
	return &engineFactory{
		role:    RoleClient,
		config:  config,
		logger:  c.logger,
		metrics: c.metrics,
	}
}

func verifyPeer(roots *x509.CertPool, host string) func(tls.ConnectionState) error {
	return func(state tls.ConnectionState) error {
		if len(state.PeerCertificates) == 0 {
			return errors.New("server presented no certificate")
		}
		opts := x509.VerifyOptions{
			Roots:         roots,
			DNSName:       host,
			Intermediates: x509.NewCertPool(),
		}
		for _, cert := range state.PeerCertificates[1:] {
			opts.Intermediates.AddCert(cert)
		}
		if _, err := state.PeerCertificates[0].Verify(opts); err != nil {
			return &tls.CertificateVerificationError{UnverifiedCertificates: state.PeerCertificates, Err: err}
		}
		return nil
	}
}

// StartHandshake
// 在 rw 上开始握手。rw 暂时无法推进（返回 ErrWouldBlock、EAGAIN 或 EINTR）时
// 返回 MidHandshake，由调用方决定何时继续。
func (c *Connector) StartHandshake(domain string, rw io.ReadWriter) (*Stream, *MidHandshake, error) {
	s, mid, err := c.factory(domain).start(rw)
	if s == nil {
		return nil, mid, err
	}
	return newStream(s), nil, nil
}

// Connect
// 在阻塞传输上完成握手。
//
// domain 用于 SNI 与证书校验。失败时 rw 的所有权仍归调用方。
func (c *Connector) Connect(domain string, rw io.ReadWriter) (*Stream, error) {
	return handshakeSync(c.factory(domain), rw)
}

// Handshake
// 在异步传输上创建尚未开始的握手，由调用方轮询或 Spawn。
func (c *Connector) Handshake(domain string, t transport.AsyncTransport) *AsyncHandshake {
	return newAsyncHandshake(c.factory(domain), t)
}

// ConnectAsync
// 在 exec 上完成异步握手。
func (c *Connector) ConnectAsync(ctx context.Context, exec *task.Executor, domain string, t transport.AsyncTransport) async.Future[*AsyncStream] {
	return c.Handshake(domain, t).Spawn(ctx, exec)
}

// Connect
// 使用默认连接器完成异步握手。
func Connect(ctx context.Context, exec *task.Executor, domain string, t transport.AsyncTransport) async.Future[*AsyncStream] {
	connector, err := NewConnector()
	if err != nil {
		return async.FailedImmediately[*AsyncStream](withExecutors(ctx), err)
	}
	return connector.ConnectAsync(ctx, exec, domain, t)
}
