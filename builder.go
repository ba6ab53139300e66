package opentls

import (
	"github.com/brickingsoft/opentls/pkg/metrics"
	"github.com/rs/zerolog"
)

// ConnectorBuilder
// 链式构建连接器。
type ConnectorBuilder struct {
	options []Option
}

// NewConnectorBuilder
// 创建连接器构建器。
func NewConnectorBuilder() *ConnectorBuilder {
	return &ConnectorBuilder{}
}

func (b *ConnectorBuilder) Identity(identity *Identity) *ConnectorBuilder {
	b.options = append(b.options, WithIdentity(identity))
	return b
}

func (b *ConnectorBuilder) MinProtocol(protocol Protocol) *ConnectorBuilder {
	b.options = append(b.options, WithMinProtocol(protocol))
	return b
}

func (b *ConnectorBuilder) MaxProtocol(protocol Protocol) *ConnectorBuilder {
	b.options = append(b.options, WithMaxProtocol(protocol))
	return b
}

func (b *ConnectorBuilder) AddRootCertificate(cert *Certificate) *ConnectorBuilder {
	b.options = append(b.options, WithRootCertificate(cert))
	return b
}

func (b *ConnectorBuilder) DisableBuiltInRoots(disable bool) *ConnectorBuilder {
	b.options = append(b.options, WithDisableBuiltInRoots(disable))
	return b
}

func (b *ConnectorBuilder) UseSNI(use bool) *ConnectorBuilder {
	b.options = append(b.options, WithSNI(use))
	return b
}

func (b *ConnectorBuilder) DangerAcceptInvalidCerts(accept bool) *ConnectorBuilder {
	b.options = append(b.options, WithDangerAcceptInvalidCerts(accept))
	return b
}

func (b *ConnectorBuilder) DangerAcceptInvalidHostnames(accept bool) *ConnectorBuilder {
	b.options = append(b.options, WithDangerAcceptInvalidHostnames(accept))
	return b
}

func (b *ConnectorBuilder) ALPN(protocols ...string) *ConnectorBuilder {
	b.options = append(b.options, WithALPN(protocols...))
	return b
}

func (b *ConnectorBuilder) Logger(logger zerolog.Logger) *ConnectorBuilder {
	b.options = append(b.options, WithLogger(logger))
	return b
}

func (b *ConnectorBuilder) Metrics(m *metrics.Metrics) *ConnectorBuilder {
	b.options = append(b.options, WithMetrics(m))
	return b
}

// Build
// 创建连接器，错误同 NewConnector。
func (b *ConnectorBuilder) Build() (*Connector, error) {
	return NewConnector(b.options...)
}

// AcceptorBuilder
// 链式构建接收器。
type AcceptorBuilder struct {
	identity *Identity
	options  []Option
}

// NewAcceptorBuilder
// 以 identity 创建接收器构建器。
func NewAcceptorBuilder(identity *Identity) *AcceptorBuilder {
	return &AcceptorBuilder{identity: identity}
}

func (b *AcceptorBuilder) MinProtocol(protocol Protocol) *AcceptorBuilder {
	b.options = append(b.options, WithMinProtocol(protocol))
	return b
}

func (b *AcceptorBuilder) MaxProtocol(protocol Protocol) *AcceptorBuilder {
	b.options = append(b.options, WithMaxProtocol(protocol))
	return b
}

func (b *AcceptorBuilder) ClientAuth(auth ClientAuth) *AcceptorBuilder {
	b.options = append(b.options, WithClientAuth(auth))
	return b
}

func (b *AcceptorBuilder) AddRootCertificate(cert *Certificate) *AcceptorBuilder {
	b.options = append(b.options, WithRootCertificate(cert))
	return b
}

func (b *AcceptorBuilder) ALPN(protocols ...string) *AcceptorBuilder {
	b.options = append(b.options, WithALPN(protocols...))
	return b
}

func (b *AcceptorBuilder) Logger(logger zerolog.Logger) *AcceptorBuilder {
	b.options = append(b.options, WithLogger(logger))
	return b
}

func (b *AcceptorBuilder) Metrics(m *metrics.Metrics) *AcceptorBuilder {
	b.options = append(b.options, WithMetrics(m))
	return b
}

// Build
// 创建接收器，错误同 NewAcceptor。
func (b *AcceptorBuilder) Build() (*Acceptor, error) {
	return NewAcceptor(b.identity, b.options...)
}
