package opentls

import (
	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/opentls/pkg/metrics"
	"github.com/rs/zerolog"
)

const (
	DefaultMinProtocol = TLSv12
	DefaultMaxProtocol = ProtocolUnspecified
)

// ClientAuth
// 服务端对客户端证书的要求。
type ClientAuth int

const (
	ClientAuthNone ClientAuth = iota
	ClientAuthRequest
	ClientAuthRequire
)

func (c ClientAuth) String() string {
	switch c {
	case ClientAuthRequest:
		return "request"
	case ClientAuthRequire:
		return "require"
	default:
		return "none"
	}
}

// Options
// 连接器与接收器的配置。
//
// Identity、MinProtocol、MaxProtocol、Logger、Metrics 对两者都有效；
// RootCertificates 在接收器上用于校验客户端证书；其余字段只对一侧有效。
type Options struct {
	Identity               *Identity
	MinProtocol            Protocol
	MaxProtocol            Protocol
	RootCertificates       []*Certificate
	DisableBuiltInRoots    bool
	UseSNI                 bool
	AcceptInvalidCerts     bool
	AcceptInvalidHostnames bool
	ClientAuth             ClientAuth
	NextProtos             []string
	Logger                 zerolog.Logger
	Metrics                *metrics.Metrics
}

// DefaultOptions
// 默认配置：最低 TLS1.2，启用 SNI，校验证书与主机名。
func DefaultOptions() Options {
	return Options{
		MinProtocol: DefaultMinProtocol,
		MaxProtocol: DefaultMaxProtocol,
		UseSNI:      true,
		Logger:      zerolog.Nop(),
	}
}

type Option func(options *Options) (err error)

// WithIdentity
// 设置身份。客户端用于双向认证，服务端必需。
func WithIdentity(identity *Identity) Option {
	return func(options *Options) (err error) {
		if identity == nil {
			err = errors.New("identity is nil")
			return
		}
		options.Identity = identity
		return
	}
}

// WithMinProtocol
// 设置最低协议版本。ProtocolUnspecified 表示引擎支持的最低版本。
func WithMinProtocol(protocol Protocol) Option {
	return func(options *Options) (err error) {
		options.MinProtocol = protocol
		return
	}
}

// WithMaxProtocol
// 设置最高协议版本。ProtocolUnspecified 表示引擎支持的最高版本。
func WithMaxProtocol(protocol Protocol) Option {
	return func(options *Options) (err error) {
		options.MaxProtocol = protocol
		return
	}
}

// WithRootCertificate
// 追加信任的根证书。
func WithRootCertificate(cert *Certificate) Option {
	return func(options *Options) (err error) {
		if cert == nil {
			err = errors.New("root certificate is nil")
			return
		}
		options.RootCertificates = append(options.RootCertificates, cert)
		return
	}
}

// WithDisableBuiltInRoots
// 不加载系统根证书，只信任 WithRootCertificate 追加的证书。
func WithDisableBuiltInRoots(disable bool) Option {
	return func(options *Options) (err error) {
		options.DisableBuiltInRoots = disable
		return
	}
}

// WithSNI
// 是否发送 SNI。默认发送。关闭后仍按域名校验证书。
func WithSNI(use bool) Option {
	return func(options *Options) (err error) {
		options.UseSNI = use
		return
	}
}

// WithDangerAcceptInvalidCerts
// 接受任何服务端证书。
//
// 危险：这会让连接暴露于中间人攻击，只应在测试中使用。
func WithDangerAcceptInvalidCerts(accept bool) Option {
	return func(options *Options) (err error) {
		options.AcceptInvalidCerts = accept
		return
	}
}

// WithDangerAcceptInvalidHostnames
// 接受与域名不匹配的服务端证书，证书链仍会被校验。
//
// 危险：这会让连接暴露于中间人攻击，只应在测试中使用。
func WithDangerAcceptInvalidHostnames(accept bool) Option {
	return func(options *Options) (err error) {
		options.AcceptInvalidHostnames = accept
		return
	}
}

// WithClientAuth
// 设置接收器对客户端证书的要求。
func WithClientAuth(auth ClientAuth) Option {
	return func(options *Options) (err error) {
		if auth < ClientAuthNone || auth > ClientAuthRequire {
			err = errors.New("invalid client auth", errors.WithMeta("auth", auth.String()))
			return
		}
		options.ClientAuth = auth
		return
	}
}

// WithALPN
// 设置 ALPN 协议列表，按优先级排列。
func WithALPN(protocols ...string) Option {
	return func(options *Options) (err error) {
		options.NextProtos = append(options.NextProtos[:0:0], protocols...)
		return
	}
}

// WithLogger
// 设置日志。默认不输出。
func WithLogger(logger zerolog.Logger) Option {
	return func(options *Options) (err error) {
		options.Logger = logger
		return
	}
}

// WithMetrics
// 设置指标。默认不记录。
func WithMetrics(m *metrics.Metrics) Option {
	return func(options *Options) (err error) {
		options.Metrics = m
		return
	}
}

func buildOptions(options []Option) (Options, error) {
	opts := DefaultOptions()
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(&opts); err != nil {
			return opts, configurationError(opBuild, err)
		}
	}
	return opts, nil
}
