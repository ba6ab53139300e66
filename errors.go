package opentls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	stderrors "errors"
	"net"
	"syscall"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/opentls/task"
	"github.com/brickingsoft/opentls/transport"
	"github.com/brickingsoft/rxp/async"
)

var (
	ErrConfiguration           = errors.Define("opentls: invalid configuration")
	ErrHandshake               = errors.Define("opentls: handshake failed")
	ErrCertificateVerification = errors.Define("opentls: certificate verify failed")
	ErrWouldBlock              = errors.Define("opentls: operation would block")
	ErrClosed                  = errors.Define("opentls: closed")
	ErrAbandoned               = errors.Define("opentls: handshake abandoned")
	ErrBusy                    = errors.Define("opentls: operation already in progress")
)

const (
	errMetaPkgKey  = "pkg"
	errMetaPkgVal  = "opentls"
	errMetaOpKey   = "op"
	errMetaRoleKey = "role"
)

const (
	opBuild     = "build"
	opIdentity  = "identity"
	opCert      = "certificate"
	opHandshake = "handshake"
	opRead      = "read"
	opWrite     = "write"
	opShutdown  = "shutdown"
)

// IsConfigurationError
// 是否为配置错误，包括身份与证书解析失败。
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsHandshakeError
// 是否为握手失败。
func IsHandshakeError(err error) bool {
	return errors.Is(err, ErrHandshake)
}

// IsCertificateVerificationError
// 是否为证书校验失败。它同时也是握手失败。
func IsCertificateVerificationError(err error) bool {
	return errors.Is(err, ErrCertificateVerification)
}

// IsWouldBlock
// 是否为暂时无法推进。
func IsWouldBlock(err error) bool {
	return isTransient(err)
}

// IsClosed
// 是否为已关闭。
func IsClosed(err error) bool {
	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		err = opErr.Err
	}
	return errors.Is(err, ErrClosed) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, transport.ErrClosed) ||
		errors.Is(err, task.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, async.UnexpectedContextFailed) ||
		errors.Is(err, async.ExecutorsClosed)
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	return err == ErrWouldBlock ||
		errors.Is(err, ErrWouldBlock) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EINTR)
}

func configurationError(op string, cause error) error {
	return errors.From(
		ErrConfiguration,
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaOpKey, op),
		errors.WithWrap(cause),
	)
}

func isVerificationFailure(cause error) bool {
	var (
		verifyErr    *tls.CertificateVerificationError
		authorityErr x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)
	return stderrors.As(cause, &verifyErr) ||
		stderrors.As(cause, &authorityErr) ||
		stderrors.As(cause, &hostnameErr) ||
		stderrors.As(cause, &invalidErr)
}

func handshakeError(role Role, cause error) error {
	if isVerificationFailure(cause) {
		cause = errors.From(
			ErrCertificateVerification,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithWrap(cause),
		)
	}
	return errors.From(
		ErrHandshake,
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaOpKey, opHandshake),
		errors.WithMeta(errMetaRoleKey, role.String()),
		errors.WithWrap(cause),
	)
}
