package opentls

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/tls"
	"crypto/x509"

	"github.com/brickingsoft/opentls/pkg/metrics"
	"github.com/rs/zerolog"
)

// session is the state shared by the blocking and the polled streams.
type session struct {
	role      Role
	conn      *tls.Conn
	ec        *engineConn
	localLeaf *x509.Certificate
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// PeerCertificate
// 对端叶子证书。对端未出示证书时返回 nil。
func (s *session) PeerCertificate() *Certificate {
	state := s.conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil
	}
	return certificateOf(state.PeerCertificates[0])
}

// TLSServerEndPoint
// RFC 5929 tls-server-end-point 通道绑定值。
//
// 取服务端证书（客户端取对端证书，服务端取本端证书），按其签名算法的摘要
// 计算哈希，MD5 与 SHA-1 升级为 SHA-256。无法确定摘要（例如 Ed25519）或没有
// 证书时返回 nil。
func (s *session) TLSServerEndPoint() []byte {
	cert := s.localLeaf
	if s.role == RoleClient {
		state := s.conn.ConnectionState()
		if len(state.PeerCertificates) == 0 {
			return nil
		}
		cert = state.PeerCertificates[0]
	}
	if cert == nil {
		return nil
	}
	return tlsServerEndPoint(cert)
}

// Protocol returns the negotiated version.
func (s *session) Protocol() Protocol {
	return protocolOf(s.conn.ConnectionState().Version)
}

// ConnectionState
// 底层连接状态。
func (s *session) ConnectionState() tls.ConnectionState {
	return s.conn.ConnectionState()
}

func (s *session) Role() Role {
	return s.role
}

func tlsServerEndPoint(cert *x509.Certificate) []byte {
	switch cert.SignatureAlgorithm {
	case x509.MD2WithRSA, x509.MD5WithRSA, x509.SHA1WithRSA, x509.DSAWithSHA1, x509.ECDSAWithSHA1,
		x509.SHA256WithRSA, x509.SHA256WithRSAPSS, x509.DSAWithSHA256, x509.ECDSAWithSHA256:
		sum := sha256.Sum256(cert.Raw)
		return sum[:]
	case x509.SHA384WithRSA, x509.SHA384WithRSAPSS, x509.ECDSAWithSHA384:
		sum := sha512.Sum384(cert.Raw)
		return sum[:]
	case x509.SHA512WithRSA, x509.SHA512WithRSAPSS, x509.ECDSAWithSHA512:
		sum := sha512.Sum512(cert.Raw)
		return sum[:]
	default:
		return nil
	}
}
