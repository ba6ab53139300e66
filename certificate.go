package opentls

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"

	"github.com/brickingsoft/errors"
)

// Certificate
// X.509 证书。
type Certificate struct {
	cert *x509.Certificate
}

// CertificateFromDER
// 解析 DER 编码的证书。
func CertificateFromDER(der []byte) (*Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, configurationError(opCert, err)
	}
	return &Certificate{cert: cert}, nil
}

// CertificateFromPEM
// 解析 PEM 中第一个 CERTIFICATE 块。
func CertificateFromPEM(pemBytes []byte) (*Certificate, error) {
	certs, err := CertificatesFromPEM(pemBytes)
	if err != nil {
		return nil, err
	}
	return certs[0], nil
}

// CertificatesFromPEM
// 解析 PEM 中全部 CERTIFICATE 块，其余类型的块被跳过。
func CertificatesFromPEM(pemBytes []byte) ([]*Certificate, error) {
	var certs []*Certificate
	rest := pemBytes
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := CertificateFromDER(block.Bytes)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, configurationError(opCert, errors.New("no CERTIFICATE block found in PEM input"))
	}
	return certs, nil
}

func certificateOf(cert *x509.Certificate) *Certificate {
	if cert == nil {
		return nil
	}
	return &Certificate{cert: cert}
}

// DER returns the DER encoding of the certificate.
func (c *Certificate) DER() []byte {
	return bytes.Clone(c.cert.Raw)
}

// PEM returns the certificate as a single PEM block.
func (c *Certificate) PEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.cert.Raw})
}

// X509 returns the parsed certificate. It must not be modified.
func (c *Certificate) X509() *x509.Certificate {
	return c.cert
}

// Equal reports whether both certificates have the same DER encoding.
func (c *Certificate) Equal(other *Certificate) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.cert.Equal(other.cert)
}
