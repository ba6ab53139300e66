package opentls

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"io"

	"github.com/brickingsoft/errors"
	"golang.org/x/crypto/pkcs12"
)

// Identity
// 身份：私钥、对应的叶子证书以及从叶子到根方向排列的中间证书链。
type Identity struct {
	key   crypto.PrivateKey
	leaf  *x509.Certificate
	chain []*x509.Certificate
}

// IdentityFromPKCS12
// 解析 PKCS#12 归档。密码错误或内容损坏均返回配置错误。
func IdentityFromPKCS12(der []byte, password string) (*Identity, error) {
	blocks, err := pkcs12.ToPEM(der, password)
	if err != nil {
		return nil, configurationError(opIdentity, err)
	}
	var (
		key   crypto.PrivateKey
		certs []*x509.Certificate
	)
	for _, block := range blocks {
		switch block.Type {
		case "CERTIFICATE":
			cert, parseErr := x509.ParseCertificate(block.Bytes)
			if parseErr != nil {
				return nil, configurationError(opIdentity, parseErr)
			}
			certs = append(certs, cert)
		case "PRIVATE KEY":
			if key != nil {
				return nil, configurationError(opIdentity, errors.New("archive holds more than one private key"))
			}
			if key, err = parsePrivateKey(block.Bytes); err != nil {
				return nil, configurationError(opIdentity, err)
			}
		}
	}
	if key == nil {
		return nil, configurationError(opIdentity, errors.New("archive holds no private key"))
	}
	return newIdentity(key, certs)
}

// IdentityFromPEM
// 从 PEM 编码的证书（可带链）与私钥创建身份。
func IdentityFromPEM(certPEM []byte, keyPEM []byte) (*Identity, error) {
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, configurationError(opIdentity, err)
	}
	certs := make([]*x509.Certificate, 0, len(pair.Certificate))
	for _, der := range pair.Certificate {
		cert, parseErr := x509.ParseCertificate(der)
		if parseErr != nil {
			return nil, configurationError(opIdentity, parseErr)
		}
		certs = append(certs, cert)
	}
	return newIdentity(pair.PrivateKey, certs)
}

// ReadIdentity
// 读取 r 中的全部内容并按 PKCS#12 解析。
func ReadIdentity(r io.Reader, password string) (*Identity, error) {
	der, err := io.ReadAll(r)
	if err != nil {
		return nil, configurationError(opIdentity, err)
	}
	return IdentityFromPKCS12(der, password)
}

func newIdentity(key crypto.PrivateKey, certs []*x509.Certificate) (*Identity, error) {
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, configurationError(opIdentity, errors.New("private key cannot sign"))
	}
	leafAt := -1
	for i, cert := range certs {
		if pub, isPub := cert.PublicKey.(interface{ Equal(crypto.PublicKey) bool }); isPub && pub.Equal(signer.Public()) {
			leafAt = i
			break
		}
	}
	if leafAt < 0 {
		return nil, configurationError(opIdentity, errors.New("no certificate matches the private key"))
	}
	leaf := certs[leafAt]
	rest := make([]*x509.Certificate, 0, len(certs)-1)
	rest = append(rest, certs[:leafAt]...)
	rest = append(rest, certs[leafAt+1:]...)
	return &Identity{
		key:   key,
		leaf:  leaf,
		chain: orderChain(leaf, rest),
	}, nil
}

// orderChain walks issuers upward from leaf. Certificates that do not link
// into the walk keep their input order at the end.
func orderChain(leaf *x509.Certificate, certs []*x509.Certificate) []*x509.Certificate {
	chain := make([]*x509.Certificate, 0, len(certs))
	used := make([]bool, len(certs))
	current := leaf
	for len(chain) < len(certs) {
		if bytes.Equal(current.RawIssuer, current.RawSubject) {
			break
		}
		next := -1
		for i, cert := range certs {
			if !used[i] && bytes.Equal(cert.RawSubject, current.RawIssuer) {
				next = i
				break
			}
		}
		if next < 0 {
			break
		}
		used[next] = true
		current = certs[next]
		chain = append(chain, current)
	}
	for i, cert := range certs {
		if !used[i] {
			chain = append(chain, cert)
		}
	}
	return chain
}

// Certificate returns the leaf certificate.
func (id *Identity) Certificate() *Certificate {
	return certificateOf(id.leaf)
}

// Chain returns the intermediate certificates, ordered from the leaf's issuer
// towards the root.
func (id *Identity) Chain() []*Certificate {
	chain := make([]*Certificate, 0, len(id.chain))
	for _, cert := range id.chain {
		chain = append(chain, certificateOf(cert))
	}
	return chain
}

func (id *Identity) tlsCertificate() tls.Certificate {
	der := make([][]byte, 0, 1+len(id.chain))
	der = append(der, id.leaf.Raw)
	for _, cert := range id.chain {
		der = append(der, cert.Raw)
	}
	return tls.Certificate{
		Certificate: der,
		PrivateKey:  id.key,
		Leaf:        id.leaf,
	}
}

// parsePrivateKey tries PKCS #1, PKCS #8 and SEC 1 in that order. PKCS #12
// archives carry RSA keys as PKCS #1 and EC keys as SEC 1 behind a
// "PRIVATE KEY" header.
func parsePrivateKey(der []byte) (crypto.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		switch key := key.(type) {
		case *rsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey:
			return key, nil
		default:
			return nil, errors.New("found unknown private key type in PKCS#8 wrapping")
		}
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, errors.New("failed to parse private key")
}
