package opentls_test

import (
	"bytes"
	"os"
	"testing"

	"github.com/brickingsoft/opentls"
	"github.com/brickingsoft/opentls/internal/testcert"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDefaultOptions(t *testing.T) {
	options := opentls.DefaultOptions()
	assert.False(t, options.AcceptInvalidCerts)
	assert.False(t, options.AcceptInvalidHostnames)
	assert.True(t, options.UseSNI)
	assert.False(t, options.DisableBuiltInRoots)
	assert.Equal(t, opentls.TLSv12, options.MinProtocol)
	assert.Equal(t, opentls.ProtocolUnspecified, options.MaxProtocol)

	connector, err := opentls.NewConnector()
	require.NoError(t, err)
	assert.False(t, connector.DangerAcceptInvalidCerts())
	assert.False(t, connector.DangerAcceptInvalidHostnames())
	assert.True(t, connector.UseSNI())
	assert.Equal(t, opentls.TLSv12, connector.MinProtocol())
	assert.Equal(t, opentls.TLSv13, connector.MaxProtocol())
}

func TestNewConnector_DefaultsProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		builder := opentls.NewConnectorBuilder()
		if rapid.Bool().Draw(rt, "sni") {
			builder.UseSNI(rapid.Bool().Draw(rt, "useSNI"))
		}
		if rapid.Bool().Draw(rt, "maxSet") {
			builder.MaxProtocol(rapid.SampledFrom([]opentls.Protocol{opentls.TLSv12, opentls.TLSv13}).Draw(rt, "max"))
		}
		builder.DisableBuiltInRoots(rapid.Bool().Draw(rt, "noRoots"))
		connector, err := builder.Build()
		if err != nil {
			rt.Fatal(err)
		}
		if connector.DangerAcceptInvalidCerts() || connector.DangerAcceptInvalidHostnames() {
			rt.Fatal("danger flags enabled without being asked for")
		}
	})
}

func TestNewConnector_ProtocolErrors(t *testing.T) {
	_, err := opentls.NewConnector(opentls.WithMinProtocol(opentls.SSLv3))
	assert.True(t, opentls.IsConfigurationError(err))

	_, err = opentls.NewConnector(opentls.WithMaxProtocol(opentls.SSLv3))
	assert.True(t, opentls.IsConfigurationError(err))

	_, err = opentls.NewConnector(
		opentls.WithMinProtocol(opentls.TLSv13),
		opentls.WithMaxProtocol(opentls.TLSv12),
	)
	assert.True(t, opentls.IsConfigurationError(err))

	_, err = opentls.NewAcceptor(testIdentity(t), opentls.WithMinProtocol(opentls.SSLv3))
	assert.True(t, opentls.IsConfigurationError(err))

	connector, err := opentls.NewConnector(opentls.WithMinProtocol(opentls.ProtocolUnspecified))
	require.NoError(t, err)
	assert.Equal(t, opentls.TLSv10, connector.MinProtocol())
}

func TestNewConnector_NilOptions(t *testing.T) {
	_, err := opentls.NewConnector(opentls.WithIdentity(nil))
	assert.True(t, opentls.IsConfigurationError(err))

	_, err = opentls.NewConnector(opentls.WithRootCertificate(nil))
	assert.True(t, opentls.IsConfigurationError(err))

	_, err = opentls.NewAcceptor(nil)
	assert.True(t, opentls.IsConfigurationError(err))

	_, err = opentls.NewAcceptor(testIdentity(t), opentls.WithClientAuth(opentls.ClientAuth(9)))
	assert.True(t, opentls.IsConfigurationError(err))
}

func TestParseProtocol(t *testing.T) {
	for _, p := range []opentls.Protocol{opentls.SSLv3, opentls.TLSv10, opentls.TLSv11, opentls.TLSv12, opentls.TLSv13} {
		parsed, err := opentls.ParseProtocol(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
	_, err := opentls.ParseProtocol("TLSv9")
	assert.True(t, opentls.IsConfigurationError(err))
}

func TestIdentity_PKCS12(t *testing.T) {
	identity := testIdentity(t)
	assert.Equal(t, "localhost", identity.Certificate().X509().Subject.CommonName)
	chain := identity.Chain()
	require.Len(t, chain, 1)
	assert.True(t, chain[0].Equal(testRoot(t)))

	raw, err := os.ReadFile("testdata/leaf.pem")
	require.NoError(t, err)
	leaf, err := opentls.CertificateFromPEM(raw)
	require.NoError(t, err)
	assert.True(t, leaf.Equal(identity.Certificate()))
}

func TestIdentity_WrongPassword(t *testing.T) {
	raw, err := os.ReadFile("testdata/identity.p12")
	require.NoError(t, err)
	_, err = opentls.IdentityFromPKCS12(raw, "not the password")
	assert.True(t, opentls.IsConfigurationError(err))

	_, err = opentls.ReadIdentity(bytes.NewReader([]byte("garbage")), identityPassword)
	assert.True(t, opentls.IsConfigurationError(err))

	_, err = opentls.NewAcceptorFromPKCS12(bytes.NewReader(raw), "nope")
	assert.True(t, opentls.IsConfigurationError(err))
}

func TestIdentity_PEM(t *testing.T) {
	authority, err := testcert.NewAuthority("pem root")
	require.NoError(t, err)
	pair, err := authority.Issue(testcert.Options{CommonName: "pem.test", DNSNames: []string{"pem.test"}})
	require.NoError(t, err)

	bundle := append(append([]byte{}, pair.CertPEM...), authority.CertPEM...)
	identity, err := opentls.IdentityFromPEM(bundle, pair.KeyPEM)
	require.NoError(t, err)
	assert.Equal(t, "pem.test", identity.Certificate().X509().Subject.CommonName)
	require.Len(t, identity.Chain(), 1)
	assert.Equal(t, "pem root", identity.Chain()[0].X509().Subject.CommonName)

	other, err := testcert.SelfSigned(testcert.Options{})
	require.NoError(t, err)
	_, err = opentls.IdentityFromPEM(pair.CertPEM, other.KeyPEM)
	assert.True(t, opentls.IsConfigurationError(err))
}

func TestCertificate_Parse(t *testing.T) {
	root := testRoot(t)
	der, err := opentls.CertificateFromDER(root.DER())
	require.NoError(t, err)
	assert.True(t, der.Equal(root))

	again, err := opentls.CertificateFromPEM(root.PEM())
	require.NoError(t, err)
	assert.True(t, again.Equal(root))

	_, err = opentls.CertificateFromDER([]byte("not der"))
	assert.True(t, opentls.IsConfigurationError(err))
	_, err = opentls.CertificateFromPEM([]byte("not pem"))
	assert.True(t, opentls.IsConfigurationError(err))

	certs, err := opentls.CertificatesFromPEM(append(root.PEM(), testIdentity(t).Certificate().PEM()...))
	require.NoError(t, err)
	assert.Len(t, certs, 2)
}
