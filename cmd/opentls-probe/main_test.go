package main

import (
	"bytes"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/brickingsoft/opentls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadProfile(t *testing.T) {
	path := writeProfile(t, `
min_protocol: tls1.2
max_protocol: TLSv1.3
sni: false
roots:
  - ../../testdata/root.pem
disable_builtin_roots: true
alpn: [h2, http/1.1]
client_auth: require
`)
	profile, err := loadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, "tls1.2", profile.MinProtocol)
	require.NotNil(t, profile.SNI)
	assert.False(t, *profile.SNI)
	assert.Equal(t, []string{"h2", "http/1.1"}, profile.ALPN)

	options, err := profile.options()
	require.NoError(t, err)
	connector, err := opentls.NewConnector(options...)
	require.NoError(t, err)
	assert.False(t, connector.UseSNI())
	assert.Equal(t, opentls.TLSv13, connector.MaxProtocol())
}

func TestProfile_Invalid(t *testing.T) {
	_, err := (&Profile{MinProtocol: "tls9"}).options()
	assert.True(t, opentls.IsConfigurationError(err))

	_, err = (&Profile{ClientAuth: "sometimes"}).options()
	assert.Error(t, err)

	_, err = (&Profile{Roots: []string{"missing.pem"}}).options()
	assert.Error(t, err)

	_, err = loadProfile(writeProfile(t, "roots: {"))
	assert.Error(t, err)
}

func TestConnectCommand(t *testing.T) {
	f, err := os.Open("../../testdata/identity.p12")
	require.NoError(t, err)
	identity, err := opentls.ReadIdentity(f, "hello")
	_ = f.Close()
	require.NoError(t, err)
	acceptor, err := opentls.NewAcceptor(identity)
	require.NoError(t, err)
	ln, err := opentls.Listen("tcp", "127.0.0.1:0", acceptor)
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		stream, acceptErr := ln.Accept()
		if acceptErr != nil {
			return
		}
		defer stream.Close()
		_, _ = io.Copy(io.Discard, stream)
	}()

	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	profile := writeProfile(t, "disable_builtin_roots: true\n")

	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{
		"connect", "--profile", profile, "--ca", "../../testdata/root.pem", "--log-level", "error",
		net.JoinHostPort("localhost", port),
	})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "protocol:")
	assert.Contains(t, out.String(), "CN=localhost")
	assert.Contains(t, out.String(), "channel binding:")
}

func TestConnectCommand_Untrusted(t *testing.T) {
	f, err := os.Open("../../testdata/identity.p12")
	require.NoError(t, err)
	identity, err := opentls.ReadIdentity(f, "hello")
	_ = f.Close()
	require.NoError(t, err)
	acceptor, err := opentls.NewAcceptor(identity)
	require.NoError(t, err)
	ln, err := opentls.Listen("tcp", "127.0.0.1:0", acceptor)
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		_, _ = ln.Accept()
	}()

	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"connect", "--profile", writeProfile(t, "disable_builtin_roots: true\n"), "--log-level", "error", ln.Addr().String()})
	err = cmd.Execute()
	assert.True(t, opentls.IsCertificateVerificationError(err))
}
