package opentls_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"net"
	"testing"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/opentls"
	"github.com/brickingsoft/opentls/internal/testcert"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	cli, srv := tcpPair(t)
	result := serve(testAcceptor(t), srv)

	stream, err := trustingConnector(t).Connect("localhost", cli)
	if err != nil {
		t.Error(err)
		return
	}
	res := <-result
	if res.err != nil {
		t.Error(res.err)
		return
	}

	if _, err = stream.Write([]byte("hello")); err != nil {
		t.Error(err)
		return
	}
	buf := make([]byte, 5)
	if _, err = io.ReadFull(res.stream, buf); err != nil {
		t.Error(err)
		return
	}
	if _, err = res.stream.Write([]byte("world")); err != nil {
		t.Error(err)
		return
	}
	reply := make([]byte, 5)
	if _, err = io.ReadFull(stream, reply); err != nil {
		t.Error(err)
		return
	}
	t.Log("server got:", string(buf), "client got:", string(reply))
	if string(buf) != "hello" || string(reply) != "world" {
		t.Error("unexpected payloads")
	}
	if stream.Transport() != cli {
		t.Error("stream does not expose its transport")
	}
}

func TestConnect_UntrustedRoot(t *testing.T) {
	cli, srv := tcpPair(t)
	result := serve(testAcceptor(t), srv)

	connector, err := opentls.NewConnector(opentls.WithDisableBuiltInRoots(true))
	require.NoError(t, err)
	_, err = connector.Connect("localhost", cli)
	require.Error(t, err)
	assert.True(t, opentls.IsHandshakeError(err))
	assert.True(t, opentls.IsCertificateVerificationError(err))
	t.Log(err)

	_ = cli.Close()
	res := <-result
	assert.Error(t, res.err)
	assert.True(t, opentls.IsHandshakeError(res.err))
}

func TestConnect_DangerAcceptInvalidCerts(t *testing.T) {
	cli, srv := tcpPair(t)
	result := serve(testAcceptor(t), srv)

	connector, err := opentls.NewConnector(
		opentls.WithDisableBuiltInRoots(true),
		opentls.WithDangerAcceptInvalidCerts(true),
	)
	require.NoError(t, err)
	stream, err := connector.Connect("not-the-right-name.example", cli)
	require.NoError(t, err)
	require.NoError(t, (<-result).err)
	assert.NotNil(t, stream.PeerCertificate())
}

func TestConnect_HostnameMismatch(t *testing.T) {
	cli, srv := tcpPair(t)
	result := serve(testAcceptor(t), srv)

	_, err := trustingConnector(t).Connect("example.com", cli)
	require.Error(t, err)
	assert.True(t, opentls.IsCertificateVerificationError(err))
	_ = cli.Close()
	<-result
}

func TestConnect_DangerAcceptInvalidHostnames(t *testing.T) {
	cli, srv := tcpPair(t)
	result := serve(testAcceptor(t), srv)

	stream, err := trustingConnector(t, opentls.WithDangerAcceptInvalidHostnames(true)).Connect("example.com", cli)
	require.NoError(t, err)
	require.NoError(t, (<-result).err)
	assert.Equal(t, "localhost", stream.PeerCertificate().X509().Subject.CommonName)
}

func TestConnect_InvalidHostnamesStillCheckChain(t *testing.T) {
	cli, srv := tcpPair(t)
	result := serve(testAcceptor(t), srv)

	connector, err := opentls.NewConnector(
		opentls.WithDisableBuiltInRoots(true),
		opentls.WithDangerAcceptInvalidHostnames(true),
	)
	require.NoError(t, err)
	_, err = connector.Connect("localhost", cli)
	assert.True(t, opentls.IsCertificateVerificationError(err))
	_ = cli.Close()
	<-result
}

func TestConnect_WithoutSNI(t *testing.T) {
	cli, srv := tcpPair(t)
	result := serve(testAcceptor(t), srv)

	stream, err := trustingConnector(t, opentls.WithSNI(false)).Connect("localhost", cli)
	require.NoError(t, err)
	res := <-result
	require.NoError(t, res.err)
	assert.Empty(t, res.stream.ConnectionState().ServerName)
	assert.Empty(t, stream.ConnectionState().ServerName)
}

func TestConnect_WithoutSNIStillChecksHostname(t *testing.T) {
	cli, srv := tcpPair(t)
	result := serve(testAcceptor(t), srv)

	_, err := trustingConnector(t, opentls.WithSNI(false)).Connect("example.com", cli)
	assert.True(t, opentls.IsCertificateVerificationError(err))
	_ = cli.Close()
	<-result
}

func TestConnect_SNISent(t *testing.T) {
	cli, srv := tcpPair(t)
	result := serve(testAcceptor(t), srv)

	_, err := trustingConnector(t).Connect("localhost", cli)
	require.NoError(t, err)
	res := <-result
	require.NoError(t, res.err)
	assert.Equal(t, "localhost", res.stream.ConnectionState().ServerName)
}

func TestConnect_MaxProtocol(t *testing.T) {
	cli, srv := tcpPair(t)
	result := serve(testAcceptor(t), srv)

	stream, err := trustingConnector(t, opentls.WithMaxProtocol(opentls.TLSv12)).Connect("localhost", cli)
	require.NoError(t, err)
	require.NoError(t, (<-result).err)
	assert.Equal(t, opentls.TLSv12, stream.Protocol())
}

func TestConnect_ProtocolMismatch(t *testing.T) {
	cli, srv := tcpPair(t)
	result := serve(testAcceptor(t, opentls.WithMinProtocol(opentls.TLSv13)), srv)

	_, err := trustingConnector(t, opentls.WithMaxProtocol(opentls.TLSv12)).Connect("localhost", cli)
	require.Error(t, err)
	assert.True(t, opentls.IsHandshakeError(err))
	assert.False(t, opentls.IsCertificateVerificationError(err))
	_ = cli.Close()
	<-result
}

func TestStream_PeerCertificateAndChannelBinding(t *testing.T) {
	cli, srv := tcpPair(t)
	result := serve(testAcceptor(t), srv)

	stream, err := trustingConnector(t).Connect("localhost", cli)
	require.NoError(t, err)
	res := <-result
	require.NoError(t, res.err)

	leaf := testIdentity(t).Certificate()
	require.True(t, leaf.Equal(stream.PeerCertificate()))
	assert.Nil(t, res.stream.PeerCertificate())

	expected := sha256.Sum256(leaf.DER())
	assert.Equal(t, expected[:], stream.TLSServerEndPoint())
	assert.Equal(t, expected[:], res.stream.TLSServerEndPoint())
}

func TestStream_Shutdown(t *testing.T) {
	cli, srv := tcpPair(t)
	result := serve(testAcceptor(t), srv)

	stream, err := trustingConnector(t).Connect("localhost", cli)
	require.NoError(t, err)
	res := <-result
	require.NoError(t, res.err)

	require.NoError(t, stream.Shutdown())
	require.NoError(t, stream.Shutdown())

	buf := make([]byte, 1)
	_, err = res.stream.Read(buf)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, res.stream.Shutdown())
	_, err = stream.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestDial(t *testing.T) {
	listener, err := opentls.Listen("tcp", "127.0.0.1:0", testAcceptor(t))
	require.NoError(t, err)
	defer listener.Close()

	accepted := make(chan serverResult, 1)
	go func() {
		stream, acceptErr := listener.Accept()
		accepted <- serverResult{stream: stream, err: acceptErr}
	}()

	_, port, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)
	stream, err := opentls.Dial("tcp", net.JoinHostPort("localhost", port), trustingConnector(t))
	require.NoError(t, err)
	defer stream.Close()

	res := <-accepted
	require.NoError(t, res.err)
	defer res.stream.Close()

	_, err = stream.Write([]byte("over dial"))
	require.NoError(t, err)
	buf := make([]byte, 9)
	_, err = io.ReadFull(res.stream, buf)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(buf, []byte("over dial")))
}

func TestDialContext_Cancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			return
		}
		defer conn.Close()
		// never answers the client hello
		_, _ = io.Copy(io.Discard, conn)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	start := time.Now()
	_, err = opentls.DialContext(ctx, "tcp", ln.Addr().String(), trustingConnector(t))
	require.Error(t, err)
	assert.True(t, opentls.IsHandshakeError(err) || errors.Is(err, context.Canceled))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAccept_ClientAuth(t *testing.T) {
	authority, err := testcert.NewAuthority("client root")
	require.NoError(t, err)
	pair, err := authority.Issue(testcert.Options{CommonName: "client", IsClientCert: true})
	require.NoError(t, err)
	clientIdentity, err := opentls.IdentityFromPEM(pair.CertPEM, pair.KeyPEM)
	require.NoError(t, err)
	clientRoot, err := opentls.CertificateFromPEM(authority.CertPEM)
	require.NoError(t, err)

	acceptor := testAcceptor(t,
		opentls.WithClientAuth(opentls.ClientAuthRequire),
		opentls.WithRootCertificate(clientRoot),
		opentls.WithDisableBuiltInRoots(true),
	)

	cli, srv := tcpPair(t)
	result := serve(acceptor, srv)
	_, err = trustingConnector(t, opentls.WithIdentity(clientIdentity)).Connect("localhost", cli)
	require.NoError(t, err)
	res := <-result
	require.NoError(t, res.err)
	assert.True(t, clientIdentity.Certificate().Equal(res.stream.PeerCertificate()))

	cli, srv = tcpPair(t)
	result = serve(acceptor, srv)
	_, _ = trustingConnector(t).Connect("localhost", cli)
	res = <-result
	assert.True(t, opentls.IsHandshakeError(res.err))
}
