package opentls_test

import (
	"net"
	"os"
	"testing"

	"github.com/brickingsoft/opentls"
	"github.com/stretchr/testify/require"
)

const identityPassword = "hello"

func testIdentity(t testing.TB) *opentls.Identity {
	t.Helper()
	f, err := os.Open("testdata/identity.p12")
	require.NoError(t, err)
	defer f.Close()
	identity, err := opentls.ReadIdentity(f, identityPassword)
	require.NoError(t, err)
	return identity
}

func testRoot(t testing.TB) *opentls.Certificate {
	t.Helper()
	raw, err := os.ReadFile("testdata/root.pem")
	require.NoError(t, err)
	root, err := opentls.CertificateFromPEM(raw)
	require.NoError(t, err)
	return root
}

func testAcceptor(t testing.TB, options ...opentls.Option) *opentls.Acceptor {
	t.Helper()
	acceptor, err := opentls.NewAcceptor(testIdentity(t), options...)
	require.NoError(t, err)
	return acceptor
}

func trustingConnector(t testing.TB, options ...opentls.Option) *opentls.Connector {
	t.Helper()
	options = append([]opentls.Option{
		opentls.WithRootCertificate(testRoot(t)),
		opentls.WithDisableBuiltInRoots(true),
	}, options...)
	connector, err := opentls.NewConnector(options...)
	require.NoError(t, err)
	return connector
}

// tcpPair returns both ends of a loopback TCP connection.
func tcpPair(t testing.TB) (client net.Conn, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()
	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server = <-accepted
	require.NotNil(t, server)
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return
}

type serverResult struct {
	stream *opentls.Stream
	err    error
}

// serve runs the server handshake in the background.
func serve(acceptor *opentls.Acceptor, conn net.Conn) <-chan serverResult {
	ch := make(chan serverResult, 1)
	go func() {
		stream, err := acceptor.Accept(conn)
		ch <- serverResult{stream: stream, err: err}
	}()
	return ch
}
