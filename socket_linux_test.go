//go:build linux

package opentls_test

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/brickingsoft/opentls"
	"github.com/brickingsoft/opentls/pkg/metrics"
	"github.com/brickingsoft/opentls/task"
	"github.com/brickingsoft/opentls/transport"
	"github.com/brickingsoft/rxp/async"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectAsync_Socket(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	acceptor := testAcceptor(t)
	echoed := make(chan error, 1)
	go func() {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			echoed <- acceptErr
			return
		}
		defer conn.Close()
		stream, acceptErr := acceptor.Accept(conn)
		if acceptErr != nil {
			echoed <- acceptErr
			return
		}
		buf := make([]byte, 4)
		if _, acceptErr = io.ReadFull(stream, buf); acceptErr != nil {
			echoed <- acceptErr
			return
		}
		_, acceptErr = stream.Write(bytes.ToUpper(buf))
		echoed <- acceptErr
	}()

	poller, err := transport.NewPoller()
	require.NoError(t, err)
	defer poller.Close()

	exec := task.NewExecutor()
	exec.Start()
	defer exec.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sock, err := transport.DialSocket(ctx, poller, "tcp", ln.Addr().String())
	require.NoError(t, err)
	defer sock.Close()

	var logs bytes.Buffer
	m := metrics.NewMetrics()
	connector := trustingConnector(t,
		opentls.WithLogger(zerolog.New(&logs).Level(zerolog.DebugLevel)),
		opentls.WithMetrics(m),
	)
	stream, err := async.AwaitableFuture(connector.ConnectAsync(ctx, exec, "localhost", sock)).Await()
	if err != nil {
		t.Error(err)
		return
	}

	n, err := async.AwaitableFuture(stream.Write(ctx, []byte("ping"))).Await()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	buf := make([]byte, 4)
	received := 0
	for received < len(buf) {
		n, err = async.AwaitableFuture(stream.Read(ctx, buf[received:])).Await()
		require.NoError(t, err)
		received += n
	}
	assert.Equal(t, "PING", string(buf))
	require.NoError(t, <-echoed)

	assert.True(t, strings.Contains(logs.String(), "handshake completed"))
	expected := `
# HELP opentls_handshakes_total Total number of finished handshakes by role and outcome
# TYPE opentls_handshakes_total counter
opentls_handshakes_total{outcome="success",role="client"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "opentls_handshakes_total"))
	suspended, err := testutil.GatherAndCount(m.Registry(), "opentls_handshake_suspensions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, suspended)
}
