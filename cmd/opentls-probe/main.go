// Command opentls-probe connects to or serves a TLS endpoint and reports what
// was negotiated.
package main

import (
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/brickingsoft/opentls"
	"github.com/brickingsoft/opentls/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultLogLevel = "info"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "opentls-probe",
		Short:         "Inspect TLS handshakes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("profile", "p", "", "Path to a YAML profile")
	rootCmd.PersistentFlags().StringP("log-level", "l", defaultLogLevel, "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("metrics", "", "Address to expose Prometheus metrics on")

	rootCmd.AddCommand(newConnectCmd(out), newServeCmd(out))
	rootCmd.SetOut(out)
	return rootCmd
}

func newLogger(cmd *cobra.Command) zerolog.Logger {
	levelName, _ := cmd.Flags().GetString("log-level")
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}
	output := zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

// startMetrics serves the metrics when --metrics is set. The returned stop
// function is always safe to call.
func startMetrics(cmd *cobra.Command, logger zerolog.Logger) (*metrics.Metrics, func(), error) {
	addr, _ := cmd.Flags().GetString("metrics")
	if addr == "" {
		return nil, func() {}, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen for metrics: %w", err)
	}
	m := metrics.NewMetrics()
	srv := &http.Server{Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error().Err(serveErr).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")
	return m, func() { _ = srv.Close() }, nil
}

type negotiated interface {
	ConnectionState() tls.ConnectionState
	TLSServerEndPoint() []byte
}

// report writes the negotiated parameters of a session.
func report(out io.Writer, session negotiated, peer *opentls.Certificate) {
	state := session.ConnectionState()
	fmt.Fprintf(out, "%-16s %s\n", "protocol:", tls.VersionName(state.Version))
	fmt.Fprintf(out, "%-16s %s\n", "cipher:", tls.CipherSuiteName(state.CipherSuite))
	if state.NegotiatedProtocol != "" {
		fmt.Fprintf(out, "%-16s %s\n", "alpn:", state.NegotiatedProtocol)
	}
	if state.ServerName != "" {
		fmt.Fprintf(out, "%-16s %s\n", "server name:", state.ServerName)
	}
	if peer != nil {
		cert := peer.X509()
		fmt.Fprintf(out, "%-16s %s\n", "peer subject:", cert.Subject)
		fmt.Fprintf(out, "%-16s %s\n", "peer issuer:", cert.Issuer)
		fmt.Fprintf(out, "%-16s %s\n", "peer expires:", cert.NotAfter.Format(time.RFC3339))
	}
	if binding := session.TLSServerEndPoint(); binding != nil {
		fmt.Fprintf(out, "%-16s %s\n", "channel binding:", hex.EncodeToString(binding))
	}
}
