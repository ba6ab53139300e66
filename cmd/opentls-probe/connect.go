package main

import (
	"context"
	"io"
	"net"

	"github.com/brickingsoft/opentls"
	"github.com/spf13/cobra"
)

func newConnectCmd(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect <host:port>",
		Short: "Connect to a TLS server and print the negotiated session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd, out, args[0])
		},
	}
	cmd.Flags().Bool("insecure", false, "Accept any server certificate")
	cmd.Flags().Bool("no-sni", false, "Do not send the server name")
	cmd.Flags().String("min", "", "Minimum protocol version (tls1.2, tls1.3, ...)")
	cmd.Flags().String("max", "", "Maximum protocol version")
	cmd.Flags().StringSlice("ca", nil, "PEM file with extra root certificates")
	cmd.Flags().String("servername", "", "Name to verify instead of the host in the address")
	cmd.Flags().Duration("timeout", defaultTimeout, "Dial and handshake timeout")
	return cmd
}

// applyConnectFlags overrides profile fields with the flags that were set.
func applyConnectFlags(cmd *cobra.Command, profile *Profile) {
	flags := cmd.Flags()
	if flags.Changed("insecure") {
		profile.AcceptInvalidCerts, _ = flags.GetBool("insecure")
	}
	if flags.Changed("no-sni") {
		noSNI, _ := flags.GetBool("no-sni")
		sni := !noSNI
		profile.SNI = &sni
	}
	if flags.Changed("min") {
		profile.MinProtocol, _ = flags.GetString("min")
	}
	if flags.Changed("max") {
		profile.MaxProtocol, _ = flags.GetString("max")
	}
	if flags.Changed("ca") {
		roots, _ := flags.GetStringSlice("ca")
		profile.Roots = append(profile.Roots, roots...)
	}
}

func runConnect(cmd *cobra.Command, out io.Writer, address string) error {
	logger := newLogger(cmd)
	profilePath, _ := cmd.Flags().GetString("profile")
	profile, err := loadProfile(profilePath)
	if err != nil {
		return err
	}
	applyConnectFlags(cmd, profile)
	options, err := profile.options()
	if err != nil {
		return err
	}
	m, stop, err := startMetrics(cmd, logger)
	if err != nil {
		return err
	}
	defer stop()
	options = append(options, opentls.WithLogger(logger), opentls.WithMetrics(m))

	connector, err := opentls.NewConnector(options...)
	if err != nil {
		return err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var stream *opentls.Stream
	if name, _ := cmd.Flags().GetString("servername"); name != "" {
		var dialer net.Dialer
		conn, dialErr := dialer.DialContext(ctx, "tcp", address)
		if dialErr != nil {
			return dialErr
		}
		defer conn.Close()
		if deadline, ok := ctx.Deadline(); ok {
			_ = conn.SetDeadline(deadline)
		}
		stream, err = connector.Connect(name, conn)
	} else {
		stream, err = opentls.DialContext(ctx, "tcp", address, connector)
	}
	if err != nil {
		logger.Error().Err(err).Str("addr", address).Msg("handshake failed")
		return err
	}
	defer stream.Close()

	logger.Info().Str("addr", address).Str("protocol", stream.Protocol().String()).Msg("connected")
	report(out, stream, stream.PeerCertificate())
	return stream.Shutdown()
}
