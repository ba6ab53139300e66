package main

import (
	"errors"
	"io"
	"net"
	"os"

	"github.com/brickingsoft/opentls"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newServeCmd(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <addr>",
		Short: "Accept TLS connections and echo what clients send",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, out, args[0])
		},
	}
	cmd.Flags().String("p12", "", "PKCS#12 identity archive")
	cmd.Flags().String("password", "", "Password of the identity archive")
	cmd.Flags().Int("count", 0, "Stop after this many connections (0 serves forever)")
	return cmd
}

func runServe(cmd *cobra.Command, out io.Writer, address string) error {
	logger := newLogger(cmd)
	profilePath, _ := cmd.Flags().GetString("profile")
	profile, err := loadProfile(profilePath)
	if err != nil {
		return err
	}
	if p12, _ := cmd.Flags().GetString("p12"); p12 != "" {
		profile.Identity.PKCS12 = p12
		profile.Identity.Password, _ = cmd.Flags().GetString("password")
	}
	if profile.Identity.PKCS12 == "" {
		return errors.New("an identity is required, set --p12 or identity.pkcs12 in the profile")
	}
	f, err := os.Open(profile.Identity.PKCS12)
	if err != nil {
		return err
	}
	identity, err := opentls.ReadIdentity(f, profile.Identity.Password)
	_ = f.Close()
	if err != nil {
		return err
	}
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

	acceptor, err := opentls.NewAcceptor(identity, options...)
	if err != nil {
		return err
	}
	ln, err := opentls.Listen("tcp", address, acceptor)
	if err != nil {
		return err
	}
	defer ln.Close()
	logger.Info().Str("addr", ln.Addr().String()).Msg("listening")

	count, _ := cmd.Flags().GetInt("count")
	for served := 0; count == 0 || served < count; served++ {
		stream, acceptErr := ln.Accept()
		if acceptErr != nil {
			if opentls.IsClosed(acceptErr) {
				return nil
			}
			logger.Warn().Err(acceptErr).Msg("handshake failed")
			continue
		}
		report(out, stream, stream.PeerCertificate())
		go echo(stream, logger)
	}
	return nil
}

func echo(stream *opentls.Stream, logger zerolog.Logger) {
	defer stream.Close()
	if _, err := io.Copy(stream, stream); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Debug().Err(err).Msg("echo stopped")
		return
	}
	if err := stream.Shutdown(); err != nil {
		logger.Debug().Err(err).Msg("shutdown failed")
	}
}
