package main

import (
	"fmt"
	"os"

	"github.com/brickingsoft/opentls"
	"gopkg.in/yaml.v3"
)

// Profile is the YAML form of a connector or acceptor configuration.
type Profile struct {
	MinProtocol            string   `yaml:"min_protocol"`
	MaxProtocol            string   `yaml:"max_protocol"`
	SNI                    *bool    `yaml:"sni"`
	Roots                  []string `yaml:"roots"`
	DisableBuiltInRoots    bool     `yaml:"disable_builtin_roots"`
	AcceptInvalidCerts     bool     `yaml:"accept_invalid_certs"`
	AcceptInvalidHostnames bool     `yaml:"accept_invalid_hostnames"`
	ALPN                   []string `yaml:"alpn"`
	ClientAuth             string   `yaml:"client_auth"`
	Identity               struct {
		PKCS12   string `yaml:"pkcs12"`
		Password string `yaml:"password"`
	} `yaml:"identity"`
}

// loadProfile reads a profile from path. An empty path yields the zero profile.
func loadProfile(path string) (*Profile, error) {
	profile := &Profile{}
	if path == "" {
		return profile, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	if err = yaml.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	return profile, nil
}

// options converts the profile into opentls options.
func (p *Profile) options() ([]opentls.Option, error) {
	var options []opentls.Option
	if p.MinProtocol != "" {
		lo, err := opentls.ParseProtocol(p.MinProtocol)
		if err != nil {
			return nil, err
		}
		options = append(options, opentls.WithMinProtocol(lo))
	}
	if p.MaxProtocol != "" {
		hi, err := opentls.ParseProtocol(p.MaxProtocol)
		if err != nil {
			return nil, err
		}
		options = append(options, opentls.WithMaxProtocol(hi))
	}
	if p.SNI != nil {
		options = append(options, opentls.WithSNI(*p.SNI))
	}
	for _, path := range p.Roots {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read root %s: %w", path, err)
		}
		certs, err := opentls.CertificatesFromPEM(data)
		if err != nil {
			return nil, err
		}
		for _, cert := range certs {
			options = append(options, opentls.WithRootCertificate(cert))
		}
	}
	if p.Identity.PKCS12 != "" {
		f, err := os.Open(p.Identity.PKCS12)
		if err != nil {
			return nil, fmt.Errorf("failed to open identity: %w", err)
		}
		identity, err := opentls.ReadIdentity(f, p.Identity.Password)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
		options = append(options, opentls.WithIdentity(identity))
	}
	switch p.ClientAuth {
	case "", "none":
	case "request":
		options = append(options, opentls.WithClientAuth(opentls.ClientAuthRequest))
	case "require":
		options = append(options, opentls.WithClientAuth(opentls.ClientAuthRequire))
	default:
		return nil, fmt.Errorf("unknown client_auth %q", p.ClientAuth)
	}
	options = append(options,
		opentls.WithDisableBuiltInRoots(p.DisableBuiltInRoots),
		opentls.WithDangerAcceptInvalidCerts(p.AcceptInvalidCerts),
		opentls.WithDangerAcceptInvalidHostnames(p.AcceptInvalidHostnames),
	)
	if len(p.ALPN) > 0 {
		options = append(options, opentls.WithALPN(p.ALPN...))
	}
	return options, nil
}
