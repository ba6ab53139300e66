package opentls

import (
	"crypto/tls"
	"fmt"

	"github.com/brickingsoft/errors"
)

// Protocol
// 协议版本。零值表示未指定。
type Protocol int

const (
	ProtocolUnspecified Protocol = iota
	SSLv3
	TLSv10
	TLSv11
	TLSv12
	TLSv13
)

func (p Protocol) String() string {
	switch p {
	case ProtocolUnspecified:
		return "unspecified"
	case SSLv3:
		return "SSLv3"
	case TLSv10:
		return "TLSv1.0"
	case TLSv11:
		return "TLSv1.1"
	case TLSv12:
		return "TLSv1.2"
	case TLSv13:
		return "TLSv1.3"
	default:
		return fmt.Sprintf("Protocol(%d)", int(p))
	}
}

// ParseProtocol accepts the names printed by Protocol.String, case sensitive,
// plus the short forms "tls1.2" and "tls1.3".
func ParseProtocol(s string) (Protocol, error) {
	switch s {
	case "", "unspecified":
		return ProtocolUnspecified, nil
	case "SSLv3", "ssl3":
		return SSLv3, nil
	case "TLSv1.0", "tls1.0":
		return TLSv10, nil
	case "TLSv1.1", "tls1.1":
		return TLSv11, nil
	case "TLSv1.2", "tls1.2":
		return TLSv12, nil
	case "TLSv1.3", "tls1.3":
		return TLSv13, nil
	}
	return ProtocolUnspecified, configurationError(opBuild, errors.New("unknown protocol", errors.WithMeta("protocol", s)))
}

func (p Protocol) version() (uint16, error) {
	switch p {
	case TLSv10:
		return tls.VersionTLS10, nil
	case TLSv11:
		return tls.VersionTLS11, nil
	case TLSv12:
		return tls.VersionTLS12, nil
	case TLSv13:
		return tls.VersionTLS13, nil
	case SSLv3:
		return 0, configurationError(opBuild, errors.New("SSLv3 is not supported"))
	default:
		return 0, configurationError(opBuild, errors.New("unknown protocol", errors.WithMeta("protocol", p.String())))
	}
}

// protocolOf maps a negotiated wire version back to a Protocol.
func protocolOf(version uint16) Protocol {
	switch version {
	case tls.VersionTLS10:
		return TLSv10
	case tls.VersionTLS11:
		return TLSv11
	case tls.VersionTLS12:
		return TLSv12
	case tls.VersionTLS13:
		return TLSv13
	default:
		return ProtocolUnspecified
	}
}

// versionRange resolves the configured bounds. An unspecified minimum means the
// oldest version the engine offers and an unspecified maximum the newest.
func versionRange(minimum, maximum Protocol) (lo uint16, hi uint16, err error) {
	lo, hi = tls.VersionTLS10, tls.VersionTLS13
	if minimum != ProtocolUnspecified {
		if lo, err = minimum.version(); err != nil {
			return
		}
	}
	if maximum != ProtocolUnspecified {
		if hi, err = maximum.version(); err != nil {
			return
		}
	}
	if lo > hi {
		err = configurationError(opBuild, errors.New(
			"minimum protocol is above maximum",
			errors.WithMeta("min", minimum.String()),
			errors.WithMeta("max", maximum.String()),
		))
	}
	return
}
