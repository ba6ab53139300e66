package opentls

import (
	"context"
	"net"
	"strings"
	"time"
)

// Dial
// 拨号并以 connector 完成握手。connector 为 nil 时使用默认连接器。
func Dial(network string, address string, connector *Connector) (*Stream, error) {
	return DialContext(context.Background(), network, address, connector)
}

// DialTimeout
// 同 Dial，拨号与握手共用 timeout。
func DialTimeout(network string, address string, timeout time.Duration, connector *Connector) (*Stream, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return DialContext(ctx, network, address, connector)
}

// DialContext
// 拨号并完成握手，域名取自 address 的主机部分。ctx 的截止时间与取消同样约束握手。
func DialContext(ctx context.Context, network string, address string, connector *Connector) (*Stream, error) {
	if connector == nil {
		var err error
		if connector, err = NewConnector(); err != nil {
			return nil, err
		}
	}
	var dialer net.Dialer
	rawConn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline {
		_ = rawConn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = rawConn.SetDeadline(aLongTimeAgo)
	})
	stream, err := connector.Connect(hostnameOf(address), rawConn)
	if !stop() && err == nil {
		// the deadline is being forced into the past
		err = ctx.Err()
	}
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	if hasDeadline {
		_ = rawConn.SetDeadline(time.Time{})
	}
	return stream, nil
}

var aLongTimeAgo = time.Unix(1, 0)

func hostnameOf(address string) string {
	if host, _, err := net.SplitHostPort(address); err == nil {
		return host
	}
	colonPos := strings.LastIndex(address, ":")
	if colonPos == -1 {
		colonPos = len(address)
	}
	return address[:colonPos]
}
