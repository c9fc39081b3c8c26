package infra

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"
)

// DialFeed opens the byte source described by cfg.
// The caller owns the returned stream and must Close it; closing it is also
// the way to abort a blocked read.
func DialFeed(ctx context.Context, cfg FeedConfig) (io.ReadCloser, error) {
	timeout := time.Duration(cfg.ReadTimeoutMS) * time.Millisecond

	switch cfg.Transport {
	case TransportWS:
		return DialWS(ctx, cfg.Addr, timeout)
	case TransportTCP, "":
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("tcp dial %s: %w", cfg.Addr, err)
		}
		if timeout > 0 {
			return &deadlineConn{Conn: conn, timeout: timeout}, nil
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// deadlineConn arms a read deadline before every Read.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}
