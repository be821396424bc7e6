package tcp

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"
)

// DefaultClientTimeout bounds a whole query when the context has no deadline.
const DefaultClientTimeout = 10 * time.Second

// maxReplyBytes is far larger than any reply line.
const maxReplyBytes = 4096

// Client sends single queries to a linecheck server.
type Client struct {
	addr    string
	tls     *tls.Config
	timeout time.Duration
}

// NewClient creates a client for addr. A non-nil tlsCfg dials with TLS.
func NewClient(addr string, tlsCfg *tls.Config) *Client {
	return &Client{addr: addr, tls: tlsCfg, timeout: DefaultClientTimeout}
}

// Query sends query followed by the terminator and returns the reply.
func (c *Client) Query(ctx context.Context, query string) (Response, error) {
	payload := append([]byte(query), Terminator)
	return c.Send(ctx, payload, true)
}

// Send writes payload verbatim, optionally half-closes the write side, and
// reads the reply until the server closes. It is the raw form of Query.
func (c *Client) Send(ctx context.Context, payload []byte, halfClose bool) (Response, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", c.addr, err)
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	if len(payload) > 0 {
		if _, err := conn.Write(payload); err != nil {
			// The server may reply and close before reading everything
			// (oversized payloads); the reply is still worth reading.
			if reply, _ := io.ReadAll(io.LimitReader(conn, maxReplyBytes)); len(reply) > 0 {
				return Response(reply), nil
			}
			return "", fmt.Errorf("write: %w", err)
		}
	}
	if halfClose {
		if cw, ok := conn.(interface{ CloseWrite() error }); ok {
			if err := cw.CloseWrite(); err != nil {
				return "", fmt.Errorf("close write: %w", err)
			}
		}
	}

	reply, err := io.ReadAll(io.LimitReader(conn, maxReplyBytes))
	if err != nil && len(reply) == 0 {
		return "", fmt.Errorf("read: %w", err)
	}
	return Response(reply), nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	if c.tls != nil {
		d := &tls.Dialer{Config: c.tls}
		return d.DialContext(ctx, "tcp", c.addr)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", c.addr)
}
