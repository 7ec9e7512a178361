package channel

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const defaultHandshakeTimeout = 10 * time.Second

// Dialer opens channel connections. Jar supplies the session cookies, so the
// handshake carries the same credentials as the REST calls.
type Dialer struct {
	URL              string         // ws:// or wss:// endpoint
	Origin           string         // sent as the Origin header when set
	Jar              http.CookieJar
	HandshakeTimeout time.Duration
	MaxMessageSize   int64          // incoming frame limit; zero means DefaultMaxMessageSize
	Logger           zerolog.Logger
}

// Dial performs the WebSocket handshake and starts the connection's pumps.
func (d Dialer) Dial(ctx context.Context) (*Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
		Jar:              d.Jar,
	}

	headers := http.Header{}
	if d.Origin != "" {
		headers.Set("Origin", d.Origin)
	}

	ws, resp, err := dialer.DialContext(ctx, d.URL, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial channel: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial channel: %w", err)
	}
	return newConn(ws, d.MaxMessageSize, d.Logger), nil
}
