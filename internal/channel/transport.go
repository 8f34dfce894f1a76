package channel

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one open duplex transport. ReadMessage is called from a single
// reader goroutine and WriteMessage from a single writer goroutine; Close
// may be called concurrently with both.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens transports to an endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

const (
	defaultWriteTimeout = 10 * time.Second
	defaultReadLimit    = 512 * 1024
)

// WebSocketDialer dials gorilla websocket connections.
type WebSocketDialer struct {
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Header is sent with the handshake request.
	Header http.Header

	// ReadLimit caps inbound frame size. Defaults to 512KB.
	ReadLimit int64

	// WriteTimeout bounds each frame write. Defaults to 10s.
	WriteTimeout time.Duration
}

// Dial performs the websocket handshake.
func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, endpoint, d.Header)
	if err != nil {
		return nil, err
	}

	limit := d.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	ws.SetReadLimit(limit)

	timeout := d.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &wsConn{ws: ws, writeTimeout: timeout}, nil
}

type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close sends a best-effort close frame and tears down the socket.
func (c *wsConn) Close() error {
	deadline := time.Now().Add(time.Second)
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.ws.Close()
}
