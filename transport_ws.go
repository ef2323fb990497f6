package mqttier

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketSubprotocol is the subprotocol negotiated for MQTT over WebSocket.
const WebSocketSubprotocol = "mqtt"

// WSConn adapts a WebSocket to net.Conn. Each Write is one binary frame;
// Read concatenates frames into a byte stream.
type WSConn struct {
	conn *websocket.Conn
	buf  []byte
}

func newWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn}
}

// Read returns bytes from the current frame, fetching the next one when
// it is exhausted. Text frames are a protocol violation.
func (c *WSConn) Read(p []byte) (int, error) {
	for len(c.buf) == 0 {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		if kind != websocket.BinaryMessage {
			return 0, fmt.Errorf("%w: websocket frame type %d", ErrProtocolError, kind)
		}
		c.buf = data
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

// Write sends b as a single binary frame.
func (c *WSConn) Write(b []byte) (int, error) {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *WSConn) Close() error         { return c.conn.Close() }
func (c *WSConn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *WSConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *WSConn) SetDeadline(t time.Time) error {
	if err := c.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.conn.SetWriteDeadline(t)
}

func (c *WSConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *WSConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

// WSDialer connects to brokers over WebSocket. The address is the full
// ws:// or wss:// URL.
type WSDialer struct {
	Dialer *websocket.Dialer

	// Header is sent with the upgrade request.
	Header http.Header
}

// NewWSDialer returns a dialer that negotiates the mqtt subprotocol.
func NewWSDialer() *WSDialer {
	return &WSDialer{
		Dialer: &websocket.Dialer{
			Subprotocols:     []string{WebSocketSubprotocol},
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Dial performs the HTTP upgrade.
func (d *WSDialer) Dial(ctx context.Context, address string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, address, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	if conn.Subprotocol() != WebSocketSubprotocol {
		conn.Close()
		return nil, fmt.Errorf("%w: broker did not accept the %q subprotocol", ErrConnectFailed, WebSocketSubprotocol)
	}
	return newWSConn(conn), nil
}
