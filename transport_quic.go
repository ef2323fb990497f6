package mqttier

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

// QUICALPN is the ALPN protocol negotiated for MQTT over QUIC.
const QUICALPN = "mqtt"

// QUICConn carries MQTT over one bidirectional QUIC stream.
type QUICConn struct {
	conn   *quic.Conn
	stream *quic.Stream

	closeOnce sync.Once
	closeErr  error
}

func (c *QUICConn) Read(b []byte) (int, error)  { return c.stream.Read(b) }
func (c *QUICConn) Write(b []byte) (int, error) { return c.stream.Write(b) }

// Close closes the stream and the connection. It is idempotent.
func (c *QUICConn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.stream.Close()
		c.closeErr = c.conn.CloseWithError(0, "")
	})
	return c.closeErr
}

func (c *QUICConn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *QUICConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *QUICConn) SetDeadline(t time.Time) error {
	if err := c.stream.SetReadDeadline(t); err != nil {
		return err
	}
	return c.stream.SetWriteDeadline(t)
}

func (c *QUICConn) SetReadDeadline(t time.Time) error  { return c.stream.SetReadDeadline(t) }
func (c *QUICConn) SetWriteDeadline(t time.Time) error { return c.stream.SetWriteDeadline(t) }

// QUICDialer connects to brokers over QUIC.
type QUICDialer struct {
	// TLSConfig must allow TLS 1.3; the mqtt ALPN is added when missing.
	TLSConfig *tls.Config

	QUICConfig *quic.Config
}

// NewQUICDialer creates a QUIC dialer using tlsConfig, or a TLS 1.3
// default when nil.
func NewQUICDialer(tlsConfig *tls.Config) *QUICDialer {
	return &QUICDialer{TLSConfig: tlsConfig}
}

// Dial connects to address ("host:port") and opens the MQTT stream.
func (d *QUICDialer) Dial(ctx context.Context, address string) (Conn, error) {
	tlsConfig := d.TLSConfig.Clone()
	if tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS13}
	}
	if len(tlsConfig.NextProtos) == 0 {
		tlsConfig.NextProtos = []string{QUICALPN}
	}

	conn, err := quic.DialAddr(ctx, address, tlsConfig, d.QUICConfig)
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "failed to open stream")
		return nil, err
	}
	return &QUICConn{conn: conn, stream: stream}, nil
}
