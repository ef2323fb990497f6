package mqttier

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"time"
)

// Conn is a transport connection carrying MQTT bytes.
type Conn interface {
	net.Conn
}

// Dialer establishes transport connections.
type Dialer interface {
	// Dial connects to the address with the given context.
	Dial(ctx context.Context, address string) (Conn, error)
}

// Default ports per URL scheme.
const (
	DefaultPortTCP  = "1883"
	DefaultPortTLS  = "8883"
	DefaultPortWS   = "80"
	DefaultPortWSS  = "443"
	DefaultPortQUIC = "14567"
)

// TCPDialer connects to brokers over TCP, optionally through a proxy.
type TCPDialer struct {
	// Timeout is the maximum time to wait for a connection.
	// Zero means no timeout.
	Timeout time.Duration

	Proxy *ProxyDialer
}

// Dial connects to the address.
func (d *TCPDialer) Dial(ctx context.Context, address string) (Conn, error) {
	if d.Proxy != nil {
		return d.Proxy.DialContext(ctx, "tcp", address)
	}
	dialer := net.Dialer{Timeout: d.Timeout}
	return dialer.DialContext(ctx, "tcp", address)
}

// TLSDialer connects to brokers over TLS, optionally through a proxy.
type TLSDialer struct {
	// Config is the TLS configuration.
	Config *tls.Config

	// Timeout is the maximum time to wait for a connection.
	// Zero means no timeout.
	Timeout time.Duration

	Proxy *ProxyDialer
}

// Dial connects to the address.
func (d *TLSDialer) Dial(ctx context.Context, address string) (Conn, error) {
	if d.Proxy == nil {
		dialer := &tls.Dialer{
			NetDialer: &net.Dialer{Timeout: d.Timeout},
			Config:    d.Config,
		}
		return dialer.DialContext(ctx, "tcp", address)
	}

	raw, err := d.Proxy.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	config := d.Config.Clone()
	if config == nil {
		config = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if config.ServerName == "" {
		host, _, _ := net.SplitHostPort(address)
		config.ServerName = host
	}
	conn := tls.Client(raw, config)
	if err := conn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return conn, nil
}

// DialerForURL selects a transport from the scheme of server and returns it
// with the address to pass to Dial. Missing ports get the scheme default.
//
//	tcp://, mqtt://           TCP, port 1883
//	tls://, ssl://, mqtts://  TLS, port 8883
//	ws://, wss://             WebSocket, ports 80 and 443
//	unix:///path              Unix domain socket
//	quic://                   QUIC, port 14567
//
// proxyURL routes tcp, tls and ws transports through an HTTP CONNECT or
// SOCKS5 proxy; ProxyEnvironment reads HTTP_PROXY and friends.
func DialerForURL(server string, tlsConfig *tls.Config, proxyURL string) (Dialer, string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return nil, "", fmt.Errorf("invalid server address %q: %w", server, err)
	}

	proxy, err := proxyFor(server, proxyURL)
	if err != nil {
		return nil, "", err
	}

	switch u.Scheme {
	case "tcp", "mqtt":
		return &TCPDialer{Proxy: proxy}, hostPort(u, DefaultPortTCP), nil
	case "tls", "ssl", "mqtts":
		return &TLSDialer{Config: tlsConfig, Proxy: proxy}, hostPort(u, DefaultPortTLS), nil
	case "ws", "wss":
		port := DefaultPortWS
		if u.Scheme == "wss" {
			port = DefaultPortWSS
		}
		target := *u
		target.Host = hostPort(u, port)
		d := NewWSDialer()
		d.Dialer.TLSClientConfig = tlsConfig
		if proxy != nil {
			d.Dialer.NetDialContext = proxy.DialContext
		}
		return d, target.String(), nil
	case "unix":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		return NewUnixDialer(), path, nil
	case "quic":
		return NewQUICDialer(tlsConfig), hostPort(u, DefaultPortQUIC), nil
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

func hostPort(u *url.URL, defaultPort string) string {
	if u.Port() != "" {
		return u.Host
	}
	return net.JoinHostPort(u.Hostname(), defaultPort)
}
