package mqttier

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// ProxyEnvironment passed to WithProxy selects the proxy from HTTP_PROXY,
// HTTPS_PROXY and NO_PROXY.
const ProxyEnvironment = "env"

// ProxyDialer dials through an HTTP CONNECT or SOCKS5 proxy.
type ProxyDialer struct {
	proxyURL *url.URL
	username string
	password string
	forward  net.Dialer
}

// NewProxyDialer creates a proxy dialer. Supported schemes are http and
// https (HTTP CONNECT), socks5 and socks5h. Credentials may be given
// separately or in the URL.
func NewProxyDialer(proxyURL, username, password string) (*ProxyDialer, error) {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %s", u.Scheme)
	}

	if username == "" && u.User != nil {
		username = u.User.Username()
		password, _ = u.User.Password()
	}

	return &ProxyDialer{
		proxyURL: u,
		username: username,
		password: password,
	}, nil
}

// proxyFor builds the proxy dialer for server, or nil for a direct dial.
func proxyFor(server, proxyURL string) (*ProxyDialer, error) {
	if proxyURL == "" {
		return nil, nil
	}
	if proxyURL == ProxyEnvironment {
		u, err := ProxyFromEnvironment(server)
		if err != nil || u == nil {
			return nil, err
		}
		proxyURL = u.String()
	}
	return NewProxyDialer(proxyURL, "", "")
}

// DialContext connects to addr through the proxy.
func (d *ProxyDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	switch d.proxyURL.Scheme {
	case "http", "https":
		return d.dialHTTPConnect(ctx, addr)
	default:
		return d.dialSOCKS5(ctx, network, addr)
	}
}

func (d *ProxyDialer) dialHTTPConnect(ctx context.Context, targetAddr string) (net.Conn, error) {
	proxyAddr := d.proxyURL.Host
	if d.proxyURL.Port() == "" {
		port := "8080"
		if d.proxyURL.Scheme == "https" {
			port = "443"
		}
		proxyAddr = net.JoinHostPort(d.proxyURL.Hostname(), port)
	}

	conn, err := d.forward.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to proxy: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{}) //nolint:errcheck
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: targetAddr},
		Host:   targetAddr,
		Header: make(http.Header),
	}
	if d.username != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(d.username + ":" + d.password))
		req.Header.Set("Proxy-Authorization", "Basic "+creds)
	}

	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send CONNECT request: %w", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read CONNECT response: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("proxy CONNECT failed: %s", resp.Status)
	}
	return conn, nil
}

func (d *ProxyDialer) dialSOCKS5(ctx context.Context, network, targetAddr string) (net.Conn, error) {
	proxyAddr := d.proxyURL.Host
	if d.proxyURL.Port() == "" {
		proxyAddr = net.JoinHostPort(d.proxyURL.Hostname(), "1080")
	}

	var auth *proxy.Auth
	if d.username != "" {
		auth = &proxy.Auth{User: d.username, Password: d.password}
	}

	dialer, err := proxy.SOCKS5("tcp", proxyAddr, auth, &d.forward)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	var conn net.Conn
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, network, targetAddr)
	} else {
		conn, err = dialer.Dial(network, targetAddr)
	}
	if err != nil {
		return nil, fmt.Errorf("SOCKS5 dial failed: %w", err)
	}
	return conn, nil
}

// ProxyFromEnvironment returns the proxy URL for the broker address target
// from HTTP_PROXY, HTTPS_PROXY and NO_PROXY (or their lowercase forms).
// TLS-based schemes use HTTPS_PROXY first. A nil URL means dial directly.
func ProxyFromEnvironment(target string) (*url.URL, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, nil
	}
	if bypassProxy(u.Hostname(), getenv("NO_PROXY")) {
		return nil, nil
	}

	var value string
	switch u.Scheme {
	case "tls", "ssl", "mqtts", "wss":
		value = getenv("HTTPS_PROXY")
	}
	if value == "" {
		value = getenv("HTTP_PROXY")
	}
	if value == "" {
		return nil, nil
	}
	return url.Parse(value)
}

func getenv(key string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return os.Getenv(strings.ToLower(key))
}

// bypassProxy matches host against a NO_PROXY list of hosts and domain
// suffixes.
func bypassProxy(host, noProxy string) bool {
	for pattern := range strings.SplitSeq(noProxy, ",") {
		pattern = strings.TrimSpace(pattern)
		switch {
		case pattern == "":
			continue
		case pattern == "*":
			return true
		case strings.HasPrefix(pattern, "."):
			if strings.HasSuffix(host, pattern) || host == pattern[1:] {
				return true
			}
		case host == pattern || strings.HasSuffix(host, "."+pattern):
			return true
		}
	}
	return false
}
